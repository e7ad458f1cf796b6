package core

import (
	"crypto/sha256"
	"encoding/binary"
)

const GenesisHashSeed = "AuctionLedger:genesis:v1"

// StateHasher chains a deterministic hash over every applied
// invocation, letting two replicas compare their histories cheaply.
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher initializes with the genesis hash.
func NewStateHasher() *StateHasher {
	genesis := sha256.Sum256([]byte(GenesisHashSeed))
	return &StateHasher{
		prevHash: genesis,
	}
}

// ComputeHash calculates state_hash[N] = SHA-256(prev_hash || sequence || state_digest).
func (h *StateHasher) ComputeHash(sequence int64, stateDigest []byte) [32]byte {
	hasher := sha256.New()

	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(stateDigest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))

	h.prevHash = hash

	return hash
}

// GetPrevHash returns the current chain tip.
func (h *StateHasher) GetPrevHash() [32]byte {
	return h.prevHash
}

// Restore resets the chain tip, used on restart to continue the chain
// from the last durably written invocation.
func (h *StateHasher) Restore(prev [32]byte) {
	h.prevHash = prev
}
