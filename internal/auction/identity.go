package auction

import (
	"encoding/hex"
	"fmt"
)

// IdentityKind discriminates the address space an Identity belongs to.
type IdentityKind uint8

const (
	KindAccount IdentityKind = iota
	KindPublicContract
	KindSystemContract
	KindZkContract
)

func (k IdentityKind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindPublicContract:
		return "public_contract"
	case KindSystemContract:
		return "system_contract"
	case KindZkContract:
		return "zk_contract"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// IdentityRawLen is the length of the hash part of an identity.
const IdentityRawLen = 20

// Identity names a participant: an external account or a token contract.
// It is a value type and usable as a map key.
type Identity struct {
	Kind IdentityKind
	Raw  [IdentityRawLen]byte
}

// ParseIdentity decodes the 42-char hex form: one kind byte followed by
// twenty hash bytes.
func ParseIdentity(s string) (Identity, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Identity{}, fmt.Errorf("identity %q: %w", s, err)
	}
	if len(raw) != IdentityRawLen+1 {
		return Identity{}, fmt.Errorf("identity %q: got %d bytes, want %d", s, len(raw), IdentityRawLen+1)
	}
	if raw[0] > uint8(KindZkContract) {
		return Identity{}, fmt.Errorf("identity %q: unknown kind byte 0x%02x", s, raw[0])
	}
	id := Identity{Kind: IdentityKind(raw[0])}
	copy(id.Raw[:], raw[1:])
	return id, nil
}

// String renders the canonical lowercase hex form.
func (id Identity) String() string {
	buf := make([]byte, 0, IdentityRawLen+1)
	buf = append(buf, byte(id.Kind))
	buf = append(buf, id.Raw[:]...)
	return hex.EncodeToString(buf)
}

// IsContract reports whether the identity addresses a contract rather
// than an external account.
func (id Identity) IsContract() bool {
	return id.Kind != KindAccount
}

// Bytes returns the 21-byte wire form: kind byte then hash bytes.
func (id Identity) Bytes() []byte {
	buf := make([]byte, 0, IdentityRawLen+1)
	buf = append(buf, byte(id.Kind))
	return append(buf, id.Raw[:]...)
}

// IdentityFromBytes is the inverse of Bytes.
func IdentityFromBytes(b []byte) (Identity, error) {
	if len(b) != IdentityRawLen+1 {
		return Identity{}, fmt.Errorf("identity bytes: got %d, want %d", len(b), IdentityRawLen+1)
	}
	if b[0] > uint8(KindZkContract) {
		return Identity{}, fmt.Errorf("identity bytes: unknown kind byte 0x%02x", b[0])
	}
	id := Identity{Kind: IdentityKind(b[0])}
	copy(id.Raw[:], b[1:])
	return id, nil
}

// MarshalText lets Identity serve as a JSON map key and field value.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
