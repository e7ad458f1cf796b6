package gateway

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"AuctionLedger/internal/auction"
)

// Callback contexts cross the host boundary twice: attached to a
// transfer-request group on the way out and echoed back verbatim with
// the verdict. CBOR keeps them compact and byte-stable, which matters
// because the echo is compared against nothing; it is the only copy.

type callbackContextWire struct {
	Selector uint8  `cbor:"selector"`
	Bidder   []byte `cbor:"bidder,omitempty"`
	Amount   []byte `cbor:"amount,omitempty"`
}

// EncodeCallbackContext serializes the continuation bound to a
// request group.
func EncodeCallbackContext(cb auction.Callback) ([]byte, error) {
	wire := callbackContextWire{Selector: uint8(cb.Selector)}
	if cb.Candidate != nil {
		wire.Bidder = cb.Candidate.Bidder.Bytes()
		wire.Amount = cb.Candidate.Amount.Bytes()
	}
	data, err := cbor.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode callback context: %w", err)
	}
	return data, nil
}

// DecodeCallbackContext restores a continuation from the host echo.
func DecodeCallbackContext(data []byte) (auction.Callback, error) {
	var wire callbackContextWire
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return auction.Callback{}, fmt.Errorf("decode callback context: %w", err)
	}

	cb := auction.Callback{Selector: auction.Selector(wire.Selector)}
	switch cb.Selector {
	case auction.SelectorStartCallback:
		if len(wire.Bidder) != 0 {
			return auction.Callback{}, fmt.Errorf("start callback context carries a candidate")
		}
	case auction.SelectorBidCallback:
		bidder, err := auction.IdentityFromBytes(wire.Bidder)
		if err != nil {
			return auction.Callback{}, fmt.Errorf("callback context bidder: %w", err)
		}
		amount := new(big.Int).SetBytes(wire.Amount)
		if err := auction.CheckAmount("callback context amount", amount); err != nil {
			return auction.Callback{}, err
		}
		cb.Candidate = &auction.Bid{Bidder: bidder, Amount: amount}
	default:
		return auction.Callback{}, fmt.Errorf("callback context has selector 0x%02x, not a callback", wire.Selector)
	}
	return cb, nil
}
