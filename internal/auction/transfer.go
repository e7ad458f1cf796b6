package auction

import (
	"math/big"

	"github.com/google/uuid"
)

// Invocation selectors on the auction surface. Odd values are actions
// callers send, even values are the callbacks bound to transfers.
type Selector uint8

const (
	SelectorInitialize    Selector = 0x00
	SelectorStart         Selector = 0x01
	SelectorStartCallback Selector = 0x02
	SelectorBid           Selector = 0x03
	SelectorBidCallback   Selector = 0x04
	SelectorClaim         Selector = 0x05
	SelectorExecute       Selector = 0x06
	SelectorCancel        Selector = 0x07
)

func (s Selector) String() string {
	switch s {
	case SelectorInitialize:
		return "initialize"
	case SelectorStart:
		return "start"
	case SelectorStartCallback:
		return "start_callback"
	case SelectorBid:
		return "bid"
	case SelectorBidCallback:
		return "bid_callback"
	case SelectorClaim:
		return "claim"
	case SelectorExecute:
		return "execute"
	case SelectorCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Shortnames used in subjects and logs.
var selectorShort = map[Selector]string{
	SelectorInitialize: "init",
	SelectorStart:      "start",
	SelectorBid:        "bid",
	SelectorClaim:      "claim",
	SelectorExecute:    "execute",
	SelectorCancel:     "cancel",
}

// Short returns the subject token for an action selector.
func (s Selector) Short() string {
	if short, ok := selectorShort[s]; ok {
		return short
	}
	return s.String()
}

// Selectors on the token contracts this engine drives.
const (
	TokenSelectorTransfer     uint8 = 0x01
	TokenSelectorTransferFrom uint8 = 0x03
)

// TransferRequest asks the host to move tokens on a token contract.
// From is set only for transfer_from pulls; plain transfers spend the
// engine's own balance.
type TransferRequest struct {
	RequestID uuid.UUID `json:"request_id"`
	Token     Identity  `json:"token"`
	Selector  uint8     `json:"selector"`
	From      *Identity `json:"from,omitempty"`
	To        Identity  `json:"to"`
	Amount    *big.Int  `json:"amount"`
	Index     int       `json:"index"`
}

// Callback names the continuation the host must invoke once the
// transfers of a group have settled. Candidate carries the pending bid
// for bid confirmations and is nil for start confirmations.
type Callback struct {
	Selector  Selector
	Candidate *Bid
}

// RequestGroup is everything one invocation asked of the host: zero or
// more transfers, in emission order, plus at most one bound callback.
// GroupID keys the eventual verdict back to this group.
type RequestGroup struct {
	GroupID  uuid.UUID
	Requests []TransferRequest
	Callback *Callback
}

// Empty reports whether the invocation requested nothing.
func (g RequestGroup) Empty() bool {
	return len(g.Requests) == 0 && g.Callback == nil
}

// RequestBuilder accumulates the transfers of a single invocation.
// Emission order is the order of the Pull/Push calls.
type RequestBuilder struct {
	group RequestGroup
}

func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{group: RequestGroup{GroupID: uuid.New()}}
}

// Pull requests transfer_from: token moves amount from the given
// identity into the engine's escrow.
func (b *RequestBuilder) Pull(token, from Identity, amount *big.Int) *RequestBuilder {
	fromCopy := from
	b.group.Requests = append(b.group.Requests, TransferRequest{
		RequestID: uuid.New(),
		Token:     token,
		Selector:  TokenSelectorTransferFrom,
		From:      &fromCopy,
		To:        Identity{}, // filled by BuildFor with the engine identity
		Amount:    new(big.Int).Set(amount),
		Index:     len(b.group.Requests),
	})
	return b
}

// Push requests transfer: token moves amount from the engine's escrow
// to the recipient.
func (b *RequestBuilder) Push(token, to Identity, amount *big.Int) *RequestBuilder {
	b.group.Requests = append(b.group.Requests, TransferRequest{
		RequestID: uuid.New(),
		Token:     token,
		Selector:  TokenSelectorTransfer,
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Index:     len(b.group.Requests),
	})
	return b
}

// Bind attaches the callback continuation. A group carries at most
// one; binding twice is a programming error.
func (b *RequestBuilder) Bind(cb Callback) *RequestBuilder {
	if b.group.Callback != nil {
		panic("auction: request group already has a callback bound")
	}
	b.group.Callback = &cb
	return b
}

// BuildFor finalizes the group, addressing pulls to the engine
// identity given.
func (b *RequestBuilder) BuildFor(engine Identity) RequestGroup {
	for i := range b.group.Requests {
		if b.group.Requests[i].From != nil {
			b.group.Requests[i].To = engine
		}
	}
	return b.group
}
