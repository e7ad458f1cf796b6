package core

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"AuctionLedger/internal/auction"
)

// Invocation is one serialized unit of work against the auction: an
// action sent by a caller or a callback verdict delivered by the host.
type Invocation interface {
	InvocationID() uuid.UUID
	Selector() auction.Selector
	// IdempotencyKey identifies the invocation for at-most-once
	// processing across restarts.
	IdempotencyKey() string
	TimeMillis() int64
}

// Action is a caller-triggered operation. Exactly one of the payload
// fields matching the selector is set: Init for initialize, BidAmount
// for bid, neither for the rest.
type Action struct {
	ID        uuid.UUID
	Sel       auction.Selector
	Caller    auction.Identity
	NowMillis int64

	Init      *auction.Params
	BidAmount *big.Int
}

func (a *Action) InvocationID() uuid.UUID    { return a.ID }
func (a *Action) Selector() auction.Selector { return a.Sel }
func (a *Action) TimeMillis() int64          { return a.NowMillis }
func (a *Action) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s", a.Sel, a.ID)
}

// CallbackDelivery carries the host's verdict for a request group
// emitted by an earlier action. Candidate is the echoed context of a
// bid confirmation and nil for start confirmations.
type CallbackDelivery struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	Sel       auction.Selector
	Success   bool
	Candidate *auction.Bid
	NowMillis int64
}

func (d *CallbackDelivery) InvocationID() uuid.UUID    { return d.ID }
func (d *CallbackDelivery) Selector() auction.Selector { return d.Sel }
func (d *CallbackDelivery) TimeMillis() int64          { return d.NowMillis }

// Keyed by group so a redelivered verdict for the same transfers is a
// duplicate even under a fresh delivery id.
func (d *CallbackDelivery) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s", d.Sel, d.GroupID)
}
