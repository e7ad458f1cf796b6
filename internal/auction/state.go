package auction

import (
	"fmt"
	"math/big"
)

// Status is the auction lifecycle phase. Transitions only ever move
// forward: Creation -> Bidding -> Ended or Cancelled.
type Status uint8

const (
	StatusCreation Status = iota
	StatusBidding
	StatusEnded
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCreation:
		return "creation"
	case StatusBidding:
		return "bidding"
	case StatusEnded:
		return "ended"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Bid pairs a bidder with the confirmed amount escrowed for it.
type Bid struct {
	Bidder Identity `json:"bidder"`
	Amount *big.Int `json:"amount"`
}

func (b Bid) clone() Bid {
	return Bid{Bidder: b.Bidder, Amount: new(big.Int).Set(b.Amount)}
}

// State is the whole auction aggregate. Operations never mutate a
// State they were given: they work on a Clone and return it, so a
// failed invocation leaves the committed state untouched.
type State struct {
	ContractOwner      Identity    `json:"contract_owner"`
	StartTimeMillis    int64       `json:"start_time_millis"`
	EndTimeMillis      int64       `json:"end_time_millis"`
	TokenAmountForSale *big.Int    `json:"token_amount_for_sale"`
	TokenForSale       Identity    `json:"token_for_sale"`
	TokenForBidding    Identity    `json:"token_for_bidding"`
	HighestBidder      Bid         `json:"highest_bidder"`
	ReservePrice       *big.Int    `json:"reserve_price"`
	MinIncrement       *big.Int    `json:"min_increment"`
	Claims             ClaimLedger `json:"claim_map"`
	Status             Status      `json:"status"`
}

// Clone deep-copies the aggregate, amounts and ledger included.
func (s *State) Clone() *State {
	out := *s
	out.TokenAmountForSale = new(big.Int).Set(s.TokenAmountForSale)
	out.ReservePrice = new(big.Int).Set(s.ReservePrice)
	out.MinIncrement = new(big.Int).Set(s.MinIncrement)
	out.HighestBidder = s.HighestBidder.clone()
	out.Claims = s.Claims.clone()
	return &out
}
