package query

import "github.com/google/uuid"

// BidView is the highest bid as exposed by the query API. Amounts are
// decimal strings because token amounts can exceed int64.
type BidView struct {
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
}

// AuctionResponse is the full auction state for API queries.
type AuctionResponse struct {
	Status             string  `json:"status"`
	Owner              string  `json:"owner"`
	SaleToken          string  `json:"sale_token"`
	BiddingToken       string  `json:"bidding_token"`
	TokenAmountForSale string  `json:"token_amount_for_sale"`
	ReservePrice       string  `json:"reserve_price"`
	MinIncrement       string  `json:"min_increment"`
	StartTimeMillis    int64   `json:"start_time_ms"`
	EndTimeMillis      int64   `json:"end_time_ms"`
	HighestBid         BidView `json:"highest_bid"`
	AsOfSequence       int64   `json:"as_of_sequence"`
}

// ClaimResponse is one identity's claimable balances from the claims
// projection. Identities with no claims return zero balances.
type ClaimResponse struct {
	Identity         string `json:"identity"`
	TokensForBidding string `json:"tokens_for_bidding"`
	TokensForSale    string `json:"tokens_for_sale"`
	LastSequence     int64  `json:"last_sequence"`
	AsOfSequence     int64  `json:"as_of_sequence"`
}

// InvocationResponse is one row of the invocation log for API queries.
type InvocationResponse struct {
	Sequence     int64     `json:"sequence"`
	InvocationID uuid.UUID `json:"invocation_id"`
	Selector     string    `json:"selector"`
	Caller       *string   `json:"caller,omitempty"`
	Applied      bool      `json:"applied"`
	ErrorKind    *string   `json:"error_kind,omitempty"`
	ErrorMsg     *string   `json:"error_msg,omitempty"`
	GroupID      *string   `json:"group_id,omitempty"`
	RequestCount int       `json:"request_count"`
	NowMillis    int64     `json:"now_ms"`
	StateHash    string    `json:"state_hash"`
	RecordedAt   int64     `json:"recorded_at"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	MaxSequence     int64   `json:"max_sequence"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
}
