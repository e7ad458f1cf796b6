package auction

import "math/big"

// Context is what the host supplies on every invocation: who called,
// which identity this engine runs as, and the logical clock.
type Context struct {
	Caller    Identity
	Engine    Identity
	NowMillis int64
}

const millisPerHour = 60 * 60 * 1000

// Params are the creation arguments. All of them are immutable once
// Initialize succeeds.
type Params struct {
	TokenAmountForSale *big.Int
	TokenForSale       Identity
	TokenForBidding    Identity
	ReservePrice       *big.Int
	MinIncrement       *big.Int
	DurationHours      uint32
}

// Initialize creates the aggregate in status Creation with the caller
// as owner and a sentinel highest bid of zero. No transfers move here;
// the lot is escrowed later by Start.
func Initialize(ctx Context, p Params) (*State, error) {
	if p.TokenForSale.Kind != KindPublicContract {
		return nil, preconditionf("token_for_sale %s is not a token contract", p.TokenForSale)
	}
	if p.TokenForBidding.Kind != KindPublicContract {
		return nil, preconditionf("token_for_bidding %s is not a token contract", p.TokenForBidding)
	}
	if err := CheckAmount("token_amount_for_sale", p.TokenAmountForSale); err != nil {
		return nil, err
	}
	if err := CheckAmount("reserve_price", p.ReservePrice); err != nil {
		return nil, err
	}
	if err := CheckAmount("min_increment", p.MinIncrement); err != nil {
		return nil, err
	}
	if p.DurationHours == 0 {
		return nil, preconditionf("auction duration must be at least one hour")
	}

	return &State{
		ContractOwner:      ctx.Caller,
		StartTimeMillis:    ctx.NowMillis,
		EndTimeMillis:      ctx.NowMillis + int64(p.DurationHours)*millisPerHour,
		TokenAmountForSale: new(big.Int).Set(p.TokenAmountForSale),
		TokenForSale:       p.TokenForSale,
		TokenForBidding:    p.TokenForBidding,
		HighestBidder:      Bid{Bidder: ctx.Caller, Amount: new(big.Int)},
		ReservePrice:       new(big.Int).Set(p.ReservePrice),
		MinIncrement:       new(big.Int).Set(p.MinIncrement),
		Claims:             make(ClaimLedger),
		Status:             StatusCreation,
	}, nil
}

// Start escrows the lot: it pulls token_amount_for_sale of the sale
// token from the owner and binds the start callback. The status stays
// Creation until that callback confirms the funds arrived.
func Start(ctx Context, st *State) (*State, RequestGroup, error) {
	if ctx.Caller != st.ContractOwner {
		return nil, RequestGroup{}, preconditionf("start can only be called by the contract owner")
	}
	if st.Status != StatusCreation {
		return nil, RequestGroup{}, preconditionf("start requires status %s, auction is %s", StatusCreation, st.Status)
	}

	group := NewRequestBuilder().
		Pull(st.TokenForSale, ctx.Caller, st.TokenAmountForSale).
		Bind(Callback{Selector: SelectorStartCallback}).
		BuildFor(ctx.Engine)
	return st.Clone(), group, nil
}

// StartCallback promotes the auction to Bidding once the lot transfer
// is confirmed. A denied transfer aborts: an unfunded auction never
// opens for bids.
func StartCallback(ctx Context, st *State, success bool) (*State, error) {
	if !success {
		return nil, ErrTransferDenied
	}
	out := st.Clone()
	out.Status = StatusBidding
	return out, nil
}

// PlaceBid escrows a candidate bid: it pulls the amount of the bidding
// token from the caller and binds the bid callback carrying the
// candidate. The highest bid is untouched until confirmation, so a bid
// whose funds never arrive can never lead.
func PlaceBid(ctx Context, st *State, amount *big.Int) (*State, RequestGroup, error) {
	if err := CheckAmount("bid", amount); err != nil {
		return nil, RequestGroup{}, err
	}

	candidate := Bid{Bidder: ctx.Caller, Amount: new(big.Int).Set(amount)}
	group := NewRequestBuilder().
		Pull(st.TokenForBidding, ctx.Caller, amount).
		Bind(Callback{Selector: SelectorBidCallback, Candidate: &candidate}).
		BuildFor(ctx.Engine)
	return st.Clone(), group, nil
}

// BidCallback applies a confirmed bid. A losing bid (wrong phase, past
// the window, below the increment over the current highest, or below
// the reserve) is refunded through the ledger at once. A winning bid
// refunds the previous highest and takes the lead.
func BidCallback(ctx Context, st *State, success bool, candidate Bid) (*State, error) {
	if !success {
		return nil, ErrTransferDenied
	}
	if err := CheckAmount("bid", candidate.Amount); err != nil {
		return nil, err
	}

	out := st.Clone()
	floor := new(big.Int).Add(out.HighestBidder.Amount, out.MinIncrement)
	losing := out.Status != StatusBidding ||
		ctx.NowMillis >= out.EndTimeMillis ||
		candidate.Amount.Cmp(floor) < 0 ||
		candidate.Amount.Cmp(out.ReservePrice) < 0

	if losing {
		if err := out.Claims.Credit(candidate.Bidder, candidate.Amount, new(big.Int)); err != nil {
			return nil, err
		}
		return out, nil
	}

	prev := out.HighestBidder
	if err := out.Claims.Credit(prev.Bidder, prev.Amount, new(big.Int)); err != nil {
		return nil, err
	}
	out.HighestBidder = candidate.clone()
	return out, nil
}

// Claim pays out whatever the ledger owes the caller: a bidding-token
// push, a sale-token push, both, or nothing. The entry is zeroed
// synchronously; the payout transfers carry no callback.
func Claim(ctx Context, st *State) (*State, RequestGroup, error) {
	out := st.Clone()
	owed, ok := out.Claims.Settle(ctx.Caller)
	if !ok || owed.IsZero() {
		return out, RequestGroup{}, nil
	}

	b := NewRequestBuilder()
	if owed.TokensForBidding.Sign() > 0 {
		b.Push(st.TokenForBidding, ctx.Caller, owed.TokensForBidding)
	}
	if owed.TokensForSale.Sign() > 0 {
		b.Push(st.TokenForSale, ctx.Caller, owed.TokensForSale)
	}
	return out, b.BuildFor(ctx.Engine), nil
}

// Execute settles an auction whose window has closed: the owner is
// owed the winning bid amount and the leading bidder is owed the lot.
// Anyone may trigger it.
func Execute(ctx Context, st *State) (*State, error) {
	if ctx.NowMillis < st.EndTimeMillis {
		return nil, preconditionf("the auction is still running, ends at %d ms", st.EndTimeMillis)
	}
	if st.Status != StatusBidding {
		return nil, preconditionf("execute requires status %s, auction is %s", StatusBidding, st.Status)
	}

	out := st.Clone()
	out.Status = StatusEnded
	if err := out.Claims.Credit(out.ContractOwner, out.HighestBidder.Amount, new(big.Int)); err != nil {
		return nil, err
	}
	if err := out.Claims.Credit(out.HighestBidder.Bidder, new(big.Int), out.TokenAmountForSale); err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel lets the owner call the auction off while it is still
// running: the leading bidder is refunded and the lot goes back to the
// owner, both through the ledger.
func Cancel(ctx Context, st *State) (*State, error) {
	if ctx.Caller != st.ContractOwner {
		return nil, preconditionf("cancel can only be called by the contract owner")
	}
	if ctx.NowMillis >= st.EndTimeMillis {
		return nil, preconditionf("the auction window has closed, use execute")
	}
	if st.Status != StatusBidding {
		return nil, preconditionf("cancel requires status %s, auction is %s", StatusBidding, st.Status)
	}

	out := st.Clone()
	out.Status = StatusCancelled
	if err := out.Claims.Credit(out.HighestBidder.Bidder, out.HighestBidder.Amount, new(big.Int)); err != nil {
		return nil, err
	}
	if err := out.Claims.Credit(out.ContractOwner, new(big.Int), out.TokenAmountForSale); err != nil {
		return nil, err
	}
	return out, nil
}
