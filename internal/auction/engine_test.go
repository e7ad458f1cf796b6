package auction_test

import (
	"errors"
	"math/big"
	"testing"

	"AuctionLedger/internal/auction"
)

// ============================================================
// Test fixtures
// ============================================================

var (
	owner   = accountIdentity("owner")
	bidderA = accountIdentity("bidder-a")
	bidderB = accountIdentity("bidder-b")
	bidderC = accountIdentity("bidder-c")

	engineID     = contractIdentity("auction-engine")
	saleToken    = contractIdentity("sale-token")
	biddingToken = contractIdentity("bidding-token")
)

func accountIdentity(seed string) auction.Identity {
	id := auction.Identity{Kind: auction.KindAccount}
	copy(id.Raw[:], seed)
	return id
}

func contractIdentity(seed string) auction.Identity {
	id := auction.Identity{Kind: auction.KindPublicContract}
	copy(id.Raw[:], seed)
	return id
}

func amt(v int64) *big.Int { return big.NewInt(v) }

func ctxAt(caller auction.Identity, nowMs int64) auction.Context {
	return auction.Context{Caller: caller, Engine: engineID, NowMillis: nowMs}
}

func defaultParams() auction.Params {
	return auction.Params{
		TokenAmountForSale: amt(1000),
		TokenForSale:       saleToken,
		TokenForBidding:    biddingToken,
		ReservePrice:       amt(50),
		MinIncrement:       amt(5),
		DurationHours:      2,
	}
}

// mustInit creates a fresh aggregate at t=0.
func mustInit(t *testing.T) *auction.State {
	t.Helper()
	st, err := auction.Initialize(ctxAt(owner, 0), defaultParams())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return st
}

// mustOpen runs initialize, start and a confirmed start callback.
func mustOpen(t *testing.T) *auction.State {
	t.Helper()
	st := mustInit(t)
	st, group, err := auction.Start(ctxAt(owner, 0), st)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(group.Requests) != 1 {
		t.Fatalf("start emitted %d requests, want 1", len(group.Requests))
	}
	st, err = auction.StartCallback(ctxAt(owner, 0), st, true)
	if err != nil {
		t.Fatalf("start callback: %v", err)
	}
	return st
}

// mustBid places and confirms a bid at the given time.
func mustBid(t *testing.T, st *auction.State, bidder auction.Identity, amount int64, nowMs int64) *auction.State {
	t.Helper()
	st, group, err := auction.PlaceBid(ctxAt(bidder, nowMs), st, amt(amount))
	if err != nil {
		t.Fatalf("bid %d by %s: %v", amount, bidder, err)
	}
	cb := group.Callback
	if cb == nil || cb.Selector != auction.SelectorBidCallback || cb.Candidate == nil {
		t.Fatalf("bid did not bind a bid callback with a candidate: %+v", cb)
	}
	st, err = auction.BidCallback(ctxAt(bidder, nowMs), st, true, *cb.Candidate)
	if err != nil {
		t.Fatalf("bid callback for %d by %s: %v", amount, bidder, err)
	}
	return st
}

func wantClaim(t *testing.T, st *auction.State, id auction.Identity, bidding, sale int64) {
	t.Helper()
	entry, ok := st.Claims.Get(id)
	if !ok {
		if bidding == 0 && sale == 0 {
			return
		}
		t.Fatalf("no claim entry for %s, want bidding=%d sale=%d", id, bidding, sale)
	}
	if entry.TokensForBidding.Cmp(amt(bidding)) != 0 || entry.TokensForSale.Cmp(amt(sale)) != 0 {
		t.Fatalf("claim for %s = (bidding=%s, sale=%s), want (%d, %d)",
			id, entry.TokensForBidding, entry.TokensForSale, bidding, sale)
	}
}

// ============================================================
// Initialize
// ============================================================

func TestInitializeSetsCreationState(t *testing.T) {
	st := mustInit(t)

	if st.Status != auction.StatusCreation {
		t.Errorf("status = %s, want creation", st.Status)
	}
	if st.ContractOwner != owner {
		t.Errorf("owner = %s, want %s", st.ContractOwner, owner)
	}
	if st.StartTimeMillis != 0 || st.EndTimeMillis != 2*3600*1000 {
		t.Errorf("window = [%d, %d], want [0, %d]", st.StartTimeMillis, st.EndTimeMillis, 2*3600*1000)
	}
	if st.HighestBidder.Bidder != owner || st.HighestBidder.Amount.Sign() != 0 {
		t.Errorf("sentinel highest bid = %+v, want owner with 0", st.HighestBidder)
	}
	if len(st.Claims) != 0 {
		t.Errorf("fresh ledger has %d entries, want 0", len(st.Claims))
	}
}

func TestInitializeRejectsNonContractTokens(t *testing.T) {
	p := defaultParams()
	p.TokenForSale = bidderA // an account, not a token contract
	if _, err := auction.Initialize(ctxAt(owner, 0), p); !errors.Is(err, auction.ErrPreconditionViolation) {
		t.Errorf("sale token as account: err = %v, want precondition violation", err)
	}

	p = defaultParams()
	p.TokenForBidding = auction.Identity{Kind: auction.KindZkContract}
	if _, err := auction.Initialize(ctxAt(owner, 0), p); !errors.Is(err, auction.ErrPreconditionViolation) {
		t.Errorf("bidding token as zk contract: err = %v, want precondition violation", err)
	}
}

func TestInitializeRejectsZeroDuration(t *testing.T) {
	p := defaultParams()
	p.DurationHours = 0
	if _, err := auction.Initialize(ctxAt(owner, 0), p); !errors.Is(err, auction.ErrPreconditionViolation) {
		t.Errorf("err = %v, want precondition violation", err)
	}
}

func TestInitializeRejectsOversizedAmounts(t *testing.T) {
	p := defaultParams()
	p.ReservePrice = new(big.Int).Lsh(big.NewInt(1), 129)
	if _, err := auction.Initialize(ctxAt(owner, 0), p); !errors.Is(err, auction.ErrPreconditionViolation) {
		t.Errorf("err = %v, want precondition violation", err)
	}
}

// ============================================================
// Start and its callback
// ============================================================

func TestStartEscrowsTheLot(t *testing.T) {
	st := mustInit(t)
	next, group, err := auction.Start(ctxAt(owner, 10), st)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if next.Status != auction.StatusCreation {
		t.Errorf("status changed to %s before the callback", next.Status)
	}
	if len(group.Requests) != 1 {
		t.Fatalf("emitted %d requests, want 1", len(group.Requests))
	}
	req := group.Requests[0]
	if req.Token != saleToken {
		t.Errorf("request token = %s, want sale token", req.Token)
	}
	if req.Selector != auction.TokenSelectorTransferFrom {
		t.Errorf("request selector = 0x%02x, want transfer_from", req.Selector)
	}
	if req.From == nil || *req.From != owner || req.To != engineID {
		t.Errorf("request moves %v -> %s, want owner -> engine", req.From, req.To)
	}
	if req.Amount.Cmp(amt(1000)) != 0 {
		t.Errorf("request amount = %s, want 1000", req.Amount)
	}
	if group.Callback == nil || group.Callback.Selector != auction.SelectorStartCallback {
		t.Errorf("callback binding = %+v, want start callback", group.Callback)
	}
}

func TestStartRejectsNonOwner(t *testing.T) {
	st := mustInit(t)
	if _, _, err := auction.Start(ctxAt(bidderA, 0), st); !errors.Is(err, auction.ErrPreconditionViolation) {
		t.Errorf("err = %v, want precondition violation", err)
	}
}

func TestStartRejectsOutsideCreation(t *testing.T) {
	st := mustOpen(t)
	if _, _, err := auction.Start(ctxAt(owner, 0), st); !errors.Is(err, auction.ErrPreconditionViolation) {
		t.Errorf("second start: err = %v, want precondition violation", err)
	}
}

func TestStartCallbackPromotesOnSuccess(t *testing.T) {
	st := mustInit(t)
	next, err := auction.StartCallback(ctxAt(owner, 0), st, true)
	if err != nil {
		t.Fatalf("start callback: %v", err)
	}
	if next.Status != auction.StatusBidding {
		t.Errorf("status = %s, want bidding", next.Status)
	}
	if st.Status != auction.StatusCreation {
		t.Errorf("callback mutated its input state")
	}
}

func TestStartCallbackDeniedAborts(t *testing.T) {
	st := mustInit(t)
	next, err := auction.StartCallback(ctxAt(owner, 0), st, false)
	if !errors.Is(err, auction.ErrTransferDenied) {
		t.Errorf("err = %v, want transfer denied", err)
	}
	if next != nil {
		t.Errorf("denied callback returned a state")
	}
}

// ============================================================
// Bid and its callback
// ============================================================

func TestPlaceBidEmitsEscrowPullOnly(t *testing.T) {
	st := mustOpen(t)
	next, group, err := auction.PlaceBid(ctxAt(bidderA, 100), st, amt(60))
	if err != nil {
		t.Fatalf("bid: %v", err)
	}

	if next.HighestBidder.Bidder != owner {
		t.Errorf("highest bid changed before confirmation")
	}
	if len(group.Requests) != 1 {
		t.Fatalf("emitted %d requests, want 1", len(group.Requests))
	}
	req := group.Requests[0]
	if req.Token != biddingToken || req.Selector != auction.TokenSelectorTransferFrom {
		t.Errorf("request = %+v, want transfer_from on bidding token", req)
	}
	cand := group.Callback.Candidate
	if cand.Bidder != bidderA || cand.Amount.Cmp(amt(60)) != 0 {
		t.Errorf("candidate = %+v, want bidder A with 60", cand)
	}
}

func TestBidCallbackDeniedLeavesNoTrace(t *testing.T) {
	st := mustOpen(t)
	cand := auction.Bid{Bidder: bidderA, Amount: amt(60)}
	if _, err := auction.BidCallback(ctxAt(bidderA, 100), st, false, cand); !errors.Is(err, auction.ErrTransferDenied) {
		t.Fatalf("err = %v, want transfer denied", err)
	}
	if _, ok := st.Claims.Get(bidderA); ok {
		t.Errorf("denied bid left a ledger entry")
	}
	if st.HighestBidder.Bidder != owner {
		t.Errorf("denied bid changed the highest bid")
	}
}

func TestWinningBidRefundsPreviousHighest(t *testing.T) {
	st := mustOpen(t)
	st = mustBid(t, st, bidderA, 60, 100)

	if st.HighestBidder.Bidder != bidderA || st.HighestBidder.Amount.Cmp(amt(60)) != 0 {
		t.Fatalf("highest = %+v, want bidder A with 60", st.HighestBidder)
	}
	// the sentinel owner bid is refunded its zero amount
	wantClaim(t, st, owner, 0, 0)

	st = mustBid(t, st, bidderC, 70, 200)
	if st.HighestBidder.Bidder != bidderC {
		t.Fatalf("highest = %+v, want bidder C", st.HighestBidder)
	}
	wantClaim(t, st, bidderA, 60, 0)
}

func TestBidBelowIncrementIsRefunded(t *testing.T) {
	st := mustOpen(t)
	st = mustBid(t, st, bidderA, 60, 100)
	st = mustBid(t, st, bidderB, 63, 150) // needs 65

	if st.HighestBidder.Bidder != bidderA {
		t.Errorf("highest = %+v, want bidder A unchanged", st.HighestBidder)
	}
	wantClaim(t, st, bidderB, 63, 0)
}

func TestBidEqualToHighestIsRefunded(t *testing.T) {
	st := mustOpen(t)
	st = mustBid(t, st, bidderA, 60, 100)
	st = mustBid(t, st, bidderB, 60, 150)

	if st.HighestBidder.Bidder != bidderA {
		t.Errorf("highest = %+v, want bidder A unchanged", st.HighestBidder)
	}
	wantClaim(t, st, bidderB, 60, 0)
}

func TestBidBelowReserveIsRefunded(t *testing.T) {
	st := mustOpen(t)
	st = mustBid(t, st, bidderA, 40, 100) // above increment floor of 5, below reserve of 50

	if st.HighestBidder.Bidder != owner {
		t.Errorf("highest = %+v, want sentinel unchanged", st.HighestBidder)
	}
	wantClaim(t, st, bidderA, 40, 0)
}

func TestBidConfirmedAfterWindowIsRefunded(t *testing.T) {
	st := mustOpen(t)
	st = mustBid(t, st, bidderA, 60, st.EndTimeMillis+1)

	if st.HighestBidder.Bidder != owner {
		t.Errorf("late bid took the lead")
	}
	wantClaim(t, st, bidderA, 60, 0)
}

func TestBidConfirmedAfterEndIsRefunded(t *testing.T) {
	st := mustOpen(t)
	st = mustBid(t, st, bidderA, 60, 100)

	// window closes, auction settles, then a straggler verdict lands
	ended, err := auction.Execute(ctxAt(bidderB, st.EndTimeMillis), st)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	late := auction.Bid{Bidder: bidderB, Amount: amt(90)}
	ended, err = auction.BidCallback(ctxAt(bidderB, ended.EndTimeMillis+5), ended, true, late)
	if err != nil {
		t.Fatalf("late bid callback: %v", err)
	}
	if ended.HighestBidder.Bidder != bidderA {
		t.Errorf("straggler bid replaced the winner")
	}
	wantClaim(t, ended, bidderB, 90, 0)
}

func TestHighestBidNeverDecreases(t *testing.T) {
	st := mustOpen(t)
	prev := new(big.Int)
	for i, bid := range []int64{40, 60, 63, 70, 70, 200, 150} {
		st = mustBid(t, st, bidderA, bid, int64(100+i))
		if st.HighestBidder.Amount.Cmp(prev) < 0 {
			t.Fatalf("after bid %d: highest %s < previous %s", bid, st.HighestBidder.Amount, prev)
		}
		prev = st.HighestBidder.Amount
	}
	if prev.Cmp(amt(200)) != 0 {
		t.Errorf("final highest = %s, want 200", prev)
	}
}

// ============================================================
// Claim
// ============================================================

func TestClaimPaysOutAndZeroes(t *testing.T) {
	st := mustOpen(t)
	st = mustBid(t, st, bidderA, 60, 100)
	st = mustBid(t, st, bidderC, 70, 200)

	st, group, err := auction.Claim(ctxAt(bidderA, 300), st)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(group.Requests) != 1 {
		t.Fatalf("claim emitted %d requests, want 1", len(group.Requests))
	}
	req := group.Requests[0]
	if req.Selector != auction.TokenSelectorTransfer || req.Token != biddingToken {
		t.Errorf("payout = %+v, want transfer on bidding token", req)
	}
	if req.To != bidderA || req.Amount.Cmp(amt(60)) != 0 {
		t.Errorf("payout pays %s to %s, want 60 to bidder A", req.Amount, req.To)
	}
	if group.Callback != nil {
		t.Errorf("claim bound a callback: %+v", group.Callback)
	}

	// entry is zeroed in place, not removed
	wantClaim(t, st, bidderA, 0, 0)
	if _, ok := st.Claims.Get(bidderA); !ok {
		t.Errorf("claim removed the ledger entry")
	}
}

func TestClaimIsIdempotent(t *testing.T) {
	st := mustOpen(t)
	st = mustBid(t, st, bidderA, 60, 100)
	st = mustBid(t, st, bidderC, 70, 200)

	st, _, err := auction.Claim(ctxAt(bidderA, 300), st)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	st, group, err := auction.Claim(ctxAt(bidderA, 301), st)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !group.Empty() {
		t.Errorf("second claim emitted %d requests, want none", len(group.Requests))
	}
	_ = st
}

func TestClaimWithoutEntryIsNoop(t *testing.T) {
	st := mustOpen(t)
	next, group, err := auction.Claim(ctxAt(bidderB, 100), st)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !group.Empty() {
		t.Errorf("claim for a stranger emitted requests")
	}
	if next.Status != st.Status {
		t.Errorf("no-op claim changed state")
	}
}

func TestClaimPaysBothTokensInOrder(t *testing.T) {
	st := mustOpen(t)
	st = mustBid(t, st, bidderA, 60, 100)
	st = mustBid(t, st, bidderC, 70, 200) // refunds A's 60
	st = mustBid(t, st, bidderA, 80, 300) // A retakes the lead, C refunded
	st, err := auction.Execute(ctxAt(bidderB, st.EndTimeMillis), st)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// A is owed the superseded 60 bid and the 1000-token lot
	st, group, err := auction.Claim(ctxAt(bidderA, st.EndTimeMillis+1), st)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(group.Requests) != 2 {
		t.Fatalf("claim emitted %d requests, want 2", len(group.Requests))
	}
	first, second := group.Requests[0], group.Requests[1]
	if first.Token != biddingToken || first.Amount.Cmp(amt(60)) != 0 {
		t.Errorf("first payout = %+v, want 60 bidding tokens", first)
	}
	if second.Token != saleToken || second.Amount.Cmp(amt(1000)) != 0 {
		t.Errorf("second payout = %+v, want 1000 sale tokens", second)
	}
	if first.Index != 0 || second.Index != 1 {
		t.Errorf("payout order = (%d, %d), want bidding before sale", first.Index, second.Index)
	}
	_ = st
}

// ============================================================
// Execute
// ============================================================

func TestExecuteSettlesAuction(t *testing.T) {
	st := mustOpen(t)
	st = mustBid(t, st, bidderC, 70, 100)

	st, err := auction.Execute(ctxAt(bidderB, st.EndTimeMillis), st)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if st.Status != auction.StatusEnded {
		t.Errorf("status = %s, want ended", st.Status)
	}
	wantClaim(t, st, owner, 70, 0)
	wantClaim(t, st, bidderC, 0, 1000)
}

func TestExecuteBeforeEndRejected(t *testing.T) {
	st := mustOpen(t)
	if _, err := auction.Execute(ctxAt(bidderA, st.EndTimeMillis-1), st); !errors.Is(err, auction.ErrPreconditionViolation) {
		t.Errorf("err = %v, want precondition violation", err)
	}
}

func TestExecuteTwiceRejected(t *testing.T) {
	st := mustOpen(t)
	st, err := auction.Execute(ctxAt(bidderA, st.EndTimeMillis), st)
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if _, err := auction.Execute(ctxAt(bidderA, st.EndTimeMillis+1), st); !errors.Is(err, auction.ErrPreconditionViolation) {
		t.Errorf("second execute: err = %v, want precondition violation", err)
	}
}

func TestExecuteWithoutBidsPaysLotBackToOwner(t *testing.T) {
	st := mustOpen(t)
	st, err := auction.Execute(ctxAt(bidderA, st.EndTimeMillis), st)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	// sentinel highest bidder is the owner: the lot and the zero
	// winning amount both land on the owner's entry
	wantClaim(t, st, owner, 0, 1000)
}

// ============================================================
// Cancel
// ============================================================

func TestCancelRefundsAndReturnsLot(t *testing.T) {
	st := mustOpen(t)
	st = mustBid(t, st, bidderA, 60, 100)

	st, err := auction.Cancel(ctxAt(owner, 200), st)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if st.Status != auction.StatusCancelled {
		t.Errorf("status = %s, want cancelled", st.Status)
	}
	wantClaim(t, st, bidderA, 60, 0)
	wantClaim(t, st, owner, 0, 1000)
}

func TestCancelRejectsNonOwner(t *testing.T) {
	st := mustOpen(t)
	if _, err := auction.Cancel(ctxAt(bidderA, 100), st); !errors.Is(err, auction.ErrPreconditionViolation) {
		t.Errorf("err = %v, want precondition violation", err)
	}
}

func TestCancelAfterWindowRejected(t *testing.T) {
	st := mustOpen(t)
	if _, err := auction.Cancel(ctxAt(owner, st.EndTimeMillis), st); !errors.Is(err, auction.ErrPreconditionViolation) {
		t.Errorf("err = %v, want precondition violation", err)
	}
}

func TestNothingSucceedsAfterCancel(t *testing.T) {
	st := mustOpen(t)
	st, err := auction.Cancel(ctxAt(owner, 100), st)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := auction.Execute(ctxAt(owner, st.EndTimeMillis), st); !errors.Is(err, auction.ErrPreconditionViolation) {
		t.Errorf("execute after cancel: err = %v, want precondition violation", err)
	}
	if _, err := auction.Cancel(ctxAt(owner, 200), st); !errors.Is(err, auction.ErrPreconditionViolation) {
		t.Errorf("second cancel: err = %v, want precondition violation", err)
	}
	// a confirmed bid after cancel is refunded, not promoted
	st = mustBid(t, st, bidderB, 500, 300)
	if st.HighestBidder.Bidder != owner {
		t.Errorf("bid after cancel took the lead")
	}
	wantClaim(t, st, bidderB, 500, 0)
}

// ============================================================
// Full lifecycle scenario
// ============================================================

func TestFullAuctionLifecycle(t *testing.T) {
	st := mustOpen(t)

	st = mustBid(t, st, bidderA, 60, 100) // wins: >= reserve 50, >= 0+5
	st = mustBid(t, st, bidderB, 63, 200) // loses: 63 < 60+5
	st = mustBid(t, st, bidderC, 70, 300) // wins: 70 >= 65

	if st.HighestBidder.Bidder != bidderC || st.HighestBidder.Amount.Cmp(amt(70)) != 0 {
		t.Fatalf("highest = %+v, want bidder C with 70", st.HighestBidder)
	}
	wantClaim(t, st, bidderB, 63, 0)
	wantClaim(t, st, bidderA, 60, 0)

	st, err := auction.Execute(ctxAt(bidderB, st.EndTimeMillis), st)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	wantClaim(t, st, owner, 70, 0)
	wantClaim(t, st, bidderC, 0, 1000)

	// bidding-token conservation: every escrowed amount is owed to
	// exactly one identity
	total := new(big.Int)
	for _, id := range []auction.Identity{owner, bidderA, bidderB, bidderC} {
		if entry, ok := st.Claims.Get(id); ok {
			total.Add(total, entry.TokensForBidding)
		}
	}
	if total.Cmp(amt(60+63+70)) != 0 {
		t.Fatalf("total bidding-token claims = %s, want 193", total)
	}

	st, group, err := auction.Claim(ctxAt(bidderA, st.EndTimeMillis+1), st)
	if err != nil || len(group.Requests) != 1 || group.Requests[0].Amount.Cmp(amt(60)) != 0 {
		t.Fatalf("A claim: err=%v group=%+v, want one 60 bidding payout", err, group.Requests)
	}
	st, group, err = auction.Claim(ctxAt(owner, st.EndTimeMillis+2), st)
	if err != nil || len(group.Requests) != 1 || group.Requests[0].Amount.Cmp(amt(70)) != 0 {
		t.Fatalf("owner claim: err=%v group=%+v, want one 70 bidding payout", err, group.Requests)
	}
	st, group, err = auction.Claim(ctxAt(bidderC, st.EndTimeMillis+3), st)
	if err != nil || len(group.Requests) != 1 || group.Requests[0].Amount.Cmp(amt(1000)) != 0 {
		t.Fatalf("C claim: err=%v group=%+v, want one 1000 sale payout", err, group.Requests)
	}
	_ = st
}
