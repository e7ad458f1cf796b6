package auction_test

import (
	"testing"

	"AuctionLedger/internal/auction"
)

// ============================================================
// Request builder
// ============================================================

func TestBuilderAssignsEmissionOrder(t *testing.T) {
	group := auction.NewRequestBuilder().
		Push(biddingToken, bidderA, amt(60)).
		Push(saleToken, bidderA, amt(1000)).
		BuildFor(engineID)

	if len(group.Requests) != 2 {
		t.Fatalf("got %d requests, want 2", len(group.Requests))
	}
	for i, req := range group.Requests {
		if req.Index != i {
			t.Errorf("request %d has index %d", i, req.Index)
		}
		if req.RequestID == group.GroupID {
			t.Errorf("request %d reuses the group id", i)
		}
	}
	if group.Requests[0].RequestID == group.Requests[1].RequestID {
		t.Error("requests share an id")
	}
}

func TestBuilderAddressesPullsToEngine(t *testing.T) {
	group := auction.NewRequestBuilder().
		Pull(biddingToken, bidderA, amt(60)).
		BuildFor(engineID)

	req := group.Requests[0]
	if req.Selector != auction.TokenSelectorTransferFrom {
		t.Errorf("selector = 0x%02x, want transfer_from", req.Selector)
	}
	if req.From == nil || *req.From != bidderA {
		t.Errorf("from = %v, want bidder A", req.From)
	}
	if req.To != engineID {
		t.Errorf("to = %s, want the engine identity", req.To)
	}
}

func TestBuilderCopiesAmounts(t *testing.T) {
	amount := amt(60)
	group := auction.NewRequestBuilder().
		Pull(biddingToken, bidderA, amount).
		BuildFor(engineID)

	amount.SetInt64(999)
	if group.Requests[0].Amount.Cmp(amt(60)) != 0 {
		t.Errorf("request amount aliases the caller's value: %s", group.Requests[0].Amount)
	}
}

func TestBuilderRejectsSecondCallback(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("second Bind did not panic")
		}
	}()
	auction.NewRequestBuilder().
		Bind(auction.Callback{Selector: auction.SelectorStartCallback}).
		Bind(auction.Callback{Selector: auction.SelectorBidCallback})
}

func TestEmptyGroup(t *testing.T) {
	group := auction.NewRequestBuilder().BuildFor(engineID)
	if !group.Empty() {
		t.Error("fresh group is not empty")
	}
}

// ============================================================
// Selectors
// ============================================================

func TestSelectorNames(t *testing.T) {
	cases := map[auction.Selector]string{
		auction.SelectorStart:         "start",
		auction.SelectorStartCallback: "start_callback",
		auction.SelectorBid:           "bid",
		auction.SelectorBidCallback:   "bid_callback",
		auction.SelectorClaim:         "claim",
		auction.SelectorExecute:       "execute",
		auction.SelectorCancel:        "cancel",
		auction.Selector(0xff):        "unknown",
	}
	for sel, want := range cases {
		if got := sel.String(); got != want {
			t.Errorf("Selector(0x%02x).String() = %q, want %q", uint8(sel), got, want)
		}
	}
}
