package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"AuctionLedger/internal/auction"
	"AuctionLedger/internal/core"
)

// The gateway validates and converts host messages before anything
// reaches the processor, so the processor only ever sees well-formed
// invocations. Field names use snake_case to match the host producers;
// amounts travel as decimal strings because they are 128-bit.

var actionSelectors = map[string]auction.Selector{
	"init":    auction.SelectorInitialize,
	"start":   auction.SelectorStart,
	"bid":     auction.SelectorBid,
	"claim":   auction.SelectorClaim,
	"execute": auction.SelectorExecute,
	"cancel":  auction.SelectorCancel,
}

type actionJSON struct {
	InvocationID string `json:"invocation_id"`
	Caller       string `json:"caller"`
	NowMillis    int64  `json:"now_ms"`

	// bid
	Amount string `json:"amount,omitempty"`

	// init
	TokenAmountForSale string `json:"token_amount_for_sale,omitempty"`
	TokenForSale       string `json:"token_for_sale,omitempty"`
	TokenForBidding    string `json:"token_for_bidding,omitempty"`
	ReservePrice       string `json:"reserve_price,omitempty"`
	MinIncrement       string `json:"min_increment,omitempty"`
	DurationHours      uint32 `json:"duration_hours,omitempty"`
}

type callbackJSON struct {
	DeliveryID string `json:"delivery_id"`
	GroupID    string `json:"group_id"`
	Success    bool   `json:"success"`
	Context    []byte `json:"context"`
	NowMillis  int64  `json:"now_ms"`
}

// ParseMessage converts a raw stream message into a typed invocation.
func ParseMessage(raw RawMessage) (core.Invocation, error) {
	if raw.Subject == CallbackSubject {
		return parseCallback(raw.Data)
	}
	if name, ok := strings.CutPrefix(raw.Subject, ActionSubjectPrefix); ok {
		sel, known := actionSelectors[name]
		if !known {
			return nil, fmt.Errorf("unknown action subject %q", raw.Subject)
		}
		return parseAction(sel, raw.Data)
	}
	return nil, fmt.Errorf("unexpected subject %q", raw.Subject)
}

func parseAction(sel auction.Selector, data []byte) (*core.Action, error) {
	var j actionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse %s: %w", sel, err)
	}

	id, err := uuid.Parse(j.InvocationID)
	if err != nil {
		return nil, fmt.Errorf("parse %s invocation_id: %w", sel, err)
	}
	caller, err := auction.ParseIdentity(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse %s caller: %w", sel, err)
	}
	if j.NowMillis <= 0 {
		return nil, fmt.Errorf("parse %s: now_ms %d is not a timestamp", sel, j.NowMillis)
	}

	action := &core.Action{
		ID:        id,
		Sel:       sel,
		Caller:    caller,
		NowMillis: j.NowMillis,
	}

	switch sel {
	case auction.SelectorBid:
		amount, err := auction.ParseAmount("bid amount", j.Amount)
		if err != nil {
			return nil, err
		}
		action.BidAmount = amount
	case auction.SelectorInitialize:
		params, err := parseInitParams(j)
		if err != nil {
			return nil, err
		}
		action.Init = params
	}

	return action, nil
}

func parseInitParams(j actionJSON) (*auction.Params, error) {
	saleAmount, err := auction.ParseAmount("token_amount_for_sale", j.TokenAmountForSale)
	if err != nil {
		return nil, err
	}
	saleToken, err := auction.ParseIdentity(j.TokenForSale)
	if err != nil {
		return nil, fmt.Errorf("parse token_for_sale: %w", err)
	}
	biddingToken, err := auction.ParseIdentity(j.TokenForBidding)
	if err != nil {
		return nil, fmt.Errorf("parse token_for_bidding: %w", err)
	}
	reserve, err := auction.ParseAmount("reserve_price", j.ReservePrice)
	if err != nil {
		return nil, err
	}
	increment, err := auction.ParseAmount("min_increment", j.MinIncrement)
	if err != nil {
		return nil, err
	}

	return &auction.Params{
		TokenAmountForSale: saleAmount,
		TokenForSale:       saleToken,
		TokenForBidding:    biddingToken,
		ReservePrice:       reserve,
		MinIncrement:       increment,
		DurationHours:      j.DurationHours,
	}, nil
}

func parseCallback(data []byte) (*core.CallbackDelivery, error) {
	var j callbackJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse callback: %w", err)
	}

	deliveryID, err := uuid.Parse(j.DeliveryID)
	if err != nil {
		return nil, fmt.Errorf("parse callback delivery_id: %w", err)
	}
	groupID, err := uuid.Parse(j.GroupID)
	if err != nil {
		return nil, fmt.Errorf("parse callback group_id: %w", err)
	}
	if j.NowMillis <= 0 {
		return nil, fmt.Errorf("parse callback: now_ms %d is not a timestamp", j.NowMillis)
	}

	cb, err := DecodeCallbackContext(j.Context)
	if err != nil {
		return nil, err
	}

	return &core.CallbackDelivery{
		ID:        deliveryID,
		GroupID:   groupID,
		Sel:       cb.Selector,
		Success:   j.Success,
		Candidate: cb.Candidate,
		NowMillis: j.NowMillis,
	}, nil
}
