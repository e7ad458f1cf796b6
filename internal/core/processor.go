package core

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"AuctionLedger/internal/auction"
	"AuctionLedger/internal/observability"
)

// Output is what one processed invocation leaves behind: the outcome
// for the invocation log, the committed aggregate, and any transfer
// requests the host must perform.
type Output struct {
	Sequence   int64
	Invocation Invocation
	Applied    bool
	ErrorKind  string
	ErrorMsg   string
	State      *auction.State
	Requests   auction.RequestGroup
	StateHash  [32]byte
	PrevHash   [32]byte
}

// Processor is the single-threaded invocation pipeline. It owns the
// auction aggregate: every action and callback is applied here, one at
// a time, in the order the host delivers them. The processor never
// reads the wall clock; time is a versioned input on each invocation.
type Processor struct {
	sequence    int64
	engineID    auction.Identity
	state       *auction.State
	hasher      *StateHasher
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics
	log         zerolog.Logger

	persistChan    chan<- Output
	projectionChan chan<- Output
	transferChan   chan<- Output
}

func NewProcessor(
	engineID auction.Identity,
	initialState *auction.State,
	startSequence int64,
	persistChan, projectionChan, transferChan chan<- Output,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Processor {
	return &Processor{
		sequence:       startSequence,
		engineID:       engineID,
		state:          initialState,
		hasher:         NewStateHasher(),
		idempotency:    NewIdempotencyChecker(100_000, dbChecker),
		metrics:        metrics,
		log:            logger,
		persistChan:    persistChan,
		projectionChan: projectionChan,
		transferChan:   transferChan,
	}
}

// RestoreHashChain continues the hash chain from the last durably
// written invocation instead of the genesis hash.
func (p *Processor) RestoreHashChain(prev [32]byte) {
	p.hasher.Restore(prev)
}

// State returns the committed aggregate, nil before initialize.
// Callers outside the processing goroutine must treat it as read-only.
func (p *Processor) State() *auction.State {
	return p.state
}

// Sequence returns the next local sequence number.
func (p *Processor) Sequence() int64 {
	return p.sequence
}

// Idempotency exposes the dedup checker for warm-up on restart.
func (p *Processor) Idempotency() *IdempotencyChecker {
	return p.idempotency
}

// Process runs one invocation to completion. A precondition violation
// or denied transfer is recorded in the invocation log and returned;
// the committed aggregate is untouched by a failed invocation.
// Duplicates are dropped silently.
func (p *Processor) Process(inv Invocation) error {
	start := time.Now()
	sel := inv.Selector().String()
	key := inv.IdempotencyKey()

	if dup, tier := p.idempotency.IsDuplicate(sel, key); dup {
		if p.metrics != nil {
			p.metrics.IdempotencyDuplicates.WithLabelValues(sel, tier).Inc()
		}
		p.log.Debug().Str("selector", sel).Str("key", key).Str("tier", tier).Msg("duplicate invocation dropped")
		return nil
	}

	newState, group, err := p.dispatch(inv)
	if err != nil {
		kind := auction.ErrorKind(err)
		if kind == "" {
			kind = "internal"
		}
		p.emitRejection(inv, kind, err)
		p.idempotency.MarkProcessed(key)
		return err
	}

	p.recordClaimDeltas(p.state, newState)

	p.state = newState
	digest, derr := json.Marshal(p.state)
	if derr != nil {
		panic(fmt.Sprintf("FATAL: state digest: %v", derr))
	}

	output := Output{
		Sequence:   p.sequence,
		Invocation: inv,
		Applied:    true,
		State:      p.state,
		Requests:   group,
		PrevHash:   p.hasher.GetPrevHash(),
	}
	output.StateHash = p.hasher.ComputeHash(p.sequence, digest)
	p.sequence++

	// Persist: blocking send, the processor stalls until the writer
	// drains. No applied invocation may be lost.
	p.persistChan <- output

	// Projections: non-blocking, rebuildable from the invocation log.
	select {
	case p.projectionChan <- output:
	default:
		if p.metrics != nil {
			p.metrics.ProjectionDrops.Inc()
		}
	}

	// Transfers: blocking send. A dropped request would strand escrow
	// funds, so backpressure from the publisher stalls the processor.
	if !group.Empty() {
		p.transferChan <- output
		if p.metrics != nil {
			p.metrics.TransferRequests.WithLabelValues(sel).Add(float64(len(group.Requests)))
		}
	}

	p.idempotency.MarkProcessed(key)

	if p.metrics != nil {
		p.metrics.InvocationsApplied.WithLabelValues(sel).Inc()
		p.metrics.InvocationDuration.WithLabelValues(sel).Observe(time.Since(start).Seconds())
		p.metrics.ProcessorSequence.Set(float64(p.sequence))
		p.metrics.AuctionStatus.Set(float64(p.state.Status))
		p.metrics.DedupLRUSize.Set(float64(p.idempotency.Size()))
	}

	p.log.Info().
		Int64("sequence", output.Sequence).
		Str("selector", sel).
		Str("status", p.state.Status.String()).
		Int("requests", len(group.Requests)).
		Msg("invocation applied")

	return nil
}

func (p *Processor) dispatch(inv Invocation) (*auction.State, auction.RequestGroup, error) {
	switch v := inv.(type) {
	case *Action:
		return p.dispatchAction(v)
	case *CallbackDelivery:
		return p.dispatchCallback(v)
	default:
		return nil, auction.RequestGroup{}, fmt.Errorf("unknown invocation type %T", inv)
	}
}

func (p *Processor) dispatchAction(a *Action) (*auction.State, auction.RequestGroup, error) {
	ctx := auction.Context{Caller: a.Caller, Engine: p.engineID, NowMillis: a.NowMillis}
	none := auction.RequestGroup{}

	if a.Sel == auction.SelectorInitialize {
		if p.state != nil {
			return nil, none, fmt.Errorf("%w: auction already initialized", auction.ErrPreconditionViolation)
		}
		if a.Init == nil {
			return nil, none, fmt.Errorf("%w: initialize without parameters", auction.ErrPreconditionViolation)
		}
		st, err := auction.Initialize(ctx, *a.Init)
		return st, none, err
	}

	if p.state == nil {
		return nil, none, fmt.Errorf("%w: auction not initialized", auction.ErrPreconditionViolation)
	}

	switch a.Sel {
	case auction.SelectorStart:
		return auction.Start(ctx, p.state)
	case auction.SelectorBid:
		return auction.PlaceBid(ctx, p.state, a.BidAmount)
	case auction.SelectorClaim:
		return auction.Claim(ctx, p.state)
	case auction.SelectorExecute:
		st, err := auction.Execute(ctx, p.state)
		return st, none, err
	case auction.SelectorCancel:
		st, err := auction.Cancel(ctx, p.state)
		return st, none, err
	default:
		return nil, none, fmt.Errorf("%w: unknown action selector 0x%02x", auction.ErrPreconditionViolation, uint8(a.Sel))
	}
}

func (p *Processor) dispatchCallback(d *CallbackDelivery) (*auction.State, auction.RequestGroup, error) {
	none := auction.RequestGroup{}
	if p.state == nil {
		return nil, none, fmt.Errorf("%w: auction not initialized", auction.ErrPreconditionViolation)
	}
	ctx := auction.Context{Caller: p.engineID, Engine: p.engineID, NowMillis: d.NowMillis}

	switch d.Sel {
	case auction.SelectorStartCallback:
		st, err := auction.StartCallback(ctx, p.state, d.Success)
		p.recordVerdict(d)
		return st, none, err
	case auction.SelectorBidCallback:
		if d.Candidate == nil {
			return nil, none, fmt.Errorf("%w: bid callback without candidate context", auction.ErrPreconditionViolation)
		}
		st, err := auction.BidCallback(ctx, p.state, d.Success, *d.Candidate)
		p.recordVerdict(d)
		return st, none, err
	default:
		return nil, none, fmt.Errorf("%w: unknown callback selector 0x%02x", auction.ErrPreconditionViolation, uint8(d.Sel))
	}
}

// recordClaimDeltas diffs the claim ledgers of the outgoing and
// incoming state to count credits and settlements.
func (p *Processor) recordClaimDeltas(prev, next *auction.State) {
	if p.metrics == nil || prev == nil || next == nil {
		return
	}
	for id, after := range next.Claims {
		before := prev.Claims[id]
		if grew(before.TokensForBidding, after.TokensForBidding) {
			p.metrics.ClaimCredits.WithLabelValues("bidding").Inc()
		}
		if grew(before.TokensForSale, after.TokensForSale) {
			p.metrics.ClaimCredits.WithLabelValues("sale").Inc()
		}
		if owed(before) && !owed(after) {
			p.metrics.ClaimSettlements.Inc()
		}
	}
}

func grew(before, after *big.Int) bool {
	if after == nil {
		return false
	}
	if before == nil {
		return after.Sign() > 0
	}
	return after.Cmp(before) > 0
}

func owed(c auction.TokenClaim) bool {
	return (c.TokensForBidding != nil && c.TokensForBidding.Sign() > 0) ||
		(c.TokensForSale != nil && c.TokensForSale.Sign() > 0)
}

func (p *Processor) recordVerdict(d *CallbackDelivery) {
	if p.metrics == nil {
		return
	}
	verdict := "success"
	if !d.Success {
		verdict = "failure"
	}
	p.metrics.CallbackVerdicts.WithLabelValues(d.Sel.String(), verdict).Inc()
}

func (p *Processor) emitRejection(inv Invocation, kind string, err error) {
	sel := inv.Selector().String()

	if p.metrics != nil {
		p.metrics.InvocationsRejected.WithLabelValues(sel, kind).Inc()
	}
	p.log.Warn().
		Str("selector", sel).
		Str("kind", kind).
		Err(err).
		Msg("invocation rejected")

	// Rejections land in the invocation log too; the aborted state
	// does not. They carry the chain tip unchanged so the hash chain
	// stays continuous across rejected rows.
	tip := p.hasher.GetPrevHash()
	p.persistChan <- Output{
		Sequence:   p.sequence,
		Invocation: inv,
		Applied:    false,
		ErrorKind:  kind,
		ErrorMsg:   err.Error(),
		State:      p.state,
		StateHash:  tip,
		PrevHash:   tip,
	}
	p.sequence++
	if p.metrics != nil {
		p.metrics.ProcessorSequence.Set(float64(p.sequence))
	}
}
