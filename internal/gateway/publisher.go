package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"AuctionLedger/internal/core"
	"AuctionLedger/internal/observability"
)

// TransferPublisher hands the processor's transfer-request groups to
// the host over JetStream. The host executes the transfers out of band
// and answers on the callback subject.
type TransferPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.Output
	metrics   *observability.Metrics
	log       zerolog.Logger
}

type transferRequestJSON struct {
	RequestID string  `json:"request_id"`
	Token     string  `json:"token"`
	Selector  uint8   `json:"selector"`
	From      *string `json:"from,omitempty"`
	To        string  `json:"to"`
	Amount    string  `json:"amount"`
	Index     int     `json:"index"`
}

type callbackBindingJSON struct {
	Selector uint8  `json:"selector"`
	Context  []byte `json:"context"`
}

// transferGroupJSON is the outbound wire form of one request group.
// The requests of a group must be executed, and their verdict
// delivered, in index order.
type transferGroupJSON struct {
	GroupID      string                `json:"group_id"`
	InvocationID string                `json:"invocation_id"`
	Sequence     int64                 `json:"sequence"`
	Requests     []transferRequestJSON `json:"requests"`
	Callback     *callbackBindingJSON  `json:"callback,omitempty"`
}

func NewTransferPublisher(js jetstream.JetStream, inputChan <-chan core.Output, metrics *observability.Metrics) *TransferPublisher {
	return &TransferPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("gateway.publisher"),
	}
}

// Run drains the processor's transfer channel until it closes or the
// context ends.
func (tp *TransferPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-tp.inputChan:
			if !ok {
				return nil
			}
			if out.Requests.Empty() {
				continue
			}
			if err := tp.publish(ctx, out); err != nil {
				// The group is lost for the host; escrowed funds hang
				// until an operator replays the invocation log.
				if tp.metrics != nil {
					tp.metrics.PublishErrors.Inc()
				}
				tp.log.Error().
					Err(err).
					Str("group_id", out.Requests.GroupID.String()).
					Int64("sequence", out.Sequence).
					Msg("transfer group publish failed")
			}
		}
	}
}

func (tp *TransferPublisher) publish(ctx context.Context, out core.Output) error {
	msg, err := encodeGroup(out)
	if err != nil {
		return err
	}

	subject := TransferSubjectPrefix + out.Invocation.Selector().Short()

	// JetStream acks the publish once the stream stored it; retry a
	// few times before giving up.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if _, lastErr = tp.js.Publish(ctx, subject, msg); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("publish %s: %w", subject, lastErr)
}

func encodeGroup(out core.Output) ([]byte, error) {
	group := out.Requests
	wire := transferGroupJSON{
		GroupID:      group.GroupID.String(),
		InvocationID: out.Invocation.InvocationID().String(),
		Sequence:     out.Sequence,
		Requests:     make([]transferRequestJSON, 0, len(group.Requests)),
	}

	for _, req := range group.Requests {
		j := transferRequestJSON{
			RequestID: req.RequestID.String(),
			Token:     req.Token.String(),
			Selector:  req.Selector,
			To:        req.To.String(),
			Amount:    req.Amount.String(),
			Index:     req.Index,
		}
		if req.From != nil {
			from := req.From.String()
			j.From = &from
		}
		wire.Requests = append(wire.Requests, j)
	}

	if group.Callback != nil {
		contextBytes, err := EncodeCallbackContext(*group.Callback)
		if err != nil {
			return nil, err
		}
		wire.Callback = &callbackBindingJSON{
			Selector: uint8(group.Callback.Selector),
			Context:  contextBytes,
		}
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal transfer group: %w", err)
	}
	return data, nil
}
