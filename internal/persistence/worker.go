package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"AuctionLedger/internal/auction"
	"AuctionLedger/internal/observability"
)

// Record mirrors core.Output for persistence. The orchestrator in
// cmd/auctionledger bridges between the two so this package never
// imports the processor.
type Record struct {
	Row   InvocationRow
	State *auction.State
}

// Worker drains the persist channel and batch-writes to Postgres.
// The processor sends on this channel with a BLOCKING send, so if the
// worker falls behind, the processor stalls; no invocation is lost.
// Each flush commits the invocation rows and the latest aggregate
// snapshot in one transaction.
type Worker struct {
	writer       *InvocationLogWriter
	store        *StateStore
	db           *sql.DB
	inputChan    <-chan Record
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan Record,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewInvocationLogWriter(db),
		store:        NewStateStore(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          observability.NewLogger("persistence.worker"),
	}
}

// Writer exposes the log writer for recovery queries.
func (w *Worker) Writer() *InvocationLogWriter {
	return w.writer
}

// Run batches incoming records and flushes when the batch fills or the
// flush timeout expires. Blocks until ctx is cancelled or the channel
// closes.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]Record, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case record, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			batch = append(batch, record)

			if len(batch) >= w.batchSize {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never
// drops records; it retries until the write succeeds or shutdown
// forces one last attempt.
func (w *Worker) flushWithRetry(ctx context.Context, batch []Record) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("rows", len(batch)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, batch); err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return
		}
	}
}

func (w *Worker) flush(ctx context.Context, batch []Record) error {
	start := time.Now()

	rows := make([]InvocationRow, 0, len(batch))
	var latestState *auction.State
	var latestSeq int64
	for _, r := range batch {
		rows = append(rows, r.Row)
		if r.State != nil {
			latestState = r.State
			latestSeq = r.Row.Sequence
		}
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		w.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteBatch(ctx, tx, rows); err != nil {
		w.countError("write_rows")
		return fmt.Errorf("write invocation batch: %w", err)
	}

	if latestState != nil {
		if err := w.store.SaveState(ctx, tx, latestState, latestSeq); err != nil {
			w.countError("save_state")
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		w.countError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistRowsWritten.Add(float64(len(rows)))
		w.metrics.PersistLastSequence.Set(float64(rows[len(rows)-1].Sequence))
		if latestState != nil {
			w.metrics.StateSaves.Inc()
		}
	}

	return nil
}

func (w *Worker) countError(kind string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
