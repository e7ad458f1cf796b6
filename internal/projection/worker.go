package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"AuctionLedger/internal/auction"
	"AuctionLedger/internal/observability"
)

// Record mirrors the slice of core.Output the projection needs. The
// orchestrator bridges between the two.
type Record struct {
	Sequence int64
	State    *auction.State
}

// Worker maintains auction.claims_view from processed invocations so
// the query API can answer claim lookups without unpacking the state
// document. The feed channel is non-blocking with drop; a fallen-behind
// view is rebuilt from the persisted aggregate.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Record
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan Record, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("projection.worker"),
	}
}

// Run starts the projection loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			if err := w.apply(ctx, record); err != nil {
				// Eventually consistent; the view catches up on the
				// next record or via Rebuild.
				if w.metrics != nil {
					w.metrics.ProjectionErrors.Inc()
				}
				w.log.Warn().Err(err).Int64("sequence", record.Sequence).Msg("projection update failed")
				continue
			}

			w.lastSeq = record.Sequence
			if w.metrics != nil {
				w.metrics.ProjectionUpdates.Inc()
			}
		}
	}
}

func (w *Worker) apply(ctx context.Context, record Record) error {
	if record.State == nil {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for id, entry := range record.State.Claims {
		if err := upsertClaim(ctx, tx, id, entry, record.Sequence); err != nil {
			return fmt.Errorf("claims view: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO auction.projection_watermark (worker_id, last_sequence, updated_at)
		VALUES ('claims', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, record.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func upsertClaim(ctx context.Context, tx *sql.Tx, id auction.Identity, entry auction.TokenClaim, sequence int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO auction.claims_view (identity, tokens_for_bidding, tokens_for_sale, last_sequence, updated_at)
		VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4, NOW())
		ON CONFLICT (identity)
		DO UPDATE SET tokens_for_bidding = $2::NUMERIC, tokens_for_sale = $3::NUMERIC,
		              last_sequence = $4, updated_at = NOW()
	`, id.String(), entry.TokensForBidding.String(), entry.TokensForSale.String(), sequence)
	return err
}

// Rebuild repopulates the claims view from the persisted aggregate
// after drops or a schema reset.
func Rebuild(ctx context.Context, db *sql.DB, st *auction.State, sequence int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE auction.claims_view`); err != nil {
		return fmt.Errorf("truncate claims view: %w", err)
	}

	if st != nil {
		for id, entry := range st.Claims {
			if err := upsertClaim(ctx, tx, id, entry, sequence); err != nil {
				return fmt.Errorf("rebuild claims view: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO auction.projection_watermark (worker_id, last_sequence, updated_at)
		VALUES ('claims', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, sequence); err != nil {
		return fmt.Errorf("rebuild watermark: %w", err)
	}

	return tx.Commit()
}
