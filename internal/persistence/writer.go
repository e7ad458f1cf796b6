package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvocationLogWriter appends processed invocations to the durable log
// in Postgres using multi-row INSERT. The log doubles as the cold tier
// of the idempotency check and as the audit trail of every applied and
// rejected invocation.
type InvocationLogWriter struct {
	db *sql.DB
}

// InvocationRow is one row in auction.invocations.
type InvocationRow struct {
	Sequence       int64
	InvocationID   uuid.UUID
	IdempotencyKey string
	Selector       string
	Caller         *string
	Applied        bool
	ErrorKind      *string
	ErrorMsg       *string
	GroupID        *string
	RequestCount   int
	NowMillis      int64
	StateHash      []byte
	PrevHash       []byte
	RecordedAt     time.Time
}

func NewInvocationLogWriter(db *sql.DB) *InvocationLogWriter {
	return &InvocationLogWriter{db: db}
}

// WriteBatch inserts a batch of rows inside the given transaction.
// Conflicts on invocation_id are skipped so a replayed flush after a
// crash stays idempotent.
func (w *InvocationLogWriter) WriteBatch(ctx context.Context, tx *sql.Tx, rows []InvocationRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO auction.invocations
		(sequence, invocation_id, idempotency_key, selector, caller, applied,
		 error_kind, error_msg, group_id, request_count, now_ms, state_hash, prev_hash, recorded_at)
		VALUES `

	const cols = 14
	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*cols)

	for i, r := range rows {
		base := i * cols
		placeholders := make([]string, cols)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", base+c+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
		args = append(args,
			r.Sequence, r.InvocationID, r.IdempotencyKey, r.Selector, r.Caller, r.Applied,
			r.ErrorKind, r.ErrorMsg, r.GroupID, r.RequestCount, r.NowMillis, r.StateHash, r.PrevHash, r.RecordedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (invocation_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// RecentIdempotencyKeys returns the newest keys for warming the dedup
// LRU on restart.
func (w *InvocationLogWriter) RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT idempotency_key
		FROM auction.invocations
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent idempotency keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// MaxSequence returns the highest durably written sequence, or -1 for
// an empty log.
func (w *InvocationLogWriter) MaxSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM auction.invocations`).Scan(&seq)
	if err != nil {
		return -1, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

// LastStateHash returns the hash-chain tip of the invocation log, or
// nil for an empty log.
func (w *InvocationLogWriter) LastStateHash(ctx context.Context) ([]byte, error) {
	var hash []byte
	err := w.db.QueryRowContext(ctx, `
		SELECT state_hash FROM auction.invocations ORDER BY sequence DESC LIMIT 1
	`).Scan(&hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return hash, nil
}
