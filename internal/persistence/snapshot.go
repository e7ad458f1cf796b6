package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"AuctionLedger/internal/auction"
)

// StateStore persists the auction aggregate as a single JSON document.
// One engine instance owns one auction, so the table holds one row,
// upserted on every flush; the invocation log is the history.
type StateStore struct {
	db *sql.DB
}

// StateRecord is what LoadState returns: the aggregate plus the
// sequence it was saved at, for resuming the processor.
type StateRecord struct {
	State    *auction.State
	Sequence int64
	SavedAt  time.Time
}

func NewStateStore(db *sql.DB) *StateStore {
	return &StateStore{db: db}
}

// SaveState upserts the aggregate inside the given transaction so the
// snapshot and the invocation rows of one flush commit together.
func (ss *StateStore) SaveState(ctx context.Context, tx *sql.Tx, st *auction.State, sequence int64) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO auction.state (id, sequence, data, saved_at)
		VALUES (TRUE, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET sequence = $1, data = $2, saved_at = NOW()
	`, sequence, data)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState reads the persisted aggregate. Returns nil when the
// auction was never initialized.
func (ss *StateStore) LoadState(ctx context.Context) (*StateRecord, error) {
	var (
		sequence int64
		data     []byte
		savedAt  time.Time
	)
	err := ss.db.QueryRowContext(ctx, `
		SELECT sequence, data, saved_at FROM auction.state WHERE id = TRUE
	`).Scan(&sequence, &data, &savedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	var st auction.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &StateRecord{State: &st, Sequence: sequence, SavedAt: savedAt}, nil
}
