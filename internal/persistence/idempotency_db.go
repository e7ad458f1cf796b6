package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresIdempotencyChecker is the cold tier of invocation dedup,
// backed by the invocation log.
type PostgresIdempotencyChecker struct {
	db *sql.DB
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{
		db: db,
	}
}

// IsDuplicate checks whether the invocation exists in the log.
func (pic *PostgresIdempotencyChecker) IsDuplicate(selector string, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	query := `
        SELECT 1
        FROM auction.invocations
        WHERE selector = $1 AND idempotency_key = $2
        LIMIT 1
    `

	var exists int
	err := pic.db.QueryRowContext(ctx, query, selector, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}
