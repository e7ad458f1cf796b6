package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"AuctionLedger/internal/auction"
)

// QueryService provides read-only access to the auction state snapshot,
// the claims projection and the invocation log. All responses carry
// as_of_sequence so callers can reason about freshness.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetAuction returns the current auction state, or nil when the engine
// has never been initialized.
func (qs *QueryService) GetAuction(ctx context.Context) (*AuctionResponse, error) {
	var (
		data []byte
		seq  int64
	)
	err := qs.db.QueryRowContext(ctx, `
		SELECT data, sequence FROM auction.state WHERE id = TRUE
	`).Scan(&data, &seq)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	var st auction.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	return &AuctionResponse{
		Status:             st.Status.String(),
		Owner:              st.ContractOwner.String(),
		SaleToken:          st.TokenForSale.String(),
		BiddingToken:       st.TokenForBidding.String(),
		TokenAmountForSale: st.TokenAmountForSale.String(),
		ReservePrice:       st.ReservePrice.String(),
		MinIncrement:       st.MinIncrement.String(),
		StartTimeMillis:    st.StartTimeMillis,
		EndTimeMillis:      st.EndTimeMillis,
		HighestBid: BidView{
			Bidder: st.HighestBidder.Bidder.String(),
			Amount: st.HighestBidder.Amount.String(),
		},
		AsOfSequence: seq,
	}, nil
}

// GetClaim returns the claimable balances for one identity from the
// claims projection. Identities without claims get zero balances.
func (qs *QueryService) GetClaim(ctx context.Context, identity auction.Identity) (*ClaimResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp := &ClaimResponse{
		Identity:         identity.String(),
		TokensForBidding: "0",
		TokensForSale:    "0",
		AsOfSequence:     asOfSeq,
	}

	err = qs.db.QueryRowContext(ctx, `
		SELECT tokens_for_bidding::TEXT, tokens_for_sale::TEXT, last_sequence
		FROM auction.claims_view
		WHERE identity = $1
	`, identity.String()).Scan(&resp.TokensForBidding, &resp.TokensForSale, &resp.LastSequence)
	if err == sql.ErrNoRows {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ListClaims returns every identity with a non-zero claim, largest
// bidding-token balance first.
func (qs *QueryService) ListClaims(ctx context.Context, limit int) ([]ClaimResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT identity, tokens_for_bidding::TEXT, tokens_for_sale::TEXT, last_sequence
		FROM auction.claims_view
		WHERE tokens_for_bidding > 0 OR tokens_for_sale > 0
		ORDER BY tokens_for_bidding DESC, identity
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ClaimResponse
	for rows.Next() {
		r := ClaimResponse{AsOfSequence: asOfSeq}
		if err := rows.Scan(&r.Identity, &r.TokensForBidding, &r.TokensForSale, &r.LastSequence); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListInvocations returns invocation log rows newest first, with
// cursor pagination on sequence.
func (qs *QueryService) ListInvocations(
	ctx context.Context,
	limit int,
	beforeSequence *int64,
) ([]InvocationResponse, error) {
	query := `
		SELECT sequence, invocation_id, selector, caller, applied,
		       error_kind, error_msg, group_id, request_count, now_ms,
		       state_hash, recorded_at
		FROM auction.invocations
	`
	var args []interface{}
	argIdx := 1

	if beforeSequence != nil {
		query += fmt.Sprintf(" WHERE sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []InvocationResponse
	for rows.Next() {
		var (
			r          InvocationResponse
			stateHash  []byte
			recordedAt time.Time
		)
		if err := rows.Scan(
			&r.Sequence, &r.InvocationID, &r.Selector, &r.Caller, &r.Applied,
			&r.ErrorKind, &r.ErrorMsg, &r.GroupID, &r.RequestCount, &r.NowMillis,
			&stateHash, &recordedAt,
		); err != nil {
			return nil, err
		}
		r.StateHash = hex.EncodeToString(stateHash)
		r.RecordedAt = recordedAt.UnixMilli()
		results = append(results, r)
	}
	return results, rows.Err()
}

// VerifyIntegrity walks the invocation log and reports sequences whose
// prev_hash does not match the previous row's state_hash.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) FROM auction.invocations
	`).Scan(&report.MaxSequence)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT i1.sequence
		FROM auction.invocations i1
		JOIN auction.invocations i2 ON i2.sequence = i1.sequence - 1
		WHERE i1.prev_hash != i2.state_hash
		ORDER BY i1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM auction.projection_watermark WHERE worker_id = 'claims'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
