package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// DistributionStore implements domain.DistributionStore using PostgreSQL.
type DistributionStore struct {
	pool *pgxpool.Pool
}

// NewDistributionStore creates a new DistributionStore backed by the given pool.
func NewDistributionStore(pool *pgxpool.Pool) *DistributionStore {
	return &DistributionStore{pool: pool}
}

// RecordDisbursement upserts one (market, user) disbursement row. A succeeded
// row is never downgraded: once a payout is recorded as successful, later
// writes for the same pair keep it successful.
func (s *DistributionStore) RecordDisbursement(ctx context.Context, d domain.Disbursement) error {
	const query = `
		INSERT INTO disbursements (market_id, user_addr, amount, signature, succeeded, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_id, user_addr) DO UPDATE SET
			amount     = EXCLUDED.amount,
			signature  = EXCLUDED.signature,
			succeeded  = disbursements.succeeded OR EXCLUDED.succeeded,
			error      = EXCLUDED.error,
			created_at = EXCLUDED.created_at`

	_, err := s.pool.Exec(ctx, query,
		d.MarketID, d.User, int64(d.Amount), d.Signature, d.Succeeded, d.Error, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record disbursement %s/%s: %w", d.MarketID, d.User, err)
	}
	return nil
}

// ListDisbursements returns every recorded disbursement for a market.
func (s *DistributionStore) ListDisbursements(ctx context.Context, marketID string) ([]domain.Disbursement, error) {
	const query = `
		SELECT market_id, user_addr, amount, signature, succeeded, error, created_at
		FROM disbursements WHERE market_id = $1 ORDER BY user_addr`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list disbursements for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.Disbursement
	for rows.Next() {
		var d domain.Disbursement
		var amount int64
		if err := rows.Scan(
			&d.MarketID, &d.User, &amount, &d.Signature, &d.Succeeded, &d.Error, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan disbursement row: %w", err)
		}
		d.Amount = uint64(amount)
		out = append(out, d)
	}
	return out, rows.Err()
}

// PutResult inserts or replaces a market's distribution run summary.
func (s *DistributionStore) PutResult(ctx context.Context, res domain.DistributionResult) error {
	const query = `
		INSERT INTO distribution_results (market_id, outcome, distributed, failed, total, ran_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (market_id) DO UPDATE SET
			outcome     = EXCLUDED.outcome,
			distributed = EXCLUDED.distributed,
			failed      = EXCLUDED.failed,
			total       = EXCLUDED.total,
			ran_at      = EXCLUDED.ran_at`

	_, err := s.pool.Exec(ctx, query,
		res.MarketID, res.Outcome.String(), res.Distributed, res.Failed, res.Total, res.RanAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put distribution result for market %s: %w", res.MarketID, err)
	}
	return nil
}

// GetResult retrieves a market's distribution run summary.
func (s *DistributionStore) GetResult(ctx context.Context, marketID string) (domain.DistributionResult, error) {
	const query = `
		SELECT market_id, outcome, distributed, failed, total, ran_at
		FROM distribution_results WHERE market_id = $1`

	var res domain.DistributionResult
	var outcome string
	err := s.pool.QueryRow(ctx, query, marketID).Scan(
		&res.MarketID, &outcome, &res.Distributed, &res.Failed, &res.Total, &res.RanAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DistributionResult{}, domain.ErrNotFound
		}
		return domain.DistributionResult{}, fmt.Errorf("postgres: get distribution result for market %s: %w", marketID, err)
	}
	res.Outcome = domain.ParseOutcome(outcome)
	return res, nil
}

// Compile-time interface check.
var _ domain.DistributionStore = (*DistributionStore)(nil)
