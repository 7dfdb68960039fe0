package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// ReconsiderationStore implements domain.ReconsiderationStore using PostgreSQL.
type ReconsiderationStore struct {
	pool *pgxpool.Pool
}

// NewReconsiderationStore creates a new ReconsiderationStore backed by the
// given pool.
func NewReconsiderationStore(pool *pgxpool.Pool) *ReconsiderationStore {
	return &ReconsiderationStore{pool: pool}
}

// Put inserts a reconsideration result.
func (s *ReconsiderationStore) Put(ctx context.Context, res domain.ReconsiderationResult) error {
	const query = `
		INSERT INTO reconsiderations (
			id, market_id, recommendation, confidence_delta,
			new_outcome, annotation, reasoning, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		res.ID, res.MarketID, string(res.Recommendation), res.ConfidenceDelta,
		res.NewOutcome.String(), res.Annotation, res.Reasoning, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put reconsideration %s: %w", res.ID, err)
	}
	return nil
}

// ListByMarket returns a market's reconsideration history, oldest first.
func (s *ReconsiderationStore) ListByMarket(ctx context.Context, marketID string) ([]domain.ReconsiderationResult, error) {
	const query = `
		SELECT id, market_id, recommendation, confidence_delta,
			new_outcome, annotation, reasoning, created_at
		FROM reconsiderations WHERE market_id = $1 ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reconsiderations for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.ReconsiderationResult
	for rows.Next() {
		var res domain.ReconsiderationResult
		var recommendation, newOutcome string
		if err := rows.Scan(
			&res.ID, &res.MarketID, &recommendation, &res.ConfidenceDelta,
			&newOutcome, &res.Annotation, &res.Reasoning, &res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan reconsideration row: %w", err)
		}
		res.Recommendation = domain.Recommendation(recommendation)
		res.NewOutcome = domain.ParseOutcome(newOutcome)
		out = append(out, res)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.ReconsiderationStore = (*ReconsiderationStore)(nil)
