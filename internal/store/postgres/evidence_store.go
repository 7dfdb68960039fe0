package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// EvidenceStore implements domain.EvidenceStore using PostgreSQL. Appends are
// capped at the ledger program's per-market evidence limit.
type EvidenceStore struct {
	pool *pgxpool.Pool
}

// NewEvidenceStore creates a new EvidenceStore backed by the given pool.
func NewEvidenceStore(pool *pgxpool.Pool) *EvidenceStore {
	return &EvidenceStore{pool: pool}
}

// Append inserts one evidence item. It returns domain.ErrTooMuchEvidence when
// the market already carries the maximum number of items.
func (s *EvidenceStore) Append(ctx context.Context, item domain.EvidenceItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.SubmittedAt.IsZero() {
		item.SubmittedAt = time.Now().UTC()
	}

	// The count check and insert run in one transaction so concurrent
	// submitters cannot race past the cap.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin evidence append: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize appends per market with an advisory lock; FOR UPDATE cannot
	// cover rows that do not exist yet.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, item.MarketID); err != nil {
		return fmt.Errorf("postgres: lock evidence for market %s: %w", item.MarketID, err)
	}

	var count int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM evidence WHERE market_id = $1`,
		item.MarketID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("postgres: count evidence for market %s: %w", item.MarketID, err)
	}
	if count >= domain.MaxEvidencePerMarket {
		return domain.ErrTooMuchEvidence
	}

	const insert = `
		INSERT INTO evidence (id, market_id, cid, description, submitter, filename, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.Exec(ctx, insert,
		item.ID, item.MarketID, item.CID, item.Description, item.Submitter, item.Filename, item.SubmittedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert evidence for market %s: %w", item.MarketID, err)
	}

	const bump = `UPDATE markets SET evidence_count = evidence_count + 1, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, bump, item.MarketID); err != nil {
		return fmt.Errorf("postgres: bump evidence count for market %s: %w", item.MarketID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit evidence append: %w", err)
	}
	return nil
}

// ListByMarket returns a market's evidence in submission order.
func (s *EvidenceStore) ListByMarket(ctx context.Context, marketID string) ([]domain.EvidenceItem, error) {
	const query = `
		SELECT id, market_id, cid, description, submitter, filename, submitted_at
		FROM evidence WHERE market_id = $1 ORDER BY submitted_at, id`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list evidence for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var items []domain.EvidenceItem
	for rows.Next() {
		var item domain.EvidenceItem
		if err := rows.Scan(
			&item.ID, &item.MarketID, &item.CID, &item.Description,
			&item.Submitter, &item.Filename, &item.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan evidence row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountByMarket returns the number of evidence items for a market.
func (s *EvidenceStore) CountByMarket(ctx context.Context, marketID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM evidence WHERE market_id = $1`, marketID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count evidence for market %s: %w", marketID, err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.EvidenceStore = (*EvidenceStore)(nil)
