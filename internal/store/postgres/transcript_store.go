package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// TranscriptStore implements domain.TranscriptStore using PostgreSQL.
type TranscriptStore struct {
	pool *pgxpool.Pool
}

// NewTranscriptStore creates a new TranscriptStore backed by the given pool.
func NewTranscriptStore(pool *pgxpool.Pool) *TranscriptStore {
	return &TranscriptStore{pool: pool}
}

// Put inserts or replaces a market's transcript record. Replacement happens
// only when a later anchor attempt upgrades an unpinned record to a pinned
// one; the bundle itself never changes.
func (s *TranscriptStore) Put(ctx context.Context, rec domain.TranscriptRecord) error {
	const query = `
		INSERT INTO transcripts (market_id, cid, digest, pinned, bundle, anchored_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (market_id) DO UPDATE SET
			cid         = EXCLUDED.cid,
			digest      = EXCLUDED.digest,
			pinned      = EXCLUDED.pinned,
			bundle      = EXCLUDED.bundle,
			anchored_at = EXCLUDED.anchored_at`

	_, err := s.pool.Exec(ctx, query,
		rec.MarketID, rec.CID, rec.Digest, rec.Pinned, rec.Bundle, rec.AnchoredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put transcript for market %s: %w", rec.MarketID, err)
	}
	return nil
}

// GetByMarket retrieves a market's transcript record.
func (s *TranscriptStore) GetByMarket(ctx context.Context, marketID string) (domain.TranscriptRecord, error) {
	const query = `
		SELECT market_id, cid, digest, pinned, bundle, anchored_at
		FROM transcripts WHERE market_id = $1`

	var rec domain.TranscriptRecord
	err := s.pool.QueryRow(ctx, query, marketID).Scan(
		&rec.MarketID, &rec.CID, &rec.Digest, &rec.Pinned, &rec.Bundle, &rec.AnchoredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TranscriptRecord{}, domain.ErrNotFound
		}
		return domain.TranscriptRecord{}, fmt.Errorf("postgres: get transcript for market %s: %w", marketID, err)
	}
	return rec, nil
}

// Compile-time interface check.
var _ domain.TranscriptStore = (*TranscriptStore)(nil)
