package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, address, question, status, outcome,
	total_yes_stake, total_no_stake, evidence_count,
	created_at, resolved_at, transcript_digest`

func scanMarketRow(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status, outcome string
	var yes, no int64

	err := row.Scan(
		&m.ID, &m.Address, &m.Question, &status, &outcome,
		&yes, &no, &m.EvidenceCount,
		&m.CreatedAt, &m.ResolvedAt, &m.TranscriptDigest,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	m.Outcome = domain.ParseOutcome(outcome)
	m.TotalYesStake = uint64(yes)
	m.TotalNoStake = uint64(no)
	return m, nil
}

// Upsert inserts a market or refreshes its mutable columns.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, address, question, status, outcome,
			total_yes_stake, total_no_stake, evidence_count,
			created_at, resolved_at, transcript_digest, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			address         = EXCLUDED.address,
			question        = EXCLUDED.question,
			status          = EXCLUDED.status,
			outcome         = EXCLUDED.outcome,
			total_yes_stake = EXCLUDED.total_yes_stake,
			total_no_stake  = EXCLUDED.total_no_stake,
			evidence_count  = EXCLUDED.evidence_count,
			resolved_at     = EXCLUDED.resolved_at,
			transcript_digest = EXCLUDED.transcript_digest,
			updated_at      = NOW()`

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Address, m.Question, string(m.Status), m.Outcome.String(),
		int64(m.TotalYesStake), int64(m.TotalNoStake), m.EvidenceCount,
		createdAt, m.ResolvedAt, m.TranscriptDigest,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a market by ID.
// It returns domain.ErrNotFound when no row exists.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE id = $1`

	m, err := scanMarketRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetByAddress retrieves a market by its ledger address.
func (s *MarketStore) GetByAddress(ctx context.Context, address string) (domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE address = $1`

	m, err := scanMarketRow(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by address %s: %w", address, err)
	}
	return m, nil
}

// UpdateStatus sets a market's status.
func (s *MarketStore) UpdateStatus(ctx context.Context, id string, status domain.MarketStatus) error {
	const query = `UPDATE markets SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update market %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetResolved commits the outcome, transcript digest, and resolution time in
// one statement and moves the market to resolved.
func (s *MarketStore) SetResolved(ctx context.Context, id string, outcome domain.Outcome, digest []byte, at time.Time) error {
	const query = `
		UPDATE markets SET
			status = 'resolved',
			outcome = $2,
			transcript_digest = $3,
			resolved_at = $4,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, outcome.String(), digest, at)
	if err != nil {
		return fmt.Errorf("postgres: set market %s resolved: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByStatus returns markets in the given status, newest first.
func (s *MarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE status = $1`
	args := []any{string(status)}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets by status %s: %w", status, err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarketRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market row: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
