package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL. The audit log is
// append-only; rows are never updated or deleted.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends one audit entry.
func (s *AuditStore) Log(ctx context.Context, e domain.AuditEntry) error {
	const query = `
		INSERT INTO audit_log (action, actor, subject, amount, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var amount *int64
	if e.Amount != nil {
		v := int64(*e.Amount)
		amount = &v
	}

	_, err := s.pool.Exec(ctx, query,
		e.Action, e.Actor, e.Subject, amount, e.Signature, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: audit log %s: %w", e.Action, err)
	}
	return nil
}

// List returns audit entries filtered by opts, newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, action, actor, subject, amount, signature, created_at FROM audit_log`
	var args []any
	var conds []string

	if opts.Since != nil {
		args = append(args, *opts.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC, id DESC"
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
		return nil, fmt.Errorf("postgres: list audit log: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var amount *int64
		if err := rows.Scan(
			&e.ID, &e.Action, &e.Actor, &e.Subject, &amount, &e.Signature, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan audit row: %w", err)
		}
		if amount != nil {
			v := uint64(*amount)
			e.Amount = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
