package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market state. Markets are created externally; the
// orchestrator mutates status, and the settlement executor commits outcome and
// transcript digest.
type MarketStore interface {
	Upsert(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetByAddress(ctx context.Context, address string) (Market, error)
	UpdateStatus(ctx context.Context, id string, status MarketStatus) error
	SetResolved(ctx context.Context, id string, outcome Outcome, digest []byte, at time.Time) error
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
}

// EvidenceStore persists the append-only evidence list per market.
type EvidenceStore interface {
	Append(ctx context.Context, item EvidenceItem) error
	ListByMarket(ctx context.Context, marketID string) ([]EvidenceItem, error)
	CountByMarket(ctx context.Context, marketID string) (int, error)
}

// TranscriptStore persists anchored transcript records.
type TranscriptStore interface {
	Put(ctx context.Context, rec TranscriptRecord) error
	GetByMarket(ctx context.Context, marketID string) (TranscriptRecord, error)
}

// DistributionStore persists per-winner disbursements and run summaries.
// Recorded successes form the idempotency barrier against double payment.
type DistributionStore interface {
	RecordDisbursement(ctx context.Context, d Disbursement) error
	ListDisbursements(ctx context.Context, marketID string) ([]Disbursement, error)
	PutResult(ctx context.Context, res DistributionResult) error
	GetResult(ctx context.Context, marketID string) (DistributionResult, error)
}

// ReconsiderationStore persists advisory reconsideration results.
type ReconsiderationStore interface {
	Put(ctx context.Context, res ReconsiderationResult) error
	ListByMarket(ctx context.Context, marketID string) ([]ReconsiderationResult, error)
}

// AuditEntry is a single audit log row: one line per settlement-path event,
// used for reconciling partial reward-distribution failures.
type AuditEntry struct {
	ID        int64
	Action    string
	Actor     string
	Subject   string
	Amount    *uint64
	Signature string
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, e AuditEntry) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// LogStore is the append-only narration stream. The global view is truncated
// to a bounded trailing window (oldest dropped first); the per-market view is
// a derived, retained filter of the same entries.
type LogStore interface {
	Append(ctx context.Context, e LogEntry) error
	Tail(ctx context.Context, limit int) ([]LogEntry, error)
	TailByMarket(ctx context.Context, marketID string, limit int) ([]LogEntry, error)
}
