// Package memory provides in-memory store implementations mirroring the
// PostgreSQL semantics, used by unit tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// MarketStore is an in-memory domain.MarketStore.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[string]domain.Market
}

func NewMarketStore() *MarketStore {
	return &MarketStore{markets: make(map[string]domain.Market)}
}

func (s *MarketStore) Upsert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.markets[m.ID] = m
	return nil
}

func (s *MarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *MarketStore) GetByAddress(_ context.Context, address string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.markets {
		if m.Address == address {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *MarketStore) UpdateStatus(_ context.Context, id string, status domain.MarketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = status
	s.markets[id] = m
	return nil
}

func (s *MarketStore) SetResolved(_ context.Context, id string, outcome domain.Outcome, digest []byte, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = domain.MarketStatusResolved
	m.Outcome = outcome
	m.TranscriptDigest = append([]byte(nil), digest...)
	m.ResolvedAt = &at
	s.markets[id] = m
	return nil
}

func (s *MarketStore) ListByStatus(_ context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status != status {
			continue
		}
		if opts.Since != nil && m.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !m.CreatedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

var _ domain.MarketStore = (*MarketStore)(nil)

// EvidenceStore is an in-memory domain.EvidenceStore with the per-market cap
// enforced on append.
type EvidenceStore struct {
	mu    sync.RWMutex
	items map[string][]domain.EvidenceItem
}

func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{items: make(map[string][]domain.EvidenceItem)}
}

func (s *EvidenceStore) Append(_ context.Context, item domain.EvidenceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items[item.MarketID]) >= domain.MaxEvidencePerMarket {
		return domain.ErrTooMuchEvidence
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.SubmittedAt.IsZero() {
		item.SubmittedAt = time.Now().UTC()
	}
	s.items[item.MarketID] = append(s.items[item.MarketID], item)
	return nil
}

func (s *EvidenceStore) ListByMarket(_ context.Context, marketID string) ([]domain.EvidenceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.EvidenceItem(nil), s.items[marketID]...), nil
}

func (s *EvidenceStore) CountByMarket(_ context.Context, marketID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items[marketID]), nil
}

var _ domain.EvidenceStore = (*EvidenceStore)(nil)

// TranscriptStore is an in-memory domain.TranscriptStore.
type TranscriptStore struct {
	mu      sync.RWMutex
	records map[string]domain.TranscriptRecord
}

func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{records: make(map[string]domain.TranscriptRecord)}
}

func (s *TranscriptStore) Put(_ context.Context, rec domain.TranscriptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.MarketID] = rec
	return nil
}

func (s *TranscriptStore) GetByMarket(_ context.Context, marketID string) (domain.TranscriptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[marketID]
	if !ok {
		return domain.TranscriptRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

var _ domain.TranscriptStore = (*TranscriptStore)(nil)

// DistributionStore is an in-memory domain.DistributionStore. Succeeded
// disbursement rows are never downgraded, mirroring the SQL upsert.
type DistributionStore struct {
	mu            sync.RWMutex
	disbursements map[string]map[string]domain.Disbursement // market -> user
	results       map[string]domain.DistributionResult
}

func NewDistributionStore() *DistributionStore {
	return &DistributionStore{
		disbursements: make(map[string]map[string]domain.Disbursement),
		results:       make(map[string]domain.DistributionResult),
	}
}

func (s *DistributionStore) RecordDisbursement(_ context.Context, d domain.Disbursement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.disbursements[d.MarketID]
	if !ok {
		byUser = make(map[string]domain.Disbursement)
		s.disbursements[d.MarketID] = byUser
	}
	if prev, ok := byUser[d.User]; ok && prev.Succeeded {
		d.Succeeded = true
	}
	byUser[d.User] = d
	return nil
}

func (s *DistributionStore) ListDisbursements(_ context.Context, marketID string) ([]domain.Disbursement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser := s.disbursements[marketID]
	out := make([]domain.Disbursement, 0, len(byUser))
	for _, d := range byUser {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

func (s *DistributionStore) PutResult(_ context.Context, res domain.DistributionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.MarketID] = res
	return nil
}

func (s *DistributionStore) GetResult(_ context.Context, marketID string) (domain.DistributionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[marketID]
	if !ok {
		return domain.DistributionResult{}, domain.ErrNotFound
	}
	return res, nil
}

var _ domain.DistributionStore = (*DistributionStore)(nil)

// ReconsiderationStore is an in-memory domain.ReconsiderationStore.
type ReconsiderationStore struct {
	mu      sync.RWMutex
	results map[string][]domain.ReconsiderationResult
}

func NewReconsiderationStore() *ReconsiderationStore {
	return &ReconsiderationStore{results: make(map[string][]domain.ReconsiderationResult)}
}

func (s *ReconsiderationStore) Put(_ context.Context, res domain.ReconsiderationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.MarketID] = append(s.results[res.MarketID], res)
	return nil
}

func (s *ReconsiderationStore) ListByMarket(_ context.Context, marketID string) ([]domain.ReconsiderationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ReconsiderationResult(nil), s.results[marketID]...), nil
}

var _ domain.ReconsiderationStore = (*ReconsiderationStore)(nil)

// AuditStore is an in-memory domain.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	nextID  int64
}

func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

func (s *AuditStore) Log(_ context.Context, e domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID
	s.nextID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !e.CreatedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	return paginate(out, opts), nil
}

var _ domain.AuditStore = (*AuditStore)(nil)

func paginate[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return nil
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}
