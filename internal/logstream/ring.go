// Package logstream holds the narration stream implementations: a bounded
// in-memory ring for the global trailing window and a broadcast wrapper that
// fans appended entries out to live subscribers.
package logstream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// DefaultWindow is the trailing-window size used when none is configured.
const DefaultWindow = 200

// Ring is an in-memory domain.LogStore. The global view keeps at most window
// entries, dropping the oldest first; per-market views are retained in full
// for the lifetime of the process.
type Ring struct {
	mu       sync.RWMutex
	window   int
	global   []domain.LogEntry
	byMarket map[string][]domain.LogEntry
}

// NewRing creates a ring with the given trailing-window size.
func NewRing(window int) *Ring {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Ring{
		window:   window,
		byMarket: make(map[string][]domain.LogEntry),
	}
}

// Append records e, assigning an ID and timestamp when absent.
func (r *Ring) Append(_ context.Context, e domain.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.global = append(r.global, e)
	if excess := len(r.global) - r.window; excess > 0 {
		r.global = append(r.global[:0:0], r.global[excess:]...)
	}
	if e.MarketID != "" {
		r.byMarket[e.MarketID] = append(r.byMarket[e.MarketID], e)
	}
	return nil
}

// Tail returns up to limit of the newest global entries in creation order.
func (r *Ring) Tail(_ context.Context, limit int) ([]domain.LogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return tail(r.global, limit), nil
}

// TailByMarket returns up to limit of the newest entries for marketID.
func (r *Ring) TailByMarket(_ context.Context, marketID string, limit int) ([]domain.LogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return tail(r.byMarket[marketID], limit), nil
}

func tail(entries []domain.LogEntry, limit int) []domain.LogEntry {
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]domain.LogEntry, limit)
	copy(out, entries[len(entries)-limit:])
	return out
}

var _ domain.LogStore = (*Ring)(nil)
