package logstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// Channel is the signal-bus channel carrying JSON-encoded log entries.
const Channel = "prophecy:logs"

// Broadcast wraps a LogStore and publishes every appended entry to a
// SignalBus so live subscribers see the narration as it happens. Publish
// failures are logged and never surface to the caller; the stored entry is
// the source of truth.
type Broadcast struct {
	store  domain.LogStore
	bus    domain.SignalBus
	logger *slog.Logger
}

func NewBroadcast(store domain.LogStore, bus domain.SignalBus, logger *slog.Logger) *Broadcast {
	return &Broadcast{
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "logstream")),
	}
}

func (b *Broadcast) Append(ctx context.Context, e domain.LogEntry) error {
	if err := b.store.Append(ctx, e); err != nil {
		return fmt.Errorf("logstream: append: %w", err)
	}
	if b.bus == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		b.logger.Warn("encode log entry for broadcast", slog.String("error", err.Error()))
		return nil
	}
	if err := b.bus.Publish(ctx, Channel, payload); err != nil {
		b.logger.Warn("broadcast log entry", slog.String("error", err.Error()))
	}
	return nil
}

func (b *Broadcast) Tail(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	return b.store.Tail(ctx, limit)
}

func (b *Broadcast) TailByMarket(ctx context.Context, marketID string, limit int) ([]domain.LogEntry, error) {
	return b.store.TailByMarket(ctx, marketID, limit)
}

var _ domain.LogStore = (*Broadcast)(nil)
