package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// LogBuffer implements domain.LogStore using Redis lists with JSON-serialized
// entries. The global list is trimmed to a bounded trailing window on every
// append; per-market lists are retained.
//
// Key schema:
//
//	logs:global       - list of JSON entries, newest first
//	logs:market:{id}  - list of JSON entries, newest first
type LogBuffer struct {
	rdb    *redis.Client
	window int
}

// NewLogBuffer creates a LogBuffer with the given global trailing-window size.
func NewLogBuffer(c *Client, window int) *LogBuffer {
	if window <= 0 {
		window = 200
	}
	return &LogBuffer{rdb: c.Underlying(), window: window}
}

const globalLogKey = "logs:global"

func marketLogKey(id string) string { return "logs:market:" + id }

// Append records e, assigning an ID and timestamp when absent. The global
// list is trimmed so only the newest window entries survive.
func (lb *LogBuffer) Append(ctx context.Context, e domain.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis: marshal log entry %s: %w", e.ID, err)
	}

	pipe := lb.rdb.TxPipeline()
	pipe.LPush(ctx, globalLogKey, data)
	pipe.LTrim(ctx, globalLogKey, 0, int64(lb.window)-1)
	if e.MarketID != "" {
		pipe.LPush(ctx, marketLogKey(e.MarketID), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: append log entry %s: %w", e.ID, err)
	}
	return nil
}

// Tail returns up to limit of the newest global entries in creation order.
func (lb *LogBuffer) Tail(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	return lb.tail(ctx, globalLogKey, limit)
}

// TailByMarket returns up to limit of the newest entries for marketID in
// creation order.
func (lb *LogBuffer) TailByMarket(ctx context.Context, marketID string, limit int) ([]domain.LogEntry, error) {
	return lb.tail(ctx, marketLogKey(marketID), limit)
}

func (lb *LogBuffer) tail(ctx context.Context, key string, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = lb.window
	}

	raw, err := lb.rdb.LRange(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: tail %s: %w", key, err)
	}

	// Lists are newest-first; return in creation order.
	entries := make([]domain.LogEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e domain.LogEntry
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			return nil, fmt.Errorf("redis: unmarshal log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.LogStore = (*LogBuffer)(nil)
