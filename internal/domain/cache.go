package domain

import (
	"context"
	"time"
)

// RateLimiter paces calls against external submission paths (the ledger RPC,
// notification webhooks). Implementations are safe for concurrent use.
type RateLimiter interface {
	// Allow reports whether a call for key is permitted under a sliding
	// window of limit calls per window, counting the call when permitted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a call for key is permitted or ctx is done.
	Wait(ctx context.Context, key string) error
}

// LockManager provides per-key mutual exclusion. The resolver uses it to
// reject a second resolution trigger for a market whose resolution is already
// in flight.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function, or ErrLockHeld when another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SignalBus is a lightweight pub/sub fan-out used to broadcast log entries to
// live subscribers (the websocket hub, sibling processes).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
