// Package local provides in-process implementations of the cache interfaces
// for single-node deployments and tests, where Redis is not available.
package local

import (
	"context"
	"sync"
	"time"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// LockManager is an in-process domain.LockManager. Locks expire after their
// TTL so a crashed holder cannot wedge a market forever.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]time.Time // key -> expiry
}

func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]time.Time)}
}

func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := time.Now()
	if expiry, ok := lm.locks[key]; ok && now.Before(expiry) {
		return nil, domain.ErrLockHeld
	}
	expiry := now.Add(ttl)
	lm.locks[key] = expiry

	released := false
	unlock := func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if released {
			return
		}
		released = true
		// Only delete if still our acquisition; a TTL-expired lock may have
		// been re-acquired by someone else.
		if cur, ok := lm.locks[key]; ok && cur.Equal(expiry) {
			delete(lm.locks, key)
		}
	}
	return unlock, nil
}

var _ domain.LockManager = (*LockManager)(nil)

// RateLimiter is an in-process sliding-window domain.RateLimiter.
type RateLimiter struct {
	mu    sync.Mutex
	calls map[string][]time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{calls: make(map[string][]time.Time)}
}

func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)
	kept := rl.calls[key][:0]
	for _, t := range rl.calls[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		rl.calls[key] = kept
		return false, nil
	}
	rl.calls[key] = append(kept, now)
	return true, nil
}

// Wait blocks until a call for key is allowed at 1 per second, or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		allowed, err := rl.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		timer := time.NewTimer(50 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// SignalBus is an in-process domain.SignalBus fanning payloads out to every
// subscriber of a channel. Slow subscribers drop messages rather than block
// publishers.
type SignalBus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string][]chan []byte)}
}

func (sb *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	for _, ch := range sb.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	sb.mu.Lock()
	sb.subs[channel] = append(sb.subs[channel], ch)
	sb.mu.Unlock()

	go func() {
		<-ctx.Done()
		sb.mu.Lock()
		defer sb.mu.Unlock()
		subs := sb.subs[channel]
		for i, c := range subs {
			if c == ch {
				sb.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
