package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// TriggerChannel is the signal-bus channel carrying resolution trigger
// requests from sibling processes. Payloads are JSON-encoded TriggerRequest
// values.
const TriggerChannel = "prophecy:resolve"

// TriggerRequest asks for a resolution run, optionally delayed and optionally
// carrying source content for the first research pass.
type TriggerRequest struct {
	MarketID      string `json:"market_id"`
	DelaySeconds  int    `json:"delay_seconds,omitempty"`
	SourceContent string `json:"source_content,omitempty"`
}

// Scheduler queues delayed resolution triggers. A scheduled market can be
// cancelled any time before its timer fires; once the workflow has started,
// cancellation no longer applies. Concurrent fires are bounded by a worker
// semaphore.
type Scheduler struct {
	workflow *Workflow
	logger   *slog.Logger
	sem      chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewScheduler creates a Scheduler running at most workers concurrent
// resolutions.
func NewScheduler(workflow *Workflow, workers int, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		workflow:   workflow,
		logger:     logger.With(slog.String("component", "scheduler")),
		sem:        make(chan struct{}, workers),
		pending:    make(map[string]*time.Timer),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// Schedule arms a resolution for marketID after delay. Scheduling a market
// that is already pending resets its timer. sourceContent, when non-empty, is
// handed to the first research pass of the run.
func (s *Scheduler) Schedule(marketID string, delay time.Duration, sourceContent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("scheduler: schedule %s: shut down", marketID)
	}

	if prev, ok := s.pending[marketID]; ok {
		prev.Stop()
	}
	s.pending[marketID] = time.AfterFunc(delay, func() { s.fire(marketID, sourceContent) })

	s.logger.Info("resolution scheduled",
		slog.String("market_id", marketID),
		slog.Duration("delay", delay))
	return nil
}

// Cancel disarms a pending trigger. It reports whether a trigger was pending;
// a run already started cannot be cancelled.
func (s *Scheduler) Cancel(marketID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.pending[marketID]
	if !ok {
		return false
	}
	delete(s.pending, marketID)
	stopped := timer.Stop()
	if stopped {
		s.logger.Info("resolution cancelled", slog.String("market_id", marketID))
	}
	return stopped
}

// Pending returns the market IDs with an armed trigger.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

// fire runs when a timer elapses. The pending entry is removed first so that
// Cancel during the run reports false.
func (s *Scheduler) fire(marketID, sourceContent string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, marketID)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-s.baseCtx.Done():
			return
		}

		if _, err := s.workflow.Resolve(s.baseCtx, marketID, sourceContent); err != nil {
			level := slog.LevelError
			if isExpectedSkip(err) {
				level = slog.LevelWarn
			}
			s.logger.Log(s.baseCtx, level, "scheduled resolution failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()))
		}
	}()
}

// Close disarms every pending trigger and waits for in-flight runs.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, timer := range s.pending {
		timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.cancelBase()
	s.wg.Wait()
	return nil
}

func isExpectedSkip(err error) bool {
	return errors.Is(err, domain.ErrResolutionInFlight) ||
		errors.Is(err, domain.ErrAlreadyResolved) ||
		errors.Is(err, domain.ErrMarketNotOpen)
}
