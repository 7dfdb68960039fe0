// Package resolver drives the resolution workflow: a bounded research/judge
// loop followed by transcript anchoring and settlement.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prophecy-labs/prophecyd/internal/agent"
	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/ledger"
	"github.com/prophecy-labs/prophecyd/internal/settle"
	"github.com/prophecy-labs/prophecyd/internal/transcript"
)

// state is a phase of the resolution workflow.
type state int

const (
	stateResearch state = iota
	stateJudge
	stateSettle
	stateDone
)

func (s state) String() string {
	switch s {
	case stateResearch:
		return "research"
	case stateJudge:
		return "judge"
	case stateSettle:
		return "settle"
	default:
		return "done"
	}
}

// status maps a workflow phase to the market status persisted while it runs.
func (s state) status() domain.MarketStatus {
	switch s {
	case stateResearch:
		return domain.MarketStatusResearching
	case stateJudge:
		return domain.MarketStatusJudging
	default:
		return domain.MarketStatusExecuting
	}
}

// RunResult is the outcome of one complete resolution run.
type RunResult struct {
	MarketID     string
	Verdict      domain.Verdict
	Transcript   domain.TranscriptRecord
	Distribution domain.DistributionResult
}

// Workflow executes resolution runs. A per-market lock guarantees at most one
// in-flight run per market; a second trigger fails fast with
// ErrResolutionInFlight instead of queueing.
type Workflow struct {
	markets       domain.MarketStore
	evidence      domain.EvidenceStore
	analyzer      *agent.Analyzer
	judge         *agent.Judge
	anchorer      *transcript.Anchorer
	executor      *settle.Executor
	locks         domain.LockManager
	logs          domain.LogStore
	programID     string
	maxIterations int
	lockTTL       time.Duration
	logger        *slog.Logger
}

// Config bundles the Workflow collaborators.
type Config struct {
	Markets       domain.MarketStore
	Evidence      domain.EvidenceStore
	Analyzer      *agent.Analyzer
	Judge         *agent.Judge
	Anchorer      *transcript.Anchorer
	Executor      *settle.Executor
	Locks         domain.LockManager
	Logs          domain.LogStore
	ProgramID     string
	MaxIterations int
	LockTTL       time.Duration
	Logger        *slog.Logger
}

// NewWorkflow creates a Workflow.
func NewWorkflow(cfg Config) *Workflow {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = domain.MaxResolutionIterations
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Workflow{
		markets:       cfg.Markets,
		evidence:      cfg.Evidence,
		analyzer:      cfg.Analyzer,
		judge:         cfg.Judge,
		anchorer:      cfg.Anchorer,
		executor:      cfg.Executor,
		locks:         cfg.Locks,
		logs:          cfg.Logs,
		programID:     cfg.ProgramID,
		maxIterations: maxIter,
		lockTTL:       lockTTL,
		logger:        cfg.Logger.With(slog.String("component", "resolver")),
	}
}

// Resolve runs the full workflow for a market. sourceContent is optional
// externally fetched material handed to the analyzer alongside the market's
// evidence list.
//
// Returns ErrResolutionInFlight when another run holds the market's lock, and
// ErrMarketNotOpen / ErrAlreadyResolved when the market's status rejects a
// new run.
func (w *Workflow) Resolve(ctx context.Context, marketID, sourceContent string) (RunResult, error) {
	unlock, err := w.locks.Acquire(ctx, "resolve:"+marketID, w.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return RunResult{}, fmt.Errorf("resolver: market %s: %w", marketID, domain.ErrResolutionInFlight)
		}
		return RunResult{}, fmt.Errorf("resolver: lock market %s: %w", marketID, err)
	}
	defer unlock()

	market, err := w.markets.GetByID(ctx, marketID)
	if err != nil {
		return RunResult{}, fmt.Errorf("resolver: load market %s: %w", marketID, err)
	}
	if !market.Resolvable() {
		if market.Status == domain.MarketStatusResolved {
			return RunResult{}, fmt.Errorf("resolver: market %s: %w", marketID, domain.ErrAlreadyResolved)
		}
		return RunResult{}, fmt.Errorf("resolver: market %s in status %s: %w", marketID, market.Status, domain.ErrMarketNotOpen)
	}
	if market.Address == "" {
		market.Address = ledger.DeriveMarketAddress(w.programID, market.ID)
	}

	evidence, err := w.evidence.ListByMarket(ctx, marketID)
	if err != nil {
		return RunResult{}, fmt.Errorf("resolver: load evidence for market %s: %w", marketID, err)
	}

	w.logger.Info("resolution started",
		slog.String("market_id", marketID),
		slog.Int("evidence", len(evidence)))

	run := RunResult{MarketID: marketID}
	var facts []domain.Fact
	iteration := 0

	for st := stateResearch; st != stateDone; {
		if err := w.markets.UpdateStatus(ctx, marketID, st.status()); err != nil {
			return run, fmt.Errorf("resolver: persist status %s for market %s: %w", st.status(), marketID, err)
		}

		switch st {
		case stateResearch:
			iteration++
			found := w.analyzer.Analyze(ctx, marketID, market.Question, sourceContent, evidence)
			facts = mergeFacts(facts, found)
			st = stateJudge

		case stateJudge:
			run.Verdict = w.judge.Decide(ctx, marketID, market.Question, facts, iteration)
			if !run.Verdict.Decision.Terminal() && iteration < w.maxIterations {
				st = stateResearch
				continue
			}
			st = stateSettle

		case stateSettle:
			trail, err := w.logs.TailByMarket(ctx, marketID, 0)
			if err != nil {
				return run, fmt.Errorf("resolver: load log trail for market %s: %w", marketID, err)
			}

			bundle := transcript.BuildBundle(market, facts, run.Verdict, trail, evidence)
			run.Transcript, err = w.anchorer.Anchor(ctx, bundle)
			if err != nil {
				return run, err
			}

			run.Distribution, err = w.executor.Settle(ctx, market, run.Verdict, run.Transcript)
			if err != nil {
				return run, err
			}
			st = stateDone
		}
	}

	w.logger.Info("resolution finished",
		slog.String("market_id", marketID),
		slog.String("decision", string(run.Verdict.Decision)),
		slog.Int("iterations", iteration))
	return run, nil
}

// mergeFacts appends newly found facts, dropping exact-text duplicates from
// earlier passes.
func mergeFacts(existing, found []domain.Fact) []domain.Fact {
	seen := make(map[string]bool, len(existing))
	for _, f := range existing {
		seen[f.Text] = true
	}
	for _, f := range found {
		if seen[f.Text] {
			continue
		}
		seen[f.Text] = true
		existing = append(existing, f)
	}
	return existing
}
