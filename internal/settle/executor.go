// Package settle commits resolution outcomes to the ledger and distributes
// winner rewards.
package settle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/ledger"
	"github.com/prophecy-labs/prophecyd/internal/notify"
)

// ledgerRateKey paces all outbound ledger submissions from this process.
const ledgerRateKey = "ledger:submit"

// Executor performs the settlement leg of a resolution run: exactly one
// resolve call per market, followed by reward distribution. Ledger conflicts
// (already resolved, not open, unauthorized) are terminal and never retried:
// the run aborts with zero disbursements and the local outcome untouched.
// Recovering a market whose ledger resolve already succeeded is an explicit
// operator action via ResumeDistribution, which takes the committed outcome
// from the ledger rather than from a fresh verdict.
type Executor struct {
	settler     ledger.Settler
	markets     domain.MarketStore
	audit       domain.AuditStore
	logs        domain.LogStore
	limiter     domain.RateLimiter
	distributor *Distributor
	notifier    *notify.Notifier
	logger      *slog.Logger
}

// NewExecutor creates an Executor. limiter may be nil to disable submission
// pacing.
func NewExecutor(settler ledger.Settler, markets domain.MarketStore, audit domain.AuditStore, logs domain.LogStore, limiter domain.RateLimiter, distributor *Distributor, logger *slog.Logger) *Executor {
	return &Executor{
		settler:     settler,
		markets:     markets,
		audit:       audit,
		logs:        logs,
		limiter:     limiter,
		distributor: distributor,
		logger:      logger.With(slog.String("component", "executor")),
	}
}

// WithNotifier attaches operator notifications for settlement events.
func (e *Executor) WithNotifier(n *notify.Notifier) *Executor {
	e.notifier = n
	return e
}

func (e *Executor) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	_ = e.notifier.Notify(ctx, event, title, message)
}

// Settle commits the verdict for a market and runs reward distribution.
//
// An UNCERTAIN verdict settles without touching the ledger: the market goes
// back to open, no outcome is committed, and no rewards move. A terminal
// verdict resolves the market with the transcript digest, persists the
// outcome, and pays winners.
func (e *Executor) Settle(ctx context.Context, market domain.Market, verdict domain.Verdict, rec domain.TranscriptRecord) (domain.DistributionResult, error) {
	if !verdict.Decision.Terminal() {
		return domain.DistributionResult{}, e.settleUnresolved(ctx, market, verdict)
	}

	outcome := verdict.Decision.Outcome()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, ledgerRateKey); err != nil {
			return domain.DistributionResult{}, fmt.Errorf("settle: pace resolve for market %s: %w", market.ID, err)
		}
	}

	sig, err := e.settler.Resolve(ctx, market.Address, outcome.LedgerCode(), rec.Digest)
	switch {
	case err == nil:
		e.auditResolve(ctx, market.ID, sig)
	case errors.Is(err, domain.ErrAlreadyResolved):
		// The ledger already holds a committed outcome, possibly a different
		// one than this run judged. Nothing may be paid or persisted from
		// this run; recovery goes through ResumeDistribution.
		e.narrate(ctx, market.ID, "Settlement aborted: the market is already resolved on the ledger.", domain.SentimentNegative)
		return domain.DistributionResult{}, fmt.Errorf("settle: resolve market %s: %w", market.ID, err)
	default:
		e.narrate(ctx, market.ID, "Settlement failed: outcome could not be committed to the ledger.", domain.SentimentNegative)
		return domain.DistributionResult{}, fmt.Errorf("settle: resolve market %s: %w", market.ID, err)
	}

	now := time.Now().UTC()
	if err := e.markets.SetResolved(ctx, market.ID, outcome, rec.Digest, now); err != nil {
		return domain.DistributionResult{}, fmt.Errorf("settle: persist resolution for market %s: %w", market.ID, err)
	}
	market.Outcome = outcome
	market.Status = domain.MarketStatusResolved
	market.ResolvedAt = &now
	market.TranscriptDigest = rec.Digest

	e.narrate(ctx, market.ID,
		fmt.Sprintf("Market resolved %s. Transcript anchored; distributing rewards.", verdict.Decision),
		domain.SentimentPositive)
	e.notify(ctx, notify.EventMarketResolved,
		"Market resolved",
		fmt.Sprintf("Market %s resolved %s.", market.ID, verdict.Decision))

	res, err := e.distributor.Distribute(ctx, market, outcome)
	if err != nil {
		return res, err
	}
	if res.Failed > 0 {
		e.notify(ctx, notify.EventDistributionPartial,
			"Distribution incomplete",
			fmt.Sprintf("Market %s: %d of %d disbursements failed.", market.ID, res.Failed, res.Total))
	}
	return res, nil
}

// settleUnresolved closes out a run whose verdict loop exhausted its budget
// without a terminal decision. Nothing is written to the ledger.
func (e *Executor) settleUnresolved(ctx context.Context, market domain.Market, verdict domain.Verdict) error {
	if err := e.markets.UpdateStatus(ctx, market.ID, domain.MarketStatusOpen); err != nil {
		return fmt.Errorf("settle: reopen market %s: %w", market.ID, err)
	}
	e.narrate(ctx, market.ID,
		fmt.Sprintf("Verdict remained UNCERTAIN after %d passes; market stays unresolved.", verdict.Iteration),
		domain.SentimentNeutral)

	entry := domain.AuditEntry{
		Action:    "resolution_inconclusive",
		Actor:     "executor",
		Subject:   market.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.audit.Log(ctx, entry); err != nil {
		e.logger.Warn("audit log write failed", slog.String("error", err.Error()))
	}
	e.notify(ctx, notify.EventMarketUnresolved,
		"Market unresolved",
		fmt.Sprintf("Market %s stayed UNCERTAIN after %d passes and was reopened.", market.ID, verdict.Iteration))
	return nil
}

// ResumeDistribution recovers a market whose ledger resolve succeeded but
// whose reward distribution never ran (a crashed run, or a resolve conflict
// surfaced by Settle). The ledger's committed outcome and transcript hash are
// authoritative: they are persisted locally and winners of that outcome are
// paid. Resolve is never called here, so the committed outcome cannot change.
func (e *Executor) ResumeDistribution(ctx context.Context, marketID string) (domain.DistributionResult, error) {
	market, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.DistributionResult{}, fmt.Errorf("settle: resume distribution for market %s: %w", marketID, err)
	}
	if market.Address == "" {
		return domain.DistributionResult{}, fmt.Errorf("settle: resume distribution for market %s: market has no ledger address", marketID)
	}

	state, err := e.settler.GetMarket(ctx, market.Address)
	if err != nil {
		return domain.DistributionResult{}, fmt.Errorf("settle: resume distribution for market %s: %w", marketID, err)
	}
	if !state.Resolved {
		return domain.DistributionResult{}, fmt.Errorf("settle: resume distribution for market %s: not resolved on ledger: %w", marketID, domain.ErrMarketNotOpen)
	}

	outcome := domain.OutcomeNo
	if state.Outcome == 1 {
		outcome = domain.OutcomeYes
	}

	now := time.Now().UTC()
	if err := e.markets.SetResolved(ctx, marketID, outcome, state.TranscriptHash, now); err != nil {
		return domain.DistributionResult{}, fmt.Errorf("settle: persist resumed resolution for market %s: %w", marketID, err)
	}
	market.Outcome = outcome
	market.Status = domain.MarketStatusResolved
	market.ResolvedAt = &now
	market.TranscriptDigest = state.TranscriptHash

	entry := domain.AuditEntry{
		Action:    "distribution_resumed",
		Actor:     "executor",
		Subject:   marketID,
		CreatedAt: now,
	}
	if err := e.audit.Log(ctx, entry); err != nil {
		e.logger.Warn("audit log write failed", slog.String("error", err.Error()))
	}
	e.narrate(ctx, marketID,
		fmt.Sprintf("Distribution resumed from the ledger's committed outcome (%s).", outcome),
		domain.SentimentNeutral)

	res, err := e.distributor.Distribute(ctx, market, outcome)
	if err != nil {
		return res, err
	}
	if res.Failed > 0 {
		e.notify(ctx, notify.EventDistributionPartial,
			"Distribution incomplete",
			fmt.Sprintf("Market %s: %d of %d disbursements failed.", marketID, res.Failed, res.Total))
	}
	return res, nil
}

// DisputeMarket transitions a resolved market to disputed on the ledger and
// in the store. Disputing is an operator action, not part of a resolution run.
func (e *Executor) DisputeMarket(ctx context.Context, marketID string) error {
	market, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("settle: dispute market %s: %w", marketID, err)
	}
	if market.Status != domain.MarketStatusResolved {
		return fmt.Errorf("settle: dispute market %s: %w", marketID, domain.ErrMarketNotOpen)
	}

	sig, err := e.settler.Dispute(ctx, market.Address)
	if err != nil {
		return fmt.Errorf("settle: dispute market %s: %w", marketID, err)
	}
	if err := e.markets.UpdateStatus(ctx, marketID, domain.MarketStatusDisputed); err != nil {
		return fmt.Errorf("settle: persist dispute for market %s: %w", marketID, err)
	}

	entry := domain.AuditEntry{
		Action:    "market_disputed",
		Actor:     "executor",
		Subject:   marketID,
		Signature: sig,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.audit.Log(ctx, entry); err != nil {
		e.logger.Warn("audit log write failed", slog.String("error", err.Error()))
	}
	e.narrate(ctx, marketID, "Market resolution disputed; outcome under review.", domain.SentimentNegative)
	e.notify(ctx, notify.EventMarketDisputed,
		"Market disputed",
		fmt.Sprintf("Market %s moved to disputed.", marketID))
	return nil
}

// RewardEvidence mints reputation credit to an evidence submitter.
func (e *Executor) RewardEvidence(ctx context.Context, user string, amount uint64) error {
	sig, err := e.settler.EarnCred(ctx, user, amount, ledger.EarnEvidenceSubmission)
	if err != nil {
		return fmt.Errorf("settle: reward evidence for %s: %w", user, err)
	}

	entry := domain.AuditEntry{
		Action:    "cred_earned",
		Actor:     "executor",
		Subject:   user,
		Amount:    &amount,
		Signature: sig,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.audit.Log(ctx, entry); err != nil {
		e.logger.Warn("audit log write failed", slog.String("error", err.Error()))
	}
	return nil
}

func (e *Executor) auditResolve(ctx context.Context, marketID, sig string) {
	entry := domain.AuditEntry{
		Action:    "market_resolved",
		Actor:     "executor",
		Subject:   marketID,
		Signature: sig,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.audit.Log(ctx, entry); err != nil {
		e.logger.Warn("audit log write failed", slog.String("error", err.Error()))
	}
}

func (e *Executor) narrate(ctx context.Context, marketID, msg string, sentiment domain.Sentiment) {
	entry := domain.LogEntry{
		MarketID:  marketID,
		Speaker:   domain.SpeakerExecutor,
		Message:   msg,
		Sentiment: sentiment,
	}
	if err := e.logs.Append(ctx, entry); err != nil {
		e.logger.Warn("narration append failed", slog.String("error", err.Error()))
	}
}
