// Package reconsider runs the advisory re-evaluation of settled markets
// against newly submitted evidence. Its output is a recommendation only;
// nothing here mutates the ledger.
package reconsider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/prophecy-labs/prophecyd/internal/agent"
	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/notify"
)

// Orchestrator runs the two-step reconsideration pipeline: analyze the new
// evidence, then weigh it against the original verdict. The default posture
// is UPHOLD; only concrete, high-confidence contradicting findings can shift
// the recommendation.
type Orchestrator struct {
	markets     domain.MarketStore
	transcripts domain.TranscriptStore
	results     domain.ReconsiderationStore
	analyzer    *agent.Analyzer
	judge       *agent.ReconsiderationJudge
	logs        domain.LogStore
	notifier    *notify.Notifier
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(markets domain.MarketStore, transcripts domain.TranscriptStore, results domain.ReconsiderationStore, analyzer *agent.Analyzer, judge *agent.ReconsiderationJudge, logs domain.LogStore, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		markets:     markets,
		transcripts: transcripts,
		results:     results,
		analyzer:    analyzer,
		judge:       judge,
		logs:        logs,
		logger:      logger.With(slog.String("component", "reconsider")),
	}
}

// WithNotifier attaches operator notifications for overturn recommendations.
func (o *Orchestrator) WithNotifier(n *notify.Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// Run re-evaluates a settled market against the evidence in req, persists the
// resulting recommendation, and returns it. Only resolved markets are
// eligible.
func (o *Orchestrator) Run(ctx context.Context, req domain.ReconsiderationRequest) (domain.ReconsiderationResult, error) {
	market, err := o.markets.GetByID(ctx, req.MarketID)
	if err != nil {
		return domain.ReconsiderationResult{}, fmt.Errorf("reconsider: load market %s: %w", req.MarketID, err)
	}
	if market.Status != domain.MarketStatusResolved && market.Status != domain.MarketStatusDisputed {
		return domain.ReconsiderationResult{}, fmt.Errorf("reconsider: market %s in status %s: %w", req.MarketID, market.Status, domain.ErrMarketNotOpen)
	}

	req.OriginalOutcome = market.Outcome
	if req.OriginalReasoning == "" {
		req.OriginalReasoning = o.originalReasoning(ctx, market.ID)
	}

	item := domain.EvidenceItem{
		ID:          uuid.NewString(),
		MarketID:    req.MarketID,
		CID:         req.EvidenceCID,
		Description: req.EvidenceDesc,
		Submitter:   req.Submitter,
		SubmittedAt: time.Now().UTC(),
	}
	facts := o.analyzer.Analyze(ctx, req.MarketID, market.Question, "", []domain.EvidenceItem{item})

	res := o.judge.Weigh(ctx, req, facts)
	res.ID = uuid.NewString()
	res.MarketID = req.MarketID
	res.CreatedAt = time.Now().UTC()

	if err := o.results.Put(ctx, res); err != nil {
		return domain.ReconsiderationResult{}, fmt.Errorf("reconsider: persist result for market %s: %w", req.MarketID, err)
	}

	o.narrate(ctx, res)
	if res.Recommendation == domain.RecommendOverturn && o.notifier != nil {
		_ = o.notifier.Notify(ctx, notify.EventOverturnSuggested,
			"Overturn recommended",
			fmt.Sprintf("Market %s: reconsideration recommends overturning the settled outcome.", res.MarketID))
	}
	o.logger.Info("reconsideration finished",
		slog.String("market_id", res.MarketID),
		slog.String("recommendation", string(res.Recommendation)),
		slog.Int("confidence_delta", res.ConfidenceDelta))
	return res, nil
}

// originalReasoning recovers the judge's reasoning from the anchored
// transcript when the caller did not supply it. Missing transcripts are fine;
// the judge then weighs against the outcome alone.
func (o *Orchestrator) originalReasoning(ctx context.Context, marketID string) string {
	rec, err := o.transcripts.GetByMarket(ctx, marketID)
	if err != nil {
		return ""
	}
	var bundle domain.TranscriptBundle
	if err := json.Unmarshal(rec.Bundle, &bundle); err != nil {
		return ""
	}
	return bundle.Reasoning
}

func (o *Orchestrator) narrate(ctx context.Context, res domain.ReconsiderationResult) {
	sentiment := domain.SentimentNeutral
	if res.Recommendation == domain.RecommendOverturn {
		sentiment = domain.SentimentNegative
	}
	entry := domain.LogEntry{
		MarketID:  res.MarketID,
		Speaker:   domain.SpeakerJudge,
		Message:   fmt.Sprintf("Reconsideration: %s. %s", res.Recommendation, res.Reasoning),
		Sentiment: sentiment,
	}
	if err := o.logs.Append(ctx, entry); err != nil {
		o.logger.Warn("narration append failed", slog.String("error", err.Error()))
	}
}
