package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/genai"
)

// ReconsiderationJudge weighs new evidence against a settled outcome. It is
// deliberately conservative: the default on any ambiguity, parse failure, or
// generation failure is UPHOLD.
type ReconsiderationJudge struct {
	gen    genai.Generator
	logger *slog.Logger
}

// NewReconsiderationJudge creates a ReconsiderationJudge.
func NewReconsiderationJudge(gen genai.Generator, logger *slog.Logger) *ReconsiderationJudge {
	return &ReconsiderationJudge{
		gen:    gen,
		logger: logger.With(slog.String("component", "reconsideration_judge")),
	}
}

type reconsiderJSON struct {
	Recommendation  string `json:"recommendation"`
	ConfidenceDelta *int   `json:"confidence_delta"`
	NewOutcome      string `json:"new_outcome"`
	Annotation      string `json:"annotation"`
	Reasoning       string `json:"reasoning"`
}

// Weigh produces an advisory recommendation for the request. The analyzed
// facts give the judge context; zero facts force UPHOLD without a model call.
func (r *ReconsiderationJudge) Weigh(ctx context.Context, req domain.ReconsiderationRequest, facts []domain.Fact) domain.ReconsiderationResult {
	if len(facts) == 0 || allZeroConfidence(facts) {
		return uphold(req, "New evidence could not be verified; original outcome stands.")
	}

	raw, err := r.gen.Generate(ctx, buildReconsiderPrompt(req))
	if err != nil {
		r.logger.Error("reconsideration generation failed", slog.String("market_id", req.MarketID), slog.String("error", err.Error()))
		return uphold(req, "Reconsideration unavailable: generation failed; original outcome stands.")
	}

	res, err := decodeReconsideration(req, raw)
	if err != nil {
		r.logger.Warn("reconsideration output failed schema decode", slog.String("market_id", req.MarketID), slog.String("error", err.Error()))
		return uphold(req, "Reconsideration output could not be parsed; original outcome stands.")
	}

	return res
}

func decodeReconsideration(req domain.ReconsiderationRequest, raw string) (domain.ReconsiderationResult, error) {
	var v reconsiderJSON
	if err := decodeStrict(raw, &v); err != nil {
		return domain.ReconsiderationResult{}, fmt.Errorf("agent: decode reconsideration: %w", err)
	}

	var rec domain.Recommendation
	switch strings.ToUpper(strings.TrimSpace(v.Recommendation)) {
	case string(domain.RecommendUphold):
		rec = domain.RecommendUphold
	case string(domain.RecommendAnnotate):
		rec = domain.RecommendAnnotate
	case string(domain.RecommendOverturn):
		rec = domain.RecommendOverturn
	default:
		return domain.ReconsiderationResult{}, fmt.Errorf("agent: decode reconsideration: unknown recommendation %q", v.Recommendation)
	}

	delta := 0
	if v.ConfidenceDelta != nil {
		delta = clamp(*v.ConfidenceDelta, -100, 100)
	}

	newOutcome := domain.OutcomeUnset
	if rec == domain.RecommendOverturn {
		switch strings.ToLower(strings.TrimSpace(v.NewOutcome)) {
		case string(domain.OutcomeYes):
			newOutcome = domain.OutcomeYes
		case string(domain.OutcomeNo):
			newOutcome = domain.OutcomeNo
		default:
			// An overturn without a concrete new outcome is not actionable.
			return domain.ReconsiderationResult{}, fmt.Errorf("agent: decode reconsideration: overturn without new_outcome")
		}
	}

	return domain.ReconsiderationResult{
		MarketID:        req.MarketID,
		Recommendation:  rec,
		ConfidenceDelta: delta,
		NewOutcome:      newOutcome,
		Annotation:      strings.TrimSpace(v.Annotation),
		Reasoning:       strings.TrimSpace(v.Reasoning),
	}, nil
}

func uphold(req domain.ReconsiderationRequest, reason string) domain.ReconsiderationResult {
	return domain.ReconsiderationResult{
		MarketID:       req.MarketID,
		Recommendation: domain.RecommendUphold,
		NewOutcome:     domain.OutcomeUnset,
		Reasoning:      reason,
	}
}

func allZeroConfidence(facts []domain.Fact) bool {
	for _, f := range facts {
		if f.Confidence > 0 {
			return false
		}
	}
	return true
}
