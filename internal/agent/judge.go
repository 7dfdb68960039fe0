package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/genai"
)

// Judge renders a verdict from a fact set. It never silently defaults to YES
// or NO: ambiguous evidence and unparseable model output both yield UNCERTAIN.
type Judge struct {
	gen    genai.Generator
	logs   domain.LogStore
	logger *slog.Logger
}

// NewJudge creates a Judge.
func NewJudge(gen genai.Generator, logs domain.LogStore, logger *slog.Logger) *Judge {
	return &Judge{
		gen:    gen,
		logs:   logs,
		logger: logger.With(slog.String("component", "judge")),
	}
}

type verdictJSON struct {
	Decision   string `json:"decision"`
	Reasoning  string `json:"reasoning"`
	Confidence *int   `json:"confidence"`
}

// Decide judges the question from the fact set. iteration is the 1-based pass
// number maintained by the orchestrator.
func (j *Judge) Decide(ctx context.Context, marketID, question string, facts []domain.Fact, iteration int) domain.Verdict {
	prompt := buildVerdictPrompt(question, facts)

	raw, err := j.gen.Generate(ctx, prompt)
	if err != nil {
		j.logger.Error("verdict generation failed", slog.String("market_id", marketID), slog.String("error", err.Error()))
		return j.uncertain(ctx, marketID, iteration, "Judgment unavailable: generation failed.")
	}

	verdict, err := decodeVerdict(raw)
	if err != nil {
		j.logger.Warn("verdict output failed schema decode", slog.String("market_id", marketID), slog.String("error", err.Error()))
		return j.uncertain(ctx, marketID, iteration, "Judgment unavailable: output could not be parsed.")
	}
	verdict.Iteration = iteration

	sentiment := domain.SentimentNeutral
	if verdict.Decision.Terminal() {
		sentiment = domain.SentimentPositive
	}
	j.narrate(ctx, marketID,
		fmt.Sprintf("Verdict (pass %d): %s (%d%%) — %s", iteration, verdict.Decision, verdict.Confidence, truncate(verdict.Reasoning, 200)),
		sentiment)

	return verdict
}

// decodeVerdict strictly decodes the model's verdict object. Any decision
// value other than YES/NO/UNCERTAIN is a decode failure, as is trailing data
// after the object.
func decodeVerdict(raw string) (domain.Verdict, error) {
	var v verdictJSON
	if err := decodeStrict(raw, &v); err != nil {
		return domain.Verdict{}, fmt.Errorf("agent: decode verdict: %w", err)
	}

	var decision domain.Decision
	switch strings.ToUpper(strings.TrimSpace(v.Decision)) {
	case string(domain.DecisionYes):
		decision = domain.DecisionYes
	case string(domain.DecisionNo):
		decision = domain.DecisionNo
	case string(domain.DecisionUncertain):
		decision = domain.DecisionUncertain
	default:
		return domain.Verdict{}, fmt.Errorf("agent: decode verdict: unknown decision %q", v.Decision)
	}

	conf := 0
	if v.Confidence != nil {
		conf = clamp(*v.Confidence, 0, 100)
	}

	return domain.Verdict{
		Decision:   decision,
		Reasoning:  strings.TrimSpace(v.Reasoning),
		Confidence: conf,
	}, nil
}

func (j *Judge) uncertain(ctx context.Context, marketID string, iteration int, reason string) domain.Verdict {
	j.narrate(ctx, marketID, reason, domain.SentimentNegative)
	return domain.Verdict{
		Decision:   domain.DecisionUncertain,
		Reasoning:  reason,
		Confidence: 0,
		Iteration:  iteration,
	}
}

func (j *Judge) narrate(ctx context.Context, marketID, msg string, sentiment domain.Sentiment) {
	entry := domain.LogEntry{
		ID:        uuid.New().String(),
		MarketID:  marketID,
		Speaker:   domain.SpeakerJudge,
		Message:   msg,
		Sentiment: sentiment,
		CreatedAt: time.Now().UTC(),
	}
	if err := j.logs.Append(ctx, entry); err != nil {
		j.logger.Warn("log append failed", slog.String("error", err.Error()))
	}
}
