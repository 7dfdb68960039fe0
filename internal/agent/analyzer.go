// Package agent implements the evidence analyzer and the verdict and
// reconsideration judges. Each turns model output into typed results through
// strict schema decoding that fails closed: any shape mismatch degrades to the
// component's safe default rather than a best-effort guess.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/genai"
)

// Analyzer turns raw facts and evidence into a confidence-scored fact set.
type Analyzer struct {
	gen    genai.Generator
	logs   domain.LogStore
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(gen genai.Generator, logs domain.LogStore, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		gen:    gen,
		logs:   logs,
		logger: logger.With(slog.String("component", "analyzer")),
	}
}

type factsEnvelope struct {
	Facts []factJSON `json:"facts"`
}

type factJSON struct {
	Text       string `json:"text"`
	Confidence *int   `json:"confidence"`
}

// Analyze researches the question against the supplied source content and
// evidence, returning an ordered fact list with parallel confidence scores.
//
// On generation or parse failure it returns a single "unable to verify" fact
// with confidence 0; the workflow continues and the judge sees the degraded
// input. Every produced fact is narrated to the log stream.
func (a *Analyzer) Analyze(ctx context.Context, marketID, question, sourceContent string, evidence []domain.EvidenceItem) []domain.Fact {
	prompt := buildResearchPrompt(question, sourceContent, evidence)

	raw, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		a.logger.Error("research generation failed", slog.String("market_id", marketID), slog.String("error", err.Error()))
		a.narrate(ctx, marketID, "Research failed: unable to verify the claim from available sources.", domain.SentimentNegative)
		return fallbackFacts()
	}

	facts, err := decodeFacts(raw)
	if err != nil {
		a.logger.Warn("research output failed schema decode", slog.String("market_id", marketID), slog.String("error", err.Error()))
		a.narrate(ctx, marketID, "Research produced unusable output: unable to verify the claim.", domain.SentimentNegative)
		return fallbackFacts()
	}

	a.narrate(ctx, marketID,
		fmt.Sprintf("Research complete: %d facts gathered for %q.", len(facts), truncate(question, 120)),
		domain.SentimentNeutral)
	for _, f := range facts {
		sentiment := domain.SentimentNeutral
		if f.Confidence > 70 {
			sentiment = domain.SentimentPositive
		}
		a.narrate(ctx, marketID, fmt.Sprintf("Fact (%d%%): %s", f.Confidence, f.Text), sentiment)
	}

	return facts
}

// decodeFacts strictly decodes the model's JSON fact envelope. Unknown fields,
// trailing garbage, or an empty fact list are all decode failures.
func decodeFacts(raw string) ([]domain.Fact, error) {
	var env factsEnvelope
	if err := decodeStrict(raw, &env); err != nil {
		return nil, fmt.Errorf("agent: decode facts: %w", err)
	}
	if len(env.Facts) == 0 {
		return nil, fmt.Errorf("agent: decode facts: empty fact list")
	}

	facts := make([]domain.Fact, 0, len(env.Facts))
	for _, f := range env.Facts {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		conf := domain.DefaultFactConfidence
		if f.Confidence != nil {
			conf = clamp(*f.Confidence, 0, 100)
		}
		facts = append(facts, domain.Fact{Text: text, Confidence: conf})
	}
	if len(facts) == 0 {
		return nil, fmt.Errorf("agent: decode facts: no usable facts")
	}
	return facts, nil
}

func fallbackFacts() []domain.Fact {
	return []domain.Fact{{Text: "Unable to verify the claim from available sources.", Confidence: 0}}
}

func (a *Analyzer) narrate(ctx context.Context, marketID, msg string, sentiment domain.Sentiment) {
	entry := domain.LogEntry{
		ID:        uuid.New().String(),
		MarketID:  marketID,
		Speaker:   domain.SpeakerResearcher,
		Message:   msg,
		Sentiment: sentiment,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.logs.Append(ctx, entry); err != nil {
		a.logger.Warn("log append failed", slog.String("error", err.Error()))
	}
}

// decodeStrict decodes exactly one JSON value from raw after fence stripping.
// Unknown fields and any trailing data after the value are decode failures.
func decodeStrict(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(stripFence(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing data after JSON value")
	}
	return nil
}

// stripFence removes a single markdown code fence wrapping the payload, which
// some models emit even when told not to. Anything else is left for the strict
// decoder to reject.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
