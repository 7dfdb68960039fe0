package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/logstream"
)

// cannedGen returns a fixed output (or error) for every call.
type cannedGen struct {
	output string
	err    error
	calls  int
}

func (g *cannedGen) Generate(_ context.Context, _ string) (string, error) {
	g.calls++
	return g.output, g.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAnalyzerParsesFacts(t *testing.T) {
	gen := &cannedGen{output: `{"facts": [
		{"text": "The event happened on March 3.", "confidence": 92},
		{"text": "Two outlets reported it independently."}
	]}`}
	logs := logstream.NewRing(0)
	a := NewAnalyzer(gen, logs, discardLogger())

	facts := a.Analyze(context.Background(), "m1", "Did the event happen?", "", nil)

	require.Len(t, facts, 2)
	assert.Equal(t, 92, facts[0].Confidence)
	assert.Equal(t, domain.DefaultFactConfidence, facts[1].Confidence, "missing confidence takes the default")

	// Every fact is narrated, plus the completion line.
	tail, err := logs.TailByMarket(context.Background(), "m1", 10)
	require.NoError(t, err)
	assert.Len(t, tail, 3)
}

func TestAnalyzerDegradesOnBadOutput(t *testing.T) {
	cases := []struct {
		name string
		gen  *cannedGen
	}{
		{"GenerationError", &cannedGen{err: errors.New("upstream timeout")}},
		{"NotJSON", &cannedGen{output: "I could not find anything."}},
		{"EmptyFactList", &cannedGen{output: `{"facts": []}`}},
		{"UnknownField", &cannedGen{output: `{"facts": [{"text": "x", "confidence": 50}], "summary": "extra"}`}},
		{"OnlyBlankFacts", &cannedGen{output: `{"facts": [{"text": "   "}]}`}},
		{"TrailingGarbage", &cannedGen{output: `{"facts": [{"text": "x", "confidence": 50}]} and some prose`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAnalyzer(tc.gen, logstream.NewRing(0), discardLogger())
			facts := a.Analyze(context.Background(), "m1", "q", "", nil)
			require.Len(t, facts, 1)
			assert.Equal(t, 0, facts[0].Confidence)
		})
	}
}

func TestAnalyzerClampsConfidence(t *testing.T) {
	gen := &cannedGen{output: `{"facts": [
		{"text": "overshoot", "confidence": 140},
		{"text": "undershoot", "confidence": -5}
	]}`}
	a := NewAnalyzer(gen, logstream.NewRing(0), discardLogger())

	facts := a.Analyze(context.Background(), "m1", "q", "", nil)
	require.Len(t, facts, 2)
	assert.Equal(t, 100, facts[0].Confidence)
	assert.Equal(t, 0, facts[1].Confidence)
}

func TestJudgeDecide(t *testing.T) {
	facts := []domain.Fact{{Text: "confirmed", Confidence: 90}}

	t.Run("TerminalVerdict", func(t *testing.T) {
		gen := &cannedGen{output: `{"decision": "YES", "reasoning": "Confirmed by two sources.", "confidence": 88}`}
		j := NewJudge(gen, logstream.NewRing(0), discardLogger())

		v := j.Decide(context.Background(), "m1", "q", facts, 2)
		assert.Equal(t, domain.DecisionYes, v.Decision)
		assert.Equal(t, 88, v.Confidence)
		assert.Equal(t, 2, v.Iteration)
		assert.True(t, v.Decision.Terminal())
	})

	t.Run("FencedOutput", func(t *testing.T) {
		gen := &cannedGen{output: "```json\n{\"decision\": \"NO\", \"reasoning\": \"Refuted.\", \"confidence\": 75}\n```"}
		j := NewJudge(gen, logstream.NewRing(0), discardLogger())

		v := j.Decide(context.Background(), "m1", "q", facts, 1)
		assert.Equal(t, domain.DecisionNo, v.Decision)
	})

	t.Run("UnknownDecisionIsUncertain", func(t *testing.T) {
		gen := &cannedGen{output: `{"decision": "PROBABLY", "reasoning": "hedging"}`}
		j := NewJudge(gen, logstream.NewRing(0), discardLogger())

		v := j.Decide(context.Background(), "m1", "q", facts, 1)
		assert.Equal(t, domain.DecisionUncertain, v.Decision)
		assert.Equal(t, 0, v.Confidence)
		assert.Equal(t, 1, v.Iteration)
	})

	t.Run("GenerationFailureIsUncertain", func(t *testing.T) {
		gen := &cannedGen{err: errors.New("rate limited")}
		j := NewJudge(gen, logstream.NewRing(0), discardLogger())

		v := j.Decide(context.Background(), "m1", "q", facts, 3)
		assert.Equal(t, domain.DecisionUncertain, v.Decision)
		assert.Equal(t, 3, v.Iteration)
	})
}

func TestDecodeVerdictRejectsTrailingGarbage(t *testing.T) {
	_, err := decodeVerdict(`{"decision": "YES", "reasoning": "ok"} extra`)
	require.Error(t, err)

	// A second JSON value after the first is rejected the same way.
	_, err = decodeVerdict(`{"decision": "YES"} {"decision": "NO"}`)
	require.Error(t, err)
}

func TestDecodeReconsideration(t *testing.T) {
	req := domain.ReconsiderationRequest{MarketID: "m1", OriginalOutcome: domain.OutcomeYes}

	t.Run("OverturnCarriesNewOutcome", func(t *testing.T) {
		res, err := decodeReconsideration(req, `{"recommendation": "overturn", "confidence_delta": -150, "new_outcome": "no", "reasoning": "refuted"}`)
		require.NoError(t, err)
		assert.Equal(t, domain.RecommendOverturn, res.Recommendation)
		assert.Equal(t, domain.OutcomeNo, res.NewOutcome)
		assert.Equal(t, -100, res.ConfidenceDelta, "delta is clamped")
	})

	t.Run("OverturnWithoutNewOutcomeFails", func(t *testing.T) {
		_, err := decodeReconsideration(req, `{"recommendation": "OVERTURN", "reasoning": "refuted"}`)
		require.Error(t, err)
	})

	t.Run("TrailingGarbageFails", func(t *testing.T) {
		_, err := decodeReconsideration(req, `{"recommendation": "UPHOLD"} trailing`)
		require.Error(t, err)
	})

	t.Run("UpholdIgnoresNewOutcome", func(t *testing.T) {
		res, err := decodeReconsideration(req, `{"recommendation": "UPHOLD", "new_outcome": "no", "reasoning": "stands"}`)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeUnset, res.NewOutcome)
	})
}

func TestWeighUpholdsWithoutVerifiableFacts(t *testing.T) {
	gen := &cannedGen{output: `{"recommendation": "OVERTURN", "new_outcome": "no"}`}
	j := NewReconsiderationJudge(gen, discardLogger())
	req := domain.ReconsiderationRequest{MarketID: "m1", OriginalOutcome: domain.OutcomeYes}

	res := j.Weigh(context.Background(), req, []domain.Fact{{Text: "unverified", Confidence: 0}})
	assert.Equal(t, domain.RecommendUphold, res.Recommendation)
	assert.Zero(t, gen.calls, "zero-confidence facts never reach the model")
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(`{"a":1}`))
}
