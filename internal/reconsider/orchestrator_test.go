package reconsider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophecy-labs/prophecyd/internal/agent"
	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/logstream"
	"github.com/prophecy-labs/prophecyd/internal/store/memory"
	"github.com/prophecy-labs/prophecyd/internal/transcript"
)

// scriptedGen replays canned model outputs in order.
type scriptedGen struct {
	outputs []string
	calls   int
}

func (g *scriptedGen) Generate(_ context.Context, _ string) (string, error) {
	if g.calls >= len(g.outputs) {
		return "", fmt.Errorf("scripted generator exhausted after %d calls", g.calls)
	}
	out := g.outputs[g.calls]
	g.calls++
	return out, nil
}

type fixture struct {
	orchestrator *Orchestrator
	markets      *memory.MarketStore
	transcripts  *memory.TranscriptStore
	results      *memory.ReconsiderationStore
}

func newFixture(t *testing.T, gen *scriptedGen) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	markets := memory.NewMarketStore()
	transcripts := memory.NewTranscriptStore()
	results := memory.NewReconsiderationStore()
	logs := logstream.NewRing(0)

	orchestrator := NewOrchestrator(markets, transcripts, results,
		agent.NewAnalyzer(gen, logs, logger),
		agent.NewReconsiderationJudge(gen, logger),
		logs, logger)

	return &fixture{
		orchestrator: orchestrator,
		markets:      markets,
		transcripts:  transcripts,
		results:      results,
	}
}

func addResolvedMarket(t *testing.T, fx *fixture, id string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, fx.markets.Upsert(context.Background(), domain.Market{
		ID:         id,
		Question:   "Did the merger close?",
		Status:     domain.MarketStatusResolved,
		Outcome:    domain.OutcomeYes,
		ResolvedAt: &now,
	}))
}

func request(marketID string) domain.ReconsiderationRequest {
	return domain.ReconsiderationRequest{
		MarketID:     marketID,
		EvidenceCID:  "QmNewEvidence",
		EvidenceDesc: "Regulatory filing contradicting the reported close.",
		Submitter:    "alice",
	}
}

const (
	strongFactsJSON = `{"facts": [{"text": "The filing shows the merger was withdrawn.", "confidence": 95}]}`
	overturnJSON    = `{"recommendation": "OVERTURN", "confidence_delta": -80, "new_outcome": "no", "reasoning": "The filing directly contradicts the settled outcome."}`
	annotateJSON    = `{"recommendation": "ANNOTATE", "confidence_delta": -20, "annotation": "A filing raises questions.", "reasoning": "Noteworthy but not conclusive."}`
)

func TestRunOverturnRecommendation(t *testing.T) {
	gen := &scriptedGen{outputs: []string{strongFactsJSON, overturnJSON}}
	fx := newFixture(t, gen)
	addResolvedMarket(t, fx, "m1")

	res, err := fx.orchestrator.Run(context.Background(), request("m1"))
	require.NoError(t, err)

	assert.Equal(t, domain.RecommendOverturn, res.Recommendation)
	assert.Equal(t, domain.OutcomeNo, res.NewOutcome)
	assert.Equal(t, -80, res.ConfidenceDelta)
	assert.NotEmpty(t, res.ID)

	// The settled market is untouched: the recommendation is advisory only.
	m, err := fx.markets.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, m.Status)
	assert.Equal(t, domain.OutcomeYes, m.Outcome)

	stored, err := fx.results.ListByMarket(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, res.ID, stored[0].ID)
}

func TestRunUpholdsOnUnverifiableEvidence(t *testing.T) {
	// The analyzer output fails schema decode, degrading to a zero-confidence
	// fact; the judge must uphold without a second model call.
	gen := &scriptedGen{outputs: []string{"not json at all"}}
	fx := newFixture(t, gen)
	addResolvedMarket(t, fx, "m1")

	res, err := fx.orchestrator.Run(context.Background(), request("m1"))
	require.NoError(t, err)

	assert.Equal(t, domain.RecommendUphold, res.Recommendation)
	assert.Equal(t, domain.OutcomeUnset, res.NewOutcome)
	assert.Equal(t, 1, gen.calls, "no judge call for unverifiable evidence")
}

func TestRunUpholdsOnMalformedJudgeOutput(t *testing.T) {
	gen := &scriptedGen{outputs: []string{strongFactsJSON, `{"recommendation": "REVERSE-IT"}`}}
	fx := newFixture(t, gen)
	addResolvedMarket(t, fx, "m1")

	res, err := fx.orchestrator.Run(context.Background(), request("m1"))
	require.NoError(t, err)
	assert.Equal(t, domain.RecommendUphold, res.Recommendation)
}

func TestRunAnnotate(t *testing.T) {
	gen := &scriptedGen{outputs: []string{strongFactsJSON, annotateJSON}}
	fx := newFixture(t, gen)
	addResolvedMarket(t, fx, "m1")

	res, err := fx.orchestrator.Run(context.Background(), request("m1"))
	require.NoError(t, err)
	assert.Equal(t, domain.RecommendAnnotate, res.Recommendation)
	assert.Equal(t, "A filing raises questions.", res.Annotation)
}

func TestRunRequiresSettledMarket(t *testing.T) {
	fx := newFixture(t, &scriptedGen{})

	t.Run("OpenMarket", func(t *testing.T) {
		require.NoError(t, fx.markets.Upsert(context.Background(), domain.Market{
			ID:     "open",
			Status: domain.MarketStatusOpen,
		}))
		_, err := fx.orchestrator.Run(context.Background(), request("open"))
		require.ErrorIs(t, err, domain.ErrMarketNotOpen)
	})

	t.Run("UnknownMarket", func(t *testing.T) {
		_, err := fx.orchestrator.Run(context.Background(), request("nope"))
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestRunRecoversReasoningFromTranscript(t *testing.T) {
	gen := &scriptedGen{outputs: []string{strongFactsJSON, annotateJSON}}
	fx := newFixture(t, gen)
	addResolvedMarket(t, fx, "m1")

	bundle := transcript.BuildBundle(
		domain.Market{ID: "m1", Question: "Did the merger close?"},
		nil,
		domain.Verdict{Decision: domain.DecisionYes, Reasoning: "Press releases confirmed the close."},
		nil, nil,
	)
	encoded, err := transcript.Encode(bundle)
	require.NoError(t, err)
	require.NoError(t, fx.transcripts.Put(context.Background(), domain.TranscriptRecord{
		MarketID: "m1",
		Digest:   transcript.Digest(encoded),
		Bundle:   encoded,
	}))

	_, err = fx.orchestrator.Run(context.Background(), request("m1"))
	require.NoError(t, err)
}
