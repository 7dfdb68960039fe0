package transcript

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/store/memory"
)

// fakePinner scripts the content-addressable store.
type fakePinner struct {
	cid  string
	err  error
	pins int
}

func (f *fakePinner) Pin(_ context.Context, _ []byte) (string, error) {
	f.pins++
	if f.err != nil {
		return "", f.err
	}
	return f.cid, nil
}

func (f *fakePinner) Retrieve(_ context.Context, _ string) ([]byte, error) {
	return nil, domain.ErrNotFound
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleBundle() domain.TranscriptBundle {
	market := domain.Market{ID: "m1", Address: "addr", Question: "Will it rain tomorrow?"}
	facts := []domain.Fact{{Text: "Forecast says 90% chance.", Confidence: 85}}
	verdict := domain.Verdict{Decision: domain.DecisionYes, Reasoning: "Strong forecast.", Confidence: 85, Iteration: 1}
	trail := []domain.LogEntry{{ID: "l1", MarketID: "m1", Speaker: domain.SpeakerJudge, Message: "done"}}
	evidence := []domain.EvidenceItem{{ID: "e1", MarketID: "m1", CID: "Qm123", Description: "radar image"}}
	return BuildBundle(market, facts, verdict, trail, evidence)
}

func TestEncodeDeterministic(t *testing.T) {
	bundle := sampleBundle()

	first, err := Encode(bundle)
	require.NoError(t, err)
	second, err := Encode(bundle)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same bundle must encode identically")
	assert.Equal(t, Digest(first), Digest(second))
	assert.Len(t, Digest(first), sha256.Size)

	// Any change to the bundle changes the digest.
	bundle.Reasoning = "Different reasoning."
	changed, err := Encode(bundle)
	require.NoError(t, err)
	assert.NotEqual(t, Digest(first), Digest(changed))
}

func TestBuildBundleCopiesInputs(t *testing.T) {
	facts := []domain.Fact{{Text: "original", Confidence: 50}}
	trail := []domain.LogEntry{{ID: "l1", Message: "original"}}

	bundle := BuildBundle(domain.Market{ID: "m1"}, facts, domain.Verdict{}, trail, nil)

	facts[0].Text = "mutated"
	trail[0].Message = "mutated"

	assert.Equal(t, "original", bundle.Facts[0].Text)
	assert.Equal(t, "original", bundle.LogTrail[0].Message)
}

func TestAnchorPinned(t *testing.T) {
	pinner := &fakePinner{cid: "bafy123"}
	records := memory.NewTranscriptStore()
	anchorer := NewAnchorer(pinner, records, nil, testLogger())

	rec, err := anchorer.Anchor(context.Background(), sampleBundle())
	require.NoError(t, err)

	assert.True(t, rec.Pinned)
	assert.Equal(t, "bafy123", rec.CID)
	// The anchored digest is the hash of the CID, not of the bundle content.
	assert.Equal(t, Digest([]byte("bafy123")), rec.Digest)
	assert.Len(t, rec.Digest, sha256.Size)
	assert.Equal(t, 1, pinner.pins)

	stored, err := records.GetByMarket(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, rec.CID, stored.CID)
	assert.Equal(t, rec.Digest, stored.Digest)

	// The stored bundle round-trips.
	var bundle domain.TranscriptBundle
	require.NoError(t, json.Unmarshal(stored.Bundle, &bundle))
	assert.Equal(t, "m1", bundle.MarketID)
	assert.Equal(t, domain.DecisionYes, bundle.Decision)
}

func TestAnchorPinFailureFallsBackToDigest(t *testing.T) {
	pinner := &fakePinner{err: errors.New("ipfs daemon unreachable")}
	records := memory.NewTranscriptStore()
	anchorer := NewAnchorer(pinner, records, nil, testLogger())

	rec, err := anchorer.Anchor(context.Background(), sampleBundle())
	require.NoError(t, err, "pin failure must not block anchoring")

	assert.False(t, rec.Pinned)
	assert.Empty(t, rec.CID)
	// The local digest is still the anchor.
	assert.Equal(t, Digest(rec.Bundle), rec.Digest)

	stored, err := records.GetByMarket(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, stored.Pinned)
	assert.Empty(t, stored.CID)
}
