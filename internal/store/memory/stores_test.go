package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

func TestMarketStoreLifecycle(t *testing.T) {
	s := NewMarketStore()
	ctx := context.Background()

	_, err := s.GetByID(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Upsert(ctx, domain.Market{ID: "m1", Address: "addr1", Question: "q", Status: domain.MarketStatusOpen}))

	m, err := s.GetByAddress(ctx, "addr1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.False(t, m.CreatedAt.IsZero(), "upsert stamps creation time")

	require.NoError(t, s.UpdateStatus(ctx, "m1", domain.MarketStatusJudging))
	m, err = s.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusJudging, m.Status)

	require.ErrorIs(t, s.UpdateStatus(ctx, "missing", domain.MarketStatusOpen), domain.ErrNotFound)
}

func TestMarketStoreSetResolved(t *testing.T) {
	s := NewMarketStore()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, domain.Market{ID: "m1", Status: domain.MarketStatusExecuting}))

	digest := []byte{0xde, 0xad, 0xbe, 0xef}
	at := time.Now().UTC()
	require.NoError(t, s.SetResolved(ctx, "m1", domain.OutcomeYes, digest, at))

	m, err := s.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, m.Status)
	assert.Equal(t, domain.OutcomeYes, m.Outcome)
	assert.Equal(t, digest, m.TranscriptDigest)
	require.NotNil(t, m.ResolvedAt)
	assert.True(t, m.ResolvedAt.Equal(at))

	// The stored digest is a copy, not an alias.
	digest[0] = 0x00
	m, err = s.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.EqualValues(t, 0xde, m.TranscriptDigest[0])
}

func TestMarketStoreListByStatus(t *testing.T) {
	s := NewMarketStore()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Upsert(ctx, domain.Market{
			ID:        fmt.Sprintf("m%d", i),
			Status:    domain.MarketStatusOpen,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.Upsert(ctx, domain.Market{ID: "done", Status: domain.MarketStatusResolved, CreatedAt: base}))

	open, err := s.ListByStatus(ctx, domain.MarketStatusOpen, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, open, 5)
	assert.Equal(t, "m4", open[0].ID, "newest first")

	page, err := s.ListByStatus(ctx, domain.MarketStatusOpen, domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m3", page[0].ID)
	assert.Equal(t, "m2", page[1].ID)

	since := base.Add(3 * time.Minute)
	recent, err := s.ListByStatus(ctx, domain.MarketStatusOpen, domain.ListOpts{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestEvidenceStoreCap(t *testing.T) {
	s := NewEvidenceStore()
	ctx := context.Background()

	for i := 0; i < domain.MaxEvidencePerMarket; i++ {
		require.NoError(t, s.Append(ctx, domain.EvidenceItem{MarketID: "m1", CID: fmt.Sprintf("Qm%d", i)}))
	}
	err := s.Append(ctx, domain.EvidenceItem{MarketID: "m1", CID: "QmOverflow"})
	require.ErrorIs(t, err, domain.ErrTooMuchEvidence)

	// The cap is per market.
	require.NoError(t, s.Append(ctx, domain.EvidenceItem{MarketID: "m2", CID: "QmOther"}))

	n, err := s.CountByMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MaxEvidencePerMarket, n)

	items, err := s.ListByMarket(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, items, domain.MaxEvidencePerMarket)
	assert.NotEmpty(t, items[0].ID, "append assigns IDs")
	assert.False(t, items[0].SubmittedAt.IsZero())
}

func TestTranscriptStoreRoundTrip(t *testing.T) {
	s := NewTranscriptStore()
	ctx := context.Background()

	_, err := s.GetByMarket(ctx, "m1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	rec := domain.TranscriptRecord{MarketID: "m1", CID: "bafy1", Pinned: true, Bundle: []byte(`{}`)}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.GetByMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// Re-anchoring overwrites.
	rec.CID = "bafy2"
	require.NoError(t, s.Put(ctx, rec))
	got, err = s.GetByMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "bafy2", got.CID)
}

func TestDistributionStoreNeverDowngradesSuccess(t *testing.T) {
	s := NewDistributionStore()
	ctx := context.Background()

	require.NoError(t, s.RecordDisbursement(ctx, domain.Disbursement{
		MarketID: "m1", User: "alice", Amount: 200, Signature: "sig1", Succeeded: true,
	}))
	require.NoError(t, s.RecordDisbursement(ctx, domain.Disbursement{
		MarketID: "m1", User: "alice", Amount: 200, Succeeded: false, Error: "rpc timeout",
	}))

	list, err := s.ListDisbursements(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Succeeded, "a succeeded row stays succeeded")

	// A failed row may be upgraded by a later success.
	require.NoError(t, s.RecordDisbursement(ctx, domain.Disbursement{
		MarketID: "m1", User: "bob", Succeeded: false, Error: "rpc timeout",
	}))
	require.NoError(t, s.RecordDisbursement(ctx, domain.Disbursement{
		MarketID: "m1", User: "bob", Amount: 80, Signature: "sig2", Succeeded: true,
	}))

	list, err = s.ListDisbursements(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].User, "sorted by user")
	assert.True(t, list[1].Succeeded)
}

func TestDistributionStoreResults(t *testing.T) {
	s := NewDistributionStore()
	ctx := context.Background()

	_, err := s.GetResult(ctx, "m1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	res := domain.DistributionResult{MarketID: "m1", Outcome: domain.OutcomeYes, Distributed: 3, Failed: 1, Total: 4}
	require.NoError(t, s.PutResult(ctx, res))

	got, err := s.GetResult(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, res.Distributed, got.Distributed)
	assert.Equal(t, got.Total, got.Distributed+got.Failed)
}

func TestAuditStoreListNewestFirst(t *testing.T) {
	s := NewAuditStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Log(ctx, domain.AuditEntry{Action: fmt.Sprintf("a%d", i), Actor: "resolver"}))
	}

	entries, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a2", entries[0].Action)
	assert.Equal(t, int64(3), entries[0].ID, "IDs are assigned sequentially")

	limited, err := s.List(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "a1", limited[0].Action)
}
