package settle

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/ledger"
	"github.com/prophecy-labs/prophecyd/internal/logstream"
	"github.com/prophecy-labs/prophecyd/internal/store/memory"
)

type executorFixture struct {
	executor *Executor
	settler  *fakeSettler
	markets  *memory.MarketStore
	audit    *memory.AuditStore
	disb     *memory.DistributionStore
	logs     *logstream.Ring
}

func newExecutorFixture(t *testing.T, settler *fakeSettler) *executorFixture {
	t.Helper()
	markets := memory.NewMarketStore()
	audit := memory.NewAuditStore()
	disb := memory.NewDistributionStore()
	logs := logstream.NewRing(0)
	distributor := NewDistributor(settler, disb, audit, logs, 0, testLogger())
	executor := NewExecutor(settler, markets, audit, logs, nil, distributor, testLogger())
	return &executorFixture{
		executor: executor,
		settler:  settler,
		markets:  markets,
		audit:    audit,
		disb:     disb,
		logs:     logs,
	}
}

func testDigest(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func openMarket(t *testing.T, fx *executorFixture, id string) domain.Market {
	t.Helper()
	m := domain.Market{
		ID:       id,
		Address:  "addr-" + id,
		Question: "Will it happen?",
		Status:   domain.MarketStatusExecuting,
	}
	require.NoError(t, fx.markets.Upsert(context.Background(), m))
	return m
}

func TestSettleTerminalVerdict(t *testing.T) {
	settler := &fakeSettler{stakes: []domain.StakeRecord{
		{User: "alice", Amount: 100, Direction: true, Timestamp: time.Now()},
	}}
	fx := newExecutorFixture(t, settler)
	market := openMarket(t, fx, "m1")

	verdict := domain.Verdict{Decision: domain.DecisionYes, Confidence: 90, Iteration: 1}
	rec := domain.TranscriptRecord{MarketID: "m1", Digest: testDigest("bundle")}

	res, err := fx.executor.Settle(context.Background(), market, verdict, rec)
	require.NoError(t, err)
	assert.Equal(t, 1, settler.resolveCalls)
	assert.Equal(t, 1, res.Distributed)

	got, err := fx.markets.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, got.Status)
	assert.Equal(t, domain.OutcomeYes, got.Outcome)
	assert.Equal(t, rec.Digest, got.TranscriptDigest)
	require.NotNil(t, got.ResolvedAt)

	entries, err := fx.audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	var resolved bool
	for _, e := range entries {
		if e.Action == "market_resolved" && e.Subject == "m1" {
			resolved = true
			assert.Equal(t, "sig-resolve", e.Signature)
		}
	}
	assert.True(t, resolved)
}

func TestSettleUncertainSkipsLedger(t *testing.T) {
	settler := &fakeSettler{}
	fx := newExecutorFixture(t, settler)
	market := openMarket(t, fx, "m1")

	verdict := domain.Verdict{Decision: domain.DecisionUncertain, Iteration: 3}
	res, err := fx.executor.Settle(context.Background(), market, verdict, domain.TranscriptRecord{MarketID: "m1"})
	require.NoError(t, err)

	// No ledger write, no payouts, market reopened.
	assert.Equal(t, 0, settler.resolveCalls)
	assert.Empty(t, settler.disburseCalls)
	assert.Zero(t, res.Total)

	got, err := fx.markets.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, got.Status)
	assert.Equal(t, domain.OutcomeUnset, got.Outcome)

	entries, err := fx.audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "resolution_inconclusive", entries[0].Action)
}

func TestSettleAlreadyResolvedAborts(t *testing.T) {
	settler := &fakeSettler{
		resolveErr: fmt.Errorf("ledger: AlreadyResolved: %w", domain.ErrAlreadyResolved),
		stakes: []domain.StakeRecord{
			{User: "alice", Amount: 50, Direction: false, Timestamp: time.Now()},
		},
	}
	fx := newExecutorFixture(t, settler)
	market := openMarket(t, fx, "m1")

	// This run's verdict may disagree with the outcome the ledger holds, so
	// nothing from it may be paid or persisted.
	verdict := domain.Verdict{Decision: domain.DecisionNo, Iteration: 1}
	rec := domain.TranscriptRecord{MarketID: "m1", Digest: testDigest("bundle")}

	_, err := fx.executor.Settle(context.Background(), market, verdict, rec)
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
	assert.Empty(t, settler.disburseCalls)

	got, err := fx.markets.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusExecuting, got.Status, "the local outcome stays untouched")
	assert.Equal(t, domain.OutcomeUnset, got.Outcome)
}

func TestResumeDistribution(t *testing.T) {
	t.Run("PaysLedgerOutcome", func(t *testing.T) {
		// The ledger holds NO even though a fresh run might judge YES: the
		// committed outcome decides who gets paid.
		settler := &fakeSettler{
			marketState: ledger.MarketState{Resolved: true, Outcome: 0, TranscriptHash: testDigest("committed")},
			stakes: []domain.StakeRecord{
				{User: "alice", Amount: 50, Direction: false, Timestamp: time.Now()},
				{User: "bob", Amount: 70, Direction: true, Timestamp: time.Now()},
			},
		}
		fx := newExecutorFixture(t, settler)
		openMarket(t, fx, "m1")

		res, err := fx.executor.ResumeDistribution(context.Background(), "m1")
		require.NoError(t, err)
		assert.Equal(t, 1, res.Distributed)
		assert.Equal(t, []string{"alice"}, settler.disburseCalls)
		assert.Equal(t, 0, settler.resolveCalls, "resuming never re-resolves")

		got, err := fx.markets.GetByID(context.Background(), "m1")
		require.NoError(t, err)
		assert.Equal(t, domain.MarketStatusResolved, got.Status)
		assert.Equal(t, domain.OutcomeNo, got.Outcome)
		assert.Equal(t, testDigest("committed"), got.TranscriptDigest)
	})

	t.Run("RejectsUnresolvedLedgerMarket", func(t *testing.T) {
		settler := &fakeSettler{}
		fx := newExecutorFixture(t, settler)
		openMarket(t, fx, "m1")

		_, err := fx.executor.ResumeDistribution(context.Background(), "m1")
		require.ErrorIs(t, err, domain.ErrMarketNotOpen)
		assert.Empty(t, settler.disburseCalls)
	})

	t.Run("UnknownMarket", func(t *testing.T) {
		fx := newExecutorFixture(t, &fakeSettler{})
		_, err := fx.executor.ResumeDistribution(context.Background(), "nope")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestSettleResolveFailureStopsRun(t *testing.T) {
	settler := &fakeSettler{resolveErr: errors.New("gateway unreachable")}
	fx := newExecutorFixture(t, settler)
	market := openMarket(t, fx, "m1")

	verdict := domain.Verdict{Decision: domain.DecisionYes, Iteration: 1}
	rec := domain.TranscriptRecord{MarketID: "m1", Digest: testDigest("bundle")}

	_, err := fx.executor.Settle(context.Background(), market, verdict, rec)
	require.Error(t, err)
	assert.Empty(t, settler.disburseCalls)

	// The market must not be marked resolved after a failed commit.
	got, err := fx.markets.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusExecuting, got.Status)
}

func TestDisputeMarket(t *testing.T) {
	settler := &fakeSettler{}
	fx := newExecutorFixture(t, settler)

	t.Run("ResolvedMarket", func(t *testing.T) {
		now := time.Now().UTC()
		require.NoError(t, fx.markets.Upsert(context.Background(), domain.Market{
			ID:         "m1",
			Address:    "addr-m1",
			Status:     domain.MarketStatusResolved,
			Outcome:    domain.OutcomeYes,
			ResolvedAt: &now,
		}))

		require.NoError(t, fx.executor.DisputeMarket(context.Background(), "m1"))

		got, err := fx.markets.GetByID(context.Background(), "m1")
		require.NoError(t, err)
		assert.Equal(t, domain.MarketStatusDisputed, got.Status)
	})

	t.Run("OpenMarketRejected", func(t *testing.T) {
		require.NoError(t, fx.markets.Upsert(context.Background(), domain.Market{
			ID:     "m2",
			Status: domain.MarketStatusOpen,
		}))

		err := fx.executor.DisputeMarket(context.Background(), "m2")
		require.ErrorIs(t, err, domain.ErrMarketNotOpen)
	})

	t.Run("UnknownMarket", func(t *testing.T) {
		err := fx.executor.DisputeMarket(context.Background(), "nope")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestRewardEvidence(t *testing.T) {
	settler := &fakeSettler{}
	fx := newExecutorFixture(t, settler)

	require.NoError(t, fx.executor.RewardEvidence(context.Background(), "alice", 5))

	entries, err := fx.audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cred_earned", entries[0].Action)
	assert.Equal(t, "alice", entries[0].Subject)
	require.NotNil(t, entries[0].Amount)
	assert.Equal(t, uint64(5), *entries[0].Amount)
}
