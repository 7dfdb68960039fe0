package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSchedulerFiresResolution(t *testing.T) {
	gen := &scriptedGen{outputs: []string{factsJSON, verdictYesJSON}}
	settler := &stubSettler{}
	fx := newWorkflowFixture(t, gen, settler)
	addOpenMarket(t, fx, "m1")

	sched := NewScheduler(fx.workflow, 2, testutilLogger())
	defer sched.Close()

	require.NoError(t, sched.Schedule("m1", 0, ""))
	waitFor(t, func() bool {
		m, err := fx.markets.GetByID(context.Background(), "m1")
		return err == nil && m.Status == domain.MarketStatusResolved
	}, "scheduled resolution never completed")

	assert.Empty(t, sched.Pending())
}

func TestSchedulerThreadsSourceContent(t *testing.T) {
	gen := &scriptedGen{outputs: []string{factsJSON, verdictYesJSON}}
	fx := newWorkflowFixture(t, gen, &stubSettler{})
	addOpenMarket(t, fx, "m1")

	sched := NewScheduler(fx.workflow, 2, testutilLogger())
	defer sched.Close()

	require.NoError(t, sched.Schedule("m1", 0, "the exchange confirmed the listing on March 3"))
	waitFor(t, func() bool {
		m, err := fx.markets.GetByID(context.Background(), "m1")
		return err == nil && m.Status == domain.MarketStatusResolved
	}, "scheduled resolution never completed")

	prompts := gen.seenPrompts()
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0], "the exchange confirmed the listing on March 3",
		"research prompt carries the trigger's source content")
}

func TestSchedulerCancel(t *testing.T) {
	fx := newWorkflowFixture(t, &scriptedGen{}, &stubSettler{})
	addOpenMarket(t, fx, "m1")

	sched := NewScheduler(fx.workflow, 2, testutilLogger())
	defer sched.Close()

	require.NoError(t, sched.Schedule("m1", time.Hour, ""))
	assert.Equal(t, []string{"m1"}, sched.Pending())

	assert.True(t, sched.Cancel("m1"))
	assert.Empty(t, sched.Pending())
	assert.False(t, sched.Cancel("m1"), "second cancel reports nothing pending")

	// The market never left open.
	m, err := fx.markets.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
}

func TestSchedulerRescheduleResetsTimer(t *testing.T) {
	fx := newWorkflowFixture(t, &scriptedGen{}, &stubSettler{})
	addOpenMarket(t, fx, "m1")

	sched := NewScheduler(fx.workflow, 2, testutilLogger())
	defer sched.Close()

	require.NoError(t, sched.Schedule("m1", time.Hour, ""))
	require.NoError(t, sched.Schedule("m1", time.Hour, ""))
	assert.Equal(t, []string{"m1"}, sched.Pending(), "rescheduling keeps a single pending entry")
}

func TestSchedulerRejectsAfterClose(t *testing.T) {
	fx := newWorkflowFixture(t, &scriptedGen{}, &stubSettler{})
	sched := NewScheduler(fx.workflow, 2, testutilLogger())
	require.NoError(t, sched.Close())

	err := sched.Schedule("m1", 0, "")
	require.Error(t, err)
}

func TestIsExpectedSkip(t *testing.T) {
	assert.True(t, isExpectedSkip(domain.ErrResolutionInFlight))
	assert.True(t, isExpectedSkip(domain.ErrAlreadyResolved))
	assert.True(t, isExpectedSkip(domain.ErrMarketNotOpen))
	assert.False(t, isExpectedSkip(domain.ErrNotFound))
	assert.False(t, isExpectedSkip(context.Canceled))
}
