package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeZeroValueIsUnset(t *testing.T) {
	var m Market
	assert.Equal(t, OutcomeUnset, m.Outcome, "a market without an explicit outcome is unset")
	assert.Equal(t, "unset", m.Outcome.String())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "unset", OutcomeUnset.String())
	assert.Equal(t, "yes", OutcomeYes.String())
	assert.Equal(t, "no", OutcomeNo.String())
}

func TestParseOutcome(t *testing.T) {
	assert.Equal(t, OutcomeYes, ParseOutcome("yes"))
	assert.Equal(t, OutcomeNo, ParseOutcome("no"))
	assert.Equal(t, OutcomeUnset, ParseOutcome("unset"))
	assert.Equal(t, OutcomeUnset, ParseOutcome(""))
	assert.Equal(t, OutcomeUnset, ParseOutcome("maybe"))
}

func TestOutcomeRoundTrip(t *testing.T) {
	for _, o := range []Outcome{OutcomeUnset, OutcomeYes, OutcomeNo} {
		assert.Equal(t, o, ParseOutcome(o.String()))
	}
}

func TestOutcomeLedgerCode(t *testing.T) {
	assert.Equal(t, uint8(1), OutcomeYes.LedgerCode())
	assert.Equal(t, uint8(0), OutcomeNo.LedgerCode())
}

func TestStakeWon(t *testing.T) {
	yes := StakeRecord{Direction: true}
	no := StakeRecord{Direction: false}

	assert.True(t, yes.Won(OutcomeYes))
	assert.False(t, yes.Won(OutcomeNo))
	assert.True(t, no.Won(OutcomeNo))
	assert.False(t, no.Won(OutcomeYes))
}

func TestResolvable(t *testing.T) {
	assert.True(t, Market{Status: MarketStatusOpen}.Resolvable())
	for _, st := range []MarketStatus{
		MarketStatusResearching, MarketStatusJudging, MarketStatusExecuting,
		MarketStatusResolved, MarketStatusDisputed,
	} {
		assert.False(t, Market{Status: st}.Resolvable(), string(st))
	}
}
