package domain

import "time"

// MarketStatus represents the lifecycle state of a prediction market.
type MarketStatus string

const (
	MarketStatusOpen        MarketStatus = "open"
	MarketStatusResearching MarketStatus = "researching"
	MarketStatusJudging     MarketStatus = "judging"
	MarketStatusExecuting   MarketStatus = "executing"
	MarketStatusResolved    MarketStatus = "resolved"
	MarketStatusDisputed    MarketStatus = "disputed"
)

// Outcome is the committed result of a market. OutcomeUnset is the zero value,
// so a market constructed or loaded without an explicit outcome reports unset;
// it renders as "unset" at the API and database edges via String and
// ParseOutcome.
type Outcome string

const (
	OutcomeUnset Outcome = ""
	OutcomeYes   Outcome = "yes"
	OutcomeNo    Outcome = "no"
)

// outcomeUnsetLabel is the wire and storage label for the unset outcome.
const outcomeUnsetLabel = "unset"

// String renders the outcome label, mapping the zero value to "unset".
func (o Outcome) String() string {
	if o == OutcomeUnset {
		return outcomeUnsetLabel
	}
	return string(o)
}

// ParseOutcome maps a stored or wire label to an Outcome. Both "unset" and the
// empty string map to OutcomeUnset; unknown labels do too.
func ParseOutcome(s string) Outcome {
	switch s {
	case string(OutcomeYes):
		return OutcomeYes
	case string(OutcomeNo):
		return OutcomeNo
	default:
		return OutcomeUnset
	}
}

// LedgerCode returns the on-ledger outcome encoding (0 = No, 1 = Yes).
// Calling LedgerCode on OutcomeUnset is a programming error; it returns 0.
func (o Outcome) LedgerCode() uint8 {
	if o == OutcomeYes {
		return 1
	}
	return 0
}

// Market is a single prediction claim with Yes/No stake pools.
//
// Markets are created externally (on market initialization); this core mutates
// only Status, Outcome, ResolvedAt, and TranscriptDigest. A market whose status
// is resolved is immutable except via an explicit dispute transition.
type Market struct {
	ID               string
	Address          string // base58 ledger address, derivable from ID
	Question         string
	Status           MarketStatus
	Outcome          Outcome
	TotalYesStake    uint64
	TotalNoStake     uint64
	EvidenceCount    int
	CreatedAt        time.Time
	ResolvedAt       *time.Time
	TranscriptDigest []byte // 32 bytes once settled, nil before
}

// Resolvable reports whether a resolution run may start for this market.
// Markets already in a non-terminal resolution phase are rejected to avoid
// double-settlement races.
func (m Market) Resolvable() bool {
	return m.Status == MarketStatusOpen
}

// EvidenceItem is one submitted piece of supporting material for a market.
// Evidence is append-only: never deleted, only accumulated and later consumed
// as analyzer input.
type EvidenceItem struct {
	ID          string
	MarketID    string
	CID         string
	Description string
	Submitter   string
	Filename    string
	SubmittedAt time.Time
}

// MaxEvidencePerMarket mirrors the ledger program's evidence cap.
const MaxEvidencePerMarket = 10

// MaxQuestionLen mirrors the ledger program's question length bound.
const MaxQuestionLen = 280

// MaxCIDLen mirrors the ledger program's CID length bound.
const MaxCIDLen = 64

// StakeRecord is a user's commitment to a Yes/No outcome on a market.
// Stake records are created by staking on the ledger and are read-only here;
// the reward distributor consumes a snapshot of them at distribution time.
type StakeRecord struct {
	User      string
	Market    string
	Amount    uint64
	Direction bool // true = Yes, false = No
	Timestamp time.Time
}

// Won reports whether this stake is on the winning side of the given outcome.
func (s StakeRecord) Won(outcome Outcome) bool {
	return s.Direction == (outcome == OutcomeYes)
}
