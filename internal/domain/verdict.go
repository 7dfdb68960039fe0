package domain

// Fact is a single confidence-scored finding produced by the evidence
// analyzer. Facts are ephemeral: they live only inside a resolution run and
// the transcript bundle that records it.
type Fact struct {
	Text       string `json:"text"`
	Confidence int    `json:"confidence"` // 0-100
}

// DefaultFactConfidence is assigned when the analyzer's output carries no
// usable score for a fact.
const DefaultFactConfidence = 70

// Decision is the judge's call on a market question.
type Decision string

const (
	DecisionYes       Decision = "YES"
	DecisionNo        Decision = "NO"
	DecisionUncertain Decision = "UNCERTAIN"
)

// Terminal reports whether the decision ends the research loop.
func (d Decision) Terminal() bool {
	return d == DecisionYes || d == DecisionNo
}

// Outcome maps a terminal decision to a market outcome. UNCERTAIN maps to
// OutcomeUnset.
func (d Decision) Outcome() Outcome {
	switch d {
	case DecisionYes:
		return OutcomeYes
	case DecisionNo:
		return OutcomeNo
	default:
		return OutcomeUnset
	}
}

// Verdict pairs a decision with its reasoning and the judge's confidence.
type Verdict struct {
	Decision   Decision
	Reasoning  string
	Confidence int // 0-100
	Iteration  int // which judge pass produced it (1-based)
}

// MaxResolutionIterations bounds the Research→Judge loop. After this many
// UNCERTAIN passes the workflow settles as "remains unresolved".
const MaxResolutionIterations = 3
