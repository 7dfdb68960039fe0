package domain

import "time"

// Recommendation is the advisory result of a reconsideration run. It is never
// applied to the ledger by this core; an OVERTURN only surfaces the suggestion
// for operator action.
type Recommendation string

const (
	RecommendUphold   Recommendation = "UPHOLD"
	RecommendAnnotate Recommendation = "ANNOTATE"
	RecommendOverturn Recommendation = "OVERTURN"
)

// ReconsiderationRequest asks for a settled market to be re-evaluated against
// newly submitted evidence.
type ReconsiderationRequest struct {
	MarketID          string
	OriginalOutcome   Outcome
	OriginalReasoning string
	EvidenceCID       string
	EvidenceDesc      string
	Submitter         string
}

// ReconsiderationResult is the produced recommendation. ConfidenceDelta is the
// judge's estimate of how much the new evidence shifts confidence in the
// original outcome (negative means it undermines it).
type ReconsiderationResult struct {
	ID              string
	MarketID        string
	Recommendation  Recommendation
	ConfidenceDelta int
	NewOutcome      Outcome // only meaningful for OVERTURN
	Annotation      string
	Reasoning       string
	CreatedAt       time.Time
}
