package agent

import (
	"fmt"
	"strings"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// buildResearchPrompt asks the model for a strict JSON fact array about the
// market question, given any fetched source content and submitted evidence.
func buildResearchPrompt(question, sourceContent string, evidence []domain.EvidenceItem) string {
	var b strings.Builder

	b.WriteString("You are a fact-checking researcher for a prediction market.\n")
	b.WriteString("Claim under investigation:\n")
	b.WriteString(question)
	b.WriteString("\n\n")

	if sourceContent != "" {
		b.WriteString("Fetched source content:\n")
		b.WriteString(truncate(sourceContent, 4000))
		b.WriteString("\n\n")
	}

	if len(evidence) > 0 {
		b.WriteString("Community-submitted evidence:\n")
		for i, e := range evidence {
			fmt.Fprintf(&b, "%d. %s (cid: %s, submitted by %s)\n", i+1, e.Description, e.CID, e.Submitter)
		}
		b.WriteString("\n")
	}

	b.WriteString("Extract the verifiable facts relevant to the claim. Respond with ONLY a JSON object:\n")
	b.WriteString(`{"facts": [{"text": "...", "confidence": 0-100}]}` + "\n")
	b.WriteString("Confidence reflects how well-supported each fact is. No prose outside the JSON.\n")

	return b.String()
}

// buildVerdictPrompt asks the model to judge the claim from the fact set.
func buildVerdictPrompt(question string, facts []domain.Fact) string {
	var b strings.Builder

	b.WriteString("You are the judge for a prediction market. Decide whether the claim is true.\n")
	b.WriteString("Claim:\n")
	b.WriteString(question)
	b.WriteString("\n\nFacts gathered by research (with confidence 0-100):\n")
	for i, f := range facts {
		fmt.Fprintf(&b, "%d. [%d] %s\n", i+1, f.Confidence, f.Text)
	}
	b.WriteString("\nRespond with ONLY a JSON object:\n")
	b.WriteString(`{"decision": "YES"|"NO"|"UNCERTAIN", "reasoning": "...", "confidence": 0-100}` + "\n")
	b.WriteString("Use UNCERTAIN whenever the facts are ambiguous or insufficient. No prose outside the JSON.\n")

	return b.String()
}

// buildReconsiderPrompt asks the model to weigh new evidence against a settled
// outcome. The instructions bias the model toward upholding: overturning a
// settled market requires credible, unambiguous, directly contradictory
// evidence.
func buildReconsiderPrompt(req domain.ReconsiderationRequest) string {
	var b strings.Builder

	b.WriteString("A prediction market has already been settled. New evidence was submitted for review.\n\n")
	fmt.Fprintf(&b, "Original outcome: %s\n", strings.ToUpper(req.OriginalOutcome.String()))
	fmt.Fprintf(&b, "Original reasoning: %s\n\n", req.OriginalReasoning)
	fmt.Fprintf(&b, "New evidence (cid %s, submitted by %s):\n%s\n\n", req.EvidenceCID, req.Submitter, req.EvidenceDesc)

	b.WriteString("Assess the new evidence. Default to UPHOLD; recommend OVERTURN only if the evidence is\n")
	b.WriteString("from a credible source AND unambiguously contradicts the original outcome. Use ANNOTATE\n")
	b.WriteString("for partial or contextual corrections that do not change the outcome.\n\n")
	b.WriteString("Respond with ONLY a JSON object:\n")
	b.WriteString(`{"recommendation": "UPHOLD"|"ANNOTATE"|"OVERTURN", "confidence_delta": -100..100, ` +
		`"new_outcome": "yes"|"no"|"", "annotation": "...", "reasoning": "..."}` + "\n")

	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
