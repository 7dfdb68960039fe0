// Package transcript assembles resolution transcripts and anchors them to the
// content-addressable store.
package transcript

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// BuildBundle assembles the immutable evidentiary record for a finished
// resolution run. The log trail and evidence list are copied so later appends
// cannot mutate the bundle.
func BuildBundle(m domain.Market, facts []domain.Fact, verdict domain.Verdict, trail []domain.LogEntry, evidence []domain.EvidenceItem) domain.TranscriptBundle {
	return domain.TranscriptBundle{
		SchemaVersion: domain.TranscriptSchemaVersion,
		MarketID:      m.ID,
		MarketAddress: m.Address,
		Question:      m.Question,
		Facts:         append([]domain.Fact(nil), facts...),
		Decision:      verdict.Decision,
		Reasoning:     verdict.Reasoning,
		LogTrail:      append([]domain.LogEntry(nil), trail...),
		Evidence:      append([]domain.EvidenceItem(nil), evidence...),
		CreatedAt:     time.Now().UTC(),
	}
}

// Encode renders the bundle as canonical JSON. encoding/json emits struct
// fields in declaration order with no insignificant whitespace, so the output
// is byte-stable for a given bundle and the digest below is deterministic.
func Encode(b domain.TranscriptBundle) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("transcript: encode bundle for market %s: %w", b.MarketID, err)
	}
	return data, nil
}

// Digest returns the 32-byte SHA-256 of the canonical encoding. This is the
// value committed to the ledger, and the fallback anchor when pinning is
// unavailable.
func Digest(encoded []byte) []byte {
	sum := sha256.Sum256(encoded)
	return sum[:]
}
