package domain

import "time"

// TranscriptSchemaVersion identifies the bundle layout. Bump when fields
// change so pinned transcripts remain interpretable.
const TranscriptSchemaVersion = 1

// TranscriptBundle is the immutable evidentiary record justifying a
// resolution decision. It is pinned to the content-addressable store; only
// its CID looks mutable, and only because pinning may be retried.
type TranscriptBundle struct {
	SchemaVersion int            `json:"schema_version"`
	MarketID      string         `json:"market_id"`
	MarketAddress string         `json:"market_address"`
	Question      string         `json:"question"`
	Facts         []Fact         `json:"facts"`
	Decision      Decision       `json:"decision"`
	Reasoning     string         `json:"reasoning"`
	LogTrail      []LogEntry     `json:"log_trail"`
	Evidence      []EvidenceItem `json:"evidence"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TranscriptRecord is the persisted result of anchoring a bundle.
type TranscriptRecord struct {
	MarketID   string
	CID        string // empty when the pin fell back to a local digest
	Digest     []byte // 32 bytes, ledger field
	Pinned     bool
	Bundle     []byte // canonical JSON as pinned
	AnchoredAt time.Time
}
