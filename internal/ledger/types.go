// Package ledger defines the narrow settlement interface this core consumes
// and its JSON-RPC client implementation. The ledger program itself (account
// schemas, on-chain enforcement) is an external collaborator.
package ledger

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/mr-tron/base58"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// EarnMethod mirrors the ledger program's reputation-earning categories.
type EarnMethod string

const (
	EarnInitialGrant          EarnMethod = "initial_grant"
	EarnEvidenceSubmission    EarnMethod = "evidence_submission"
	EarnCorrectPrediction     EarnMethod = "correct_prediction"
	EarnReferral              EarnMethod = "referral"
	EarnIdentityVerification  EarnMethod = "identity_verification"
	EarnCommunityContribution EarnMethod = "community_contribution"
)

// Settler is the settlement interface the executor consumes. All errors that
// represent ledger-state conflicts are mapped onto the domain sentinels
// (ErrAlreadyResolved, ErrUnauthorized, ErrMarketNotOpen) and are terminal:
// the settlement layer never retries them.
type Settler interface {
	// Resolve commits (outcome, transcript digest) for a market and returns
	// the transaction signature. digest must be 32 bytes.
	Resolve(ctx context.Context, marketAddress string, outcome uint8, digest []byte) (string, error)

	// Disburse credits amount to user for a settled market and returns the
	// transaction signature.
	Disburse(ctx context.Context, marketAddress, user string, amount uint64) (string, error)

	// QueryStakes returns all stake records for a market as of call time.
	QueryStakes(ctx context.Context, marketAddress string) ([]domain.StakeRecord, error)

	// Dispute transitions a resolved market to disputed.
	Dispute(ctx context.Context, marketAddress string) (string, error)

	// EarnCred mints reputation credit to a user outside of market payouts
	// (evidence submission rewards and the like).
	EarnCred(ctx context.Context, user string, amount uint64, method EarnMethod) (string, error)

	// GetMarket returns the ledger's authoritative view of a market account.
	GetMarket(ctx context.Context, marketAddress string) (MarketState, error)
}

// MarketState is the ledger's committed view of a market account. Once
// Resolved is true, Outcome and TranscriptHash are final.
type MarketState struct {
	Resolved       bool
	Outcome        uint8
	TranscriptHash []byte
}

// marketAccount is the wire shape of a market account returned by getMarket.
type marketAccount struct {
	Resolved       bool   `json:"resolved"`
	Outcome        uint8  `json:"outcome"`
	TranscriptHash string `json:"transcript_hash"` // base58, empty until resolved
}

// stakeAccount is the wire shape of a stake record returned by queryStakes.
type stakeAccount struct {
	User      string `json:"user"`
	Market    string `json:"market"`
	Amount    uint64 `json:"amount"`
	Direction bool   `json:"direction"`
	Timestamp int64  `json:"timestamp"`
}

func (s stakeAccount) toDomain() domain.StakeRecord {
	return domain.StakeRecord{
		User:      s.User,
		Market:    s.Market,
		Amount:    s.Amount,
		Direction: s.Direction,
		Timestamp: time.Unix(s.Timestamp, 0).UTC(),
	}
}

// marketSeed is the program's PDA seed prefix for market accounts.
const marketSeed = "market"

// DeriveMarketAddress deterministically derives the base58 ledger address for
// a market id, the program-derived-address analogue of the on-chain seeds
// ("market", market_id).
func DeriveMarketAddress(programID, marketID string) string {
	h := sha256.New()
	h.Write([]byte(marketSeed))
	h.Write([]byte(marketID))
	h.Write([]byte(programID))
	return base58.Encode(h.Sum(nil))
}
