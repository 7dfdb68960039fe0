package domain

import "time"

// RewardMultiplier is the fixed double-or-nothing payout: each winner is
// credited 2x their stake, with no house edge and no partial payout.
const RewardMultiplier = 2

// Disbursement records one per-winner settlement call, successful or not.
// The (MarketID, User) pair is the idempotency key: a re-run of distribution
// skips pairs already recorded as succeeded.
type Disbursement struct {
	MarketID  string
	User      string
	Amount    uint64
	Signature string
	Succeeded bool
	Error     string
	CreatedAt time.Time
}

// DistributionResult summarizes a reward distribution run for observability.
// Distributed + Failed == Total always holds.
type DistributionResult struct {
	MarketID    string
	Outcome     Outcome
	Distributed int
	Failed      int
	Total       int
	RanAt       time.Time
}
