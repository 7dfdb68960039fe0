package settle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/ledger"
)

// Distributor pays out double-or-nothing rewards to the winning side of a
// settled market. Payouts run sequentially with a fixed delay between ledger
// calls; a failed payout is recorded and counted but never stops the run.
// Re-running distribution for the same market skips every (market, user) pair
// already recorded as succeeded, so retries after partial failure pay each
// winner at most once.
type Distributor struct {
	settler       ledger.Settler
	disbursements domain.DistributionStore
	audit         domain.AuditStore
	logs          domain.LogStore
	delay         time.Duration
	logger        *slog.Logger
}

// NewDistributor creates a Distributor. delay is the pause between successive
// disbursement calls.
func NewDistributor(settler ledger.Settler, disbursements domain.DistributionStore, audit domain.AuditStore, logs domain.LogStore, delay time.Duration, logger *slog.Logger) *Distributor {
	return &Distributor{
		settler:       settler,
		disbursements: disbursements,
		audit:         audit,
		logs:          logs,
		delay:         delay,
		logger:        logger.With(slog.String("component", "distributor")),
	}
}

// winner is one user's aggregate winning stake on a market.
type winner struct {
	user   string
	staked uint64
}

// Distribute snapshots the market's stakes, pays 2x to every winner not
// already paid, and persists the run summary. The returned result always
// satisfies Distributed + Failed == Total.
func (d *Distributor) Distribute(ctx context.Context, market domain.Market, outcome domain.Outcome) (domain.DistributionResult, error) {
	if outcome == domain.OutcomeUnset {
		return domain.DistributionResult{}, fmt.Errorf("settle: distribute for market %s: outcome unset", market.ID)
	}

	stakes, err := d.settler.QueryStakes(ctx, market.Address)
	if err != nil {
		return domain.DistributionResult{}, fmt.Errorf("settle: query stakes for market %s: %w", market.ID, err)
	}

	winners := collectWinners(stakes, outcome)

	paid, err := d.alreadyPaid(ctx, market.ID)
	if err != nil {
		return domain.DistributionResult{}, err
	}

	res := domain.DistributionResult{
		MarketID: market.ID,
		Outcome:  outcome,
		Total:    len(winners),
		RanAt:    time.Now().UTC(),
	}

	for i, w := range winners {
		if paid[w.user] {
			res.Distributed++
			continue
		}
		if i > 0 && d.delay > 0 {
			if err := sleepCtx(ctx, d.delay); err != nil {
				return res, fmt.Errorf("settle: distribute for market %s: %w", market.ID, err)
			}
		}

		amount := w.staked * domain.RewardMultiplier
		sig, callErr := d.settler.Disburse(ctx, market.Address, w.user, amount)

		disb := domain.Disbursement{
			MarketID:  market.ID,
			User:      w.user,
			Amount:    amount,
			Signature: sig,
			Succeeded: callErr == nil,
			CreatedAt: time.Now().UTC(),
		}
		if callErr != nil {
			disb.Error = callErr.Error()
			res.Failed++
			d.logger.Error("disbursement failed",
				slog.String("market_id", market.ID),
				slog.String("user", w.user),
				slog.Uint64("amount", amount),
				slog.String("error", callErr.Error()))
		} else {
			res.Distributed++
		}

		if err := d.disbursements.RecordDisbursement(ctx, disb); err != nil {
			return res, fmt.Errorf("settle: record disbursement for market %s user %s: %w", market.ID, w.user, err)
		}
		d.auditDisbursement(ctx, disb)
	}

	if err := d.disbursements.PutResult(ctx, res); err != nil {
		return res, fmt.Errorf("settle: persist distribution result for market %s: %w", market.ID, err)
	}

	d.narrate(ctx, market.ID, res)
	d.logger.Info("distribution complete",
		slog.String("market_id", market.ID),
		slog.Int("distributed", res.Distributed),
		slog.Int("failed", res.Failed),
		slog.Int("total", res.Total))
	return res, nil
}

// collectWinners aggregates winning stakes per user and orders them by user
// so re-runs pay in a stable order.
func collectWinners(stakes []domain.StakeRecord, outcome domain.Outcome) []winner {
	totals := make(map[string]uint64)
	for _, s := range stakes {
		if s.Won(outcome) {
			totals[s.User] += s.Amount
		}
	}

	winners := make([]winner, 0, len(totals))
	for user, staked := range totals {
		winners = append(winners, winner{user: user, staked: staked})
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i].user < winners[j].user })
	return winners
}

// alreadyPaid returns the set of users with a recorded successful disbursement
// for the market.
func (d *Distributor) alreadyPaid(ctx context.Context, marketID string) (map[string]bool, error) {
	prior, err := d.disbursements.ListDisbursements(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("settle: list disbursements for market %s: %w", marketID, err)
	}
	paid := make(map[string]bool, len(prior))
	for _, p := range prior {
		if p.Succeeded {
			paid[p.User] = true
		}
	}
	return paid, nil
}

func (d *Distributor) auditDisbursement(ctx context.Context, disb domain.Disbursement) {
	action := "reward_disbursed"
	if !disb.Succeeded {
		action = "reward_disbursement_failed"
	}
	amount := disb.Amount
	entry := domain.AuditEntry{
		Action:    action,
		Actor:     "distributor",
		Subject:   disb.MarketID + "/" + disb.User,
		Amount:    &amount,
		Signature: disb.Signature,
		CreatedAt: disb.CreatedAt,
	}
	if err := d.audit.Log(ctx, entry); err != nil {
		d.logger.Warn("audit log write failed", slog.String("error", err.Error()))
	}
}

func (d *Distributor) narrate(ctx context.Context, marketID string, res domain.DistributionResult) {
	sentiment := domain.SentimentPositive
	if res.Failed > 0 {
		sentiment = domain.SentimentNegative
	}
	entry := domain.LogEntry{
		MarketID:  marketID,
		Speaker:   domain.SpeakerExecutor,
		Message:   fmt.Sprintf("Rewards distributed: %d of %d winners paid, %d failed.", res.Distributed, res.Total, res.Failed),
		Sentiment: sentiment,
	}
	if err := d.logs.Append(ctx, entry); err != nil {
		d.logger.Warn("narration append failed", slog.String("error", err.Error()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
