package currency

import (
	"math"

	"github.com/shopspring/decimal"

	"layeredge/server/balance"
)

// Reward is the outcome of a transaction-rush score report.
type Reward struct {
	Earned int64
	Bonus  bool
	Reason string
}

var (
	perVerification = decimal.NewFromInt(balance.RewardPerVerification)
	bonusMultiplier = decimal.NewFromFloat(balance.CompletionBonus)
	maxEarned       = decimal.NewFromInt(math.MaxInt64)
)

// ComputeReward applies the rush payout rule: ten resources per verification,
// times 1.5 when the target was met, floored after the multiplier. A zero
// target never earns the bonus. A score whose payout does not fit in an
// int64 is rejected.
func ComputeReward(score, target int64) (Reward, error) {
	if score < 0 || target < 0 {
		return Reward{}, ErrInvalidAmount
	}

	earned := decimal.NewFromInt(score).Mul(perVerification)
	bonus := target > 0 && score >= target
	reason := balance.ReasonRushReward
	if bonus {
		earned = earned.Mul(bonusMultiplier)
		reason = balance.ReasonRushRewardBonus
	}

	earned = earned.Floor()
	if earned.GreaterThan(maxEarned) {
		return Reward{}, ErrInvalidAmount
	}

	return Reward{
		Earned: earned.IntPart(),
		Bonus:  bonus,
		Reason: reason,
	}, nil
}
