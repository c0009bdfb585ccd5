// Package engine implements the pure settlement arithmetic: time-decay
// weight tiers, pool accounting guards, and the pari-mutuel payout formula.
// Everything here is integer fixed-point and side-effect free; the same
// functions back the off-chain payout preview and the reconciliation checks
// against the ledger program, so the two can never drift.
package engine

import "time"

// Weight tier multipliers, in percent. Later bets carry less weight so
// last-moment low-information bets cannot free-ride on a nearly decided
// candle.
const (
	WeightQ1   uint64 = 100 // first quarter of the window
	WeightQ2   uint64 = 70
	WeightQ3   uint64 = 50
	WeightLate uint64 = 20 // final quarter and beyond
)

// WeightTier maps elapsed time within a window to the stake multiplier
// percent. Total over all inputs: negative elapsed (which bet validation
// rejects upstream) falls through to the full-weight tier, and any elapsed
// at or past the last quarter boundary gets the late tier.
func WeightTier(elapsed, window time.Duration) uint64 {
	q := window / 4
	switch {
	case elapsed < q:
		return WeightQ1
	case elapsed < 2*q:
		return WeightQ2
	case elapsed < 3*q:
		return WeightQ3
	default:
		return WeightLate
	}
}

// EffectiveStake scales a raw stake by a tier multiplier with integer
// truncation. Never rounds up.
func EffectiveStake(amount, weightPercent uint64) uint64 {
	return amount * weightPercent / 100
}
