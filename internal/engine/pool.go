package engine

import (
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

// MaxBet is the largest raw stake the deployed program accepts, in base
// units. Caps one whale's ability to skew a pool and bounds account
// arithmetic.
const MaxBet uint64 = 50_000_000

// ValidateBet applies the placement guards the ledger program enforces, in
// the same order, so previews fail exactly where the program would. maxBet
// is configurable so previews can track a program deployed with a different
// cap; zero falls back to MaxBet.
func ValidateBet(m domain.Market, side domain.Side, amount, maxBet uint64, now time.Time) error {
	if maxBet == 0 {
		maxBet = MaxBet
	}
	if !now.Before(m.LockTime) {
		return domain.ErrMarketLocked
	}
	if !side.Valid() {
		return domain.ErrInvalidBetSize
	}
	if amount == 0 || amount > maxBet {
		return domain.ErrInvalidBetSize
	}
	if now.Before(m.StartTime) {
		return domain.ErrMarketNotOpen
	}
	return nil
}

// BuildBet constructs the bet record for a placement at now, snapshotting
// the weight tier forever.
func BuildBet(m domain.Market, wallet string, side domain.Side, amount uint64, now time.Time) domain.Bet {
	weight := WeightTier(now.Sub(m.StartTime), m.Window())
	return domain.Bet{
		Wallet:         wallet,
		MarketID:       m.MarketID,
		Side:           side,
		Amount:         amount,
		Weight:         weight,
		EffectiveStake: EffectiveStake(amount, weight),
		CreatedAt:      now,
	}
}

// ApplyBet adds an effective stake to the chosen side's weighted pool.
// Pools are monotonically non-decreasing after creation; subtracting the
// virtual liquidity from either total at any time yields the true
// user-contributed weighted stake, which is always >= 0.
func ApplyBet(m *domain.Market, side domain.Side, effectiveStake uint64) {
	if side == domain.SideUp {
		m.GreenPool += effectiveStake
	} else {
		m.RedPool += effectiveStake
	}
}
