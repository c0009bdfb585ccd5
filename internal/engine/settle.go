package engine

import (
	"math/bits"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

// Outcome is the settlement result of a candle.
type Outcome int

const (
	OutcomeTie  Outcome = iota // flat candle: no winning side
	OutcomeUp                  // close > open
	OutcomeDown                // close < open
)

// SettleOutcome compares close against open.
func SettleOutcome(openPrice, closePrice uint64) Outcome {
	switch {
	case closePrice > openPrice:
		return OutcomeUp
	case closePrice < openPrice:
		return OutcomeDown
	default:
		return OutcomeTie
	}
}

// WinningSide returns the side paid by the outcome, and false for a tie.
func (o Outcome) WinningSide() (domain.Side, bool) {
	switch o {
	case OutcomeUp:
		return domain.SideUp, true
	case OutcomeDown:
		return domain.SideDown, true
	default:
		return "", false
	}
}

// CheckSettle validates the settlement preconditions: callable exactly once,
// only after end_time.
func CheckSettle(m domain.Market, now time.Time) error {
	if now.Before(m.EndTime) {
		return domain.ErrMarketNotEnded
	}
	if m.Settled {
		return domain.ErrAlreadySettled
	}
	return nil
}

// Settle applies settlement to the market value: sets the close price and
// flips the settled flag. The caller has already validated via CheckSettle.
func Settle(m *domain.Market, closePrice uint64) {
	cp := closePrice
	m.ClosePrice = &cp
	m.Settled = true
}

// ComputePayout returns the pari-mutuel payout for one bet on a settled
// market:
//
//	payout = floor(effective_stake * total_losing / total_winning)
//
// where both totals have the virtual liquidity subtracted. Zero for losing
// bets, flat candles, markets where one side has no real stake, unsettled
// markets, and already-claimed bets. The multiply runs at 128 bits so the
// product cannot overflow before the division; the result itself always
// fits, since effective_stake <= total_winning.
func ComputePayout(m domain.Market, b domain.Bet) uint64 {
	if !m.Settled || m.ClosePrice == nil || b.Claimed {
		return 0
	}

	winner, ok := SettleOutcome(m.OpenPrice, *m.ClosePrice).WinningSide()
	if !ok || b.Side != winner {
		return 0
	}

	winningPool, losingPool := m.GreenPool, m.RedPool
	if winner == domain.SideDown {
		winningPool, losingPool = m.RedPool, m.GreenPool
	}

	totalWinning := saturatingSub(winningPool, m.VirtualLiquidity)
	totalLosing := saturatingSub(losingPool, m.VirtualLiquidity)
	if totalWinning == 0 || totalLosing == 0 {
		return 0
	}

	hi, lo := bits.Mul64(b.EffectiveStake, totalLosing)
	if hi >= totalWinning {
		// Only reachable if effective_stake exceeds the winning pool, i.e.
		// corrupt state; cap at the whole losing pool rather than panic.
		return totalLosing
	}
	quo, _ := bits.Div64(hi, lo, totalWinning)
	return quo
}

// ClassifyClaim labels how a claim on a settled market resolves, for the
// API's persisted record. The ledger itself conflates all zero-payout
// claims.
func ClassifyClaim(m domain.Market, b domain.Bet) domain.ClaimResult {
	if m.ClosePrice == nil {
		return domain.ClaimVoid
	}
	winner, ok := SettleOutcome(m.OpenPrice, *m.ClosePrice).WinningSide()
	if !ok {
		return domain.ClaimTie
	}
	if b.Side != winner {
		return domain.ClaimLost
	}
	winningPool, losingPool := m.GreenPool, m.RedPool
	if winner == domain.SideDown {
		winningPool, losingPool = m.RedPool, m.GreenPool
	}
	if saturatingSub(winningPool, m.VirtualLiquidity) == 0 ||
		saturatingSub(losingPool, m.VirtualLiquidity) == 0 {
		return domain.ClaimVoid
	}
	return domain.ClaimWon
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
