package domain

import "time"

// Bet is a single wallet's position in one market. The ledger enforces at
// most one bet per (wallet, market) pair: the bet account's address is
// derived from both, so a second placement fails account creation.
type Bet struct {
	ID             int64
	Wallet         string
	MarketID       uint64
	Side           Side
	Amount         uint64  // raw stake
	Weight         uint64  // tier multiplier percent, fixed at placement
	EffectiveStake uint64  // floor(Amount * Weight / 100)
	Payout         *uint64 // nil until claimed
	Claimed        bool    // monotonic false -> true
	CreatedAt      time.Time
}

// ClaimResult describes how a claim resolved. The ledger conflates every
// zero-payout claim; the API keeps them distinguishable.
type ClaimResult string

const (
	ClaimWon  ClaimResult = "won"
	ClaimLost ClaimResult = "lost"
	ClaimTie  ClaimResult = "tie"  // flat candle, nothing to redistribute
	ClaimVoid ClaimResult = "void" // one side had no real stake
)

// Payout is an append-only record of a treasury debit for a claimed bet.
// Reference is the signature of the authorizing ledger transaction.
type Payout struct {
	Wallet     string
	MarketID   uint64
	Amount     uint64
	Reference  string
	RecordedAt time.Time
}

// PnLStats aggregates a wallet's settled performance.
type PnLStats struct {
	Wallet    string
	TotalPnL  int64 // sum(payout - effective_stake) over settled bets
	TotalBets int64
	WinRate   float64 // percent of settled bets with payout > effective stake
	Streak    int64   // consecutive wins, most recent first
}

// Position is a bet joined with its market's settlement status, as served by
// the positions query surface.
type Position struct {
	MarketID       uint64
	Side           Side
	Amount         uint64
	Weight         uint64
	EffectiveStake uint64
	Payout         *uint64
	Claimed        bool
	Settled        bool
	PlacedAt       time.Time
}
