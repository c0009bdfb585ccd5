// Package domain defines the core types, invariants and store interfaces for
// the candle markets backend. Concrete implementations live under
// internal/store, internal/cache and internal/ledger.
package domain

import "time"

// PriceScale is the fixed-point scale for prices on the ledger: one price
// unit equals 1e-6 of the quote currency. All authoritative arithmetic uses
// these integers; floats never cross into settlement math.
const PriceScale = 1_000_000

// DefaultVirtualLiquidity is the bootstrap amount credited to both pools at
// creation so payout formulas never divide by zero before the first bet.
const DefaultVirtualLiquidity = 100

// Side is the direction of a bet within a candle window.
type Side string

const (
	SideUp   Side = "UP"   // close > open, the "green" pool
	SideDown Side = "DOWN" // close < open, the "red" pool
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideUp || s == SideDown }

// MarketState is the time-derived lifecycle state of a market.
type MarketState string

const (
	StateOpen    MarketState = "open"
	StateLocked  MarketState = "locked"
	StateEnded   MarketState = "ended"
	StateSettled MarketState = "settled"
)

// Market is one candle window. The ledger program owns the authoritative
// copy; rows in the mirror store are replicas of confirmed ledger state.
//
// Invariants: LockTime < EndTime; GreenPool and RedPool never drop below
// VirtualLiquidity; ClosePrice is set exactly once, when Settled flips true.
type Market struct {
	MarketID         uint64 // candle start unix seconds; deterministic identity
	Asset            string
	StartTime        time.Time
	EndTime          time.Time
	LockTime         time.Time
	OpenPrice        uint64  // PriceScale fixed-point
	ClosePrice       *uint64 // nil until settled
	GreenPool        uint64  // weighted UP pool, includes virtual liquidity
	RedPool          uint64  // weighted DOWN pool, includes virtual liquidity
	VirtualLiquidity uint64
	Settled          bool
	CreatedAt        time.Time
}

// StateAt derives the lifecycle state of the market at the given instant.
// Settlement is explicit, so a market past EndTime stays StateEnded until a
// settle instruction lands.
func (m Market) StateAt(now time.Time) MarketState {
	switch {
	case m.Settled:
		return StateSettled
	case !now.Before(m.EndTime):
		return StateEnded
	case !now.Before(m.LockTime):
		return StateLocked
	default:
		return StateOpen
	}
}

// Window returns the market's window length.
func (m Market) Window() time.Duration {
	return m.EndTime.Sub(m.StartTime)
}

// WindowStart aligns now down to the start of the current candle window.
// Window lengths divide 24h, so truncation in UTC lands on exchange candle
// boundaries.
func WindowStart(now time.Time, window time.Duration) time.Time {
	return now.UTC().Truncate(window)
}

// MarketIDForWindow derives the deterministic market identity for the candle
// starting at start. Repeated creation attempts for the same window collide
// on this ID, which is what makes creation idempotent.
func MarketIDForWindow(start time.Time) uint64 {
	return uint64(start.UTC().Unix())
}
