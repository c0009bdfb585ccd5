package domain

import (
	"context"
	"time"
)

// MarketStore persists the mirror copy of markets. Writers must only call
// mutating methods after the corresponding ledger operation is confirmed.
type MarketStore interface {
	// Insert stores a new market. Returns ErrAlreadyExists when a row for
	// the same market_id is present; creation treats that as a no-op.
	Insert(ctx context.Context, m Market) error
	GetByID(ctx context.Context, marketID uint64) (Market, error)
	Latest(ctx context.Context) (Market, error)
	ListActive(ctx context.Context) ([]Market, error)
	// ListExpiredUnsettled returns markets with settled=false and
	// end_time <= now; the settlement pass iterates these.
	ListExpiredUnsettled(ctx context.Context, now time.Time) ([]Market, error)
	// ListSettledBefore returns settled markets that ended before the cutoff,
	// oldest first, for archival.
	ListSettledBefore(ctx context.Context, before time.Time, limit int) ([]Market, error)
	// MarkSettled records the close price and flips settled. It never
	// un-settles and never overwrites an existing close price.
	MarkSettled(ctx context.Context, marketID uint64, closePrice uint64) error
	// UpdatePools overwrites the weighted pool totals with ledger-confirmed
	// values (bet reflection and reconciliation).
	UpdatePools(ctx context.Context, marketID uint64, greenPool, redPool uint64) error
}

// BetStore persists the mirror copy of bets.
type BetStore interface {
	// Insert stores a new bet. Returns ErrAlreadyExists for a duplicate
	// (wallet, market_id) pair.
	Insert(ctx context.Context, b Bet) error
	Get(ctx context.Context, wallet string, marketID uint64) (Bet, error)
	ListByWallet(ctx context.Context, wallet string) ([]Bet, error)
	ListByMarket(ctx context.Context, marketID uint64) ([]Bet, error)
	// MarkClaimed sets claimed=true and records the payout. Returns
	// ErrAlreadyClaimed when the bet was already claimed, so replays are
	// detected at the store layer even under concurrent claim recording.
	MarkClaimed(ctx context.Context, wallet string, marketID uint64, payout uint64) error
}

// PayoutStore persists the append-only payout record.
type PayoutStore interface {
	Record(ctx context.Context, p Payout) error
	ListByWallet(ctx context.Context, wallet string) ([]Payout, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Payout, error)
}

// PnLStore maintains the per-wallet aggregate and derives richer stats from
// settled bets.
type PnLStore interface {
	// Apply folds one settled bet's delta (payout - effective stake) into
	// the wallet's running aggregate.
	Apply(ctx context.Context, wallet string, delta int64) error
	Stats(ctx context.Context, wallet string) (PnLStats, error)
}

// LedgerGateway is the thin adapter to the authoritative ledger program.
// All mutating calls are slow (they wait for confirmation) and must be
// dispatched off timer/request goroutines.
type LedgerGateway interface {
	// CreateMarket submits market creation. Returns ErrAlreadyExists when
	// the market account is already on the ledger.
	CreateMarket(ctx context.Context, asset string, openPrice uint64, start, end time.Time, marketID uint64) (signature string, err error)
	// SettleMarket submits settlement. Returns ErrAlreadySettled when the
	// market's settled flag is already set, ErrMarketNotEnded before
	// end_time.
	SettleMarket(ctx context.Context, marketID uint64, closePrice uint64) (signature string, err error)
	// GetMarket reads and decodes the market account; ground truth for
	// reconciliation. Returns ErrNotFound when the account does not exist.
	GetMarket(ctx context.Context, marketID uint64) (Market, error)
	// GetBet reads and decodes a wallet's bet account for a market.
	GetBet(ctx context.Context, wallet string, marketID uint64) (Bet, error)
	// TreasuryBalance returns the treasury account balance in base units.
	TreasuryBalance(ctx context.Context) (uint64, error)
}

// CandleCache caches oracle candles for a short TTL so concurrent lifecycle
// passes and preview requests do not hammer the upstream feed. Entries are
// keyed by asset and window start.
type CandleCache interface {
	Set(ctx context.Context, asset string, start time.Time, c Candle, ttl time.Duration) error
	// Get returns ErrNotFound on a miss or expired entry.
	Get(ctx context.Context, asset string, start time.Time) (Candle, error)
}

// LockManager provides distributed mutual exclusion for scheduled jobs, so a
// manual trigger racing a timer (or a second replica) collapses to one
// writer. Returns ErrLockHeld when the lock is taken.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// RateLimiter bounds request rates per key across replicas. Allowed requests
// are counted against the window; rejected ones are not.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, err error)
}

// SignalBus publishes lifecycle events (market_created, market_settled,
// bet_recorded, claim_recorded) for the websocket feed and any other
// follower.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
