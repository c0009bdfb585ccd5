package domain

import "errors"

// Sentinel errors shared across the backend. Handlers map these to specific
// HTTP statuses so clients can tell "try again later" from "this will never
// succeed".
var (
	// Temporal: the operation was attempted outside its valid time window.
	ErrMarketNotOpen  = errors.New("market not open yet")
	ErrMarketLocked   = errors.New("market locked for betting")
	ErrMarketNotEnded = errors.New("market has not ended")

	// Idempotency: replays of operations that already happened.
	ErrAlreadySettled = errors.New("market already settled")
	ErrAlreadyClaimed = errors.New("bet already claimed")
	ErrAlreadyExists  = errors.New("already exists")

	// Integrity: rejected before any state is mutated.
	ErrInvalidBetSize       = errors.New("invalid bet size")
	ErrNotSettled           = errors.New("market not settled")
	ErrInsufficientTreasury = errors.New("insufficient treasury funds")

	// Upstream / infrastructure.
	ErrNotFound     = errors.New("not found")
	ErrNotConfirmed = errors.New("ledger state not confirmed")
	ErrStaleCandle  = errors.New("candle is stale")
	ErrLockHeld     = errors.New("lock already held")
)
