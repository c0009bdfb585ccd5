package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
	"github.com/candlefi/candle-markets/internal/engine"
)

// ClaimService records claims after their ledger transaction confirmed. The
// claim instruction is submitted by the user's wallet; this service verifies
// the bet account's claimed flag on the ledger before touching the mirror.
type ClaimService struct {
	markets domain.MarketStore
	bets    domain.BetStore
	payouts domain.PayoutStore
	pnl     domain.PnLStore
	gateway domain.LedgerGateway
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewClaimService creates a ClaimService. bus may be nil.
func NewClaimService(
	markets domain.MarketStore,
	bets domain.BetStore,
	payouts domain.PayoutStore,
	pnl domain.PnLStore,
	gateway domain.LedgerGateway,
	bus domain.SignalBus,
	logger *slog.Logger,
) *ClaimService {
	return &ClaimService{
		markets: markets,
		bets:    bets,
		payouts: payouts,
		pnl:     pnl,
		gateway: gateway,
		bus:     bus,
		logger:  logger.With("component", "claim_service"),
	}
}

// ClaimReceipt is the persisted outcome of one claim.
type ClaimReceipt struct {
	Wallet    string
	MarketID  uint64
	Payout    uint64
	Result    domain.ClaimResult
	Signature string
}

// RecordClaim verifies and records one claim.
//
// Order matters: the ledger is consulted first, the bet row flips second,
// and the payout/pnl records append last. A crash between steps leaves the
// mirror behind the ledger, never ahead, and the bet-row flip is the
// idempotency gate for retries.
func (s *ClaimService) RecordClaim(ctx context.Context, wallet string, marketID uint64, signature string) (ClaimReceipt, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return ClaimReceipt{}, fmt.Errorf("market %d: %w", marketID, err)
	}
	if !m.Settled {
		return ClaimReceipt{}, fmt.Errorf("market %d: %w", marketID, domain.ErrNotSettled)
	}

	bet, err := s.bets.Get(ctx, wallet, marketID)
	if err != nil {
		return ClaimReceipt{}, fmt.Errorf("bet %s/%d: %w", wallet, marketID, err)
	}
	if bet.Claimed {
		return ClaimReceipt{}, domain.ErrAlreadyClaimed
	}

	ledgerBet, err := s.gateway.GetBet(ctx, wallet, marketID)
	if errors.Is(err, domain.ErrNotFound) {
		return ClaimReceipt{}, fmt.Errorf("bet %s/%d not on ledger: %w", wallet, marketID, domain.ErrNotConfirmed)
	}
	if err != nil {
		return ClaimReceipt{}, fmt.Errorf("read ledger bet %s/%d: %w", wallet, marketID, err)
	}
	if !ledgerBet.Claimed {
		return ClaimReceipt{}, fmt.Errorf("claim for %s/%d not confirmed: %w", wallet, marketID, domain.ErrNotConfirmed)
	}

	// Payout math runs over ledger pool totals. The mirror can lag: a bet
	// confirmed on-chain in the final pre-lock window but never posted here
	// leaves mirror pools short, and the reconciler stops walking a market
	// once it settles. The claim already paid from the real pools, so the
	// recorded amount must come from them too. The mirror copy is a
	// fallback for a failed ledger read only; drift found here is repaired
	// in passing.
	truth, err := s.gateway.GetMarket(ctx, marketID)
	if err != nil {
		s.logger.Warn("ledger market read failed, recording from mirror pools",
			"market_id", marketID, "error", err)
		truth = m
	} else if truth.GreenPool != m.GreenPool || truth.RedPool != m.RedPool {
		if err := s.markets.UpdatePools(ctx, marketID, truth.GreenPool, truth.RedPool); err != nil {
			s.logger.Error("pool repair failed", "market_id", marketID, "error", err)
		}
	}

	payout := engine.ComputePayout(truth, bet)
	result := engine.ClassifyClaim(truth, bet)

	if err := s.bets.MarkClaimed(ctx, wallet, marketID, payout); err != nil {
		return ClaimReceipt{}, fmt.Errorf("mirror claim %s/%d: %w", wallet, marketID, err)
	}

	if err := s.pnl.Apply(ctx, wallet, int64(payout)-int64(bet.EffectiveStake)); err != nil {
		s.logger.Error("pnl apply failed", "wallet", wallet, "market_id", marketID, "error", err)
	}

	if payout > 0 {
		p := domain.Payout{
			Wallet:    wallet,
			MarketID:  marketID,
			Amount:    payout,
			Reference: signature,
		}
		if err := s.payouts.Record(ctx, p); err != nil {
			s.logger.Error("payout record failed", "wallet", wallet, "market_id", marketID, "error", err)
		}
	}

	s.logger.Info("claim recorded",
		"wallet", wallet,
		"market_id", marketID,
		"payout", payout,
		"result", result)

	s.publish(ctx, domain.Event{
		Type:      domain.EventClaimRecorded,
		MarketID:  marketID,
		Wallet:    wallet,
		Amount:    payout,
		Signature: signature,
		At:        time.Now().UTC(),
	})

	return ClaimReceipt{
		Wallet:    wallet,
		MarketID:  marketID,
		Payout:    payout,
		Result:    result,
		Signature: signature,
	}, nil
}

func (s *ClaimService) publish(ctx context.Context, e domain.Event) {
	if s.bus == nil {
		return
	}
	payload := e.Marshal()
	if err := s.bus.Publish(ctx, e.Type, payload); err != nil {
		s.logger.Warn("event publish failed", "type", e.Type, "error", err)
	}
	if err := s.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
		s.logger.Warn("event stream append failed", "type", e.Type, "error", err)
	}
}
