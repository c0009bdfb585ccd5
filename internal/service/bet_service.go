package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

// BetService reflects confirmed ledger bets into the mirror. Users submit
// place_bet transactions themselves; the API only records what the ledger
// already holds, so a bet that never confirmed can never enter the mirror.
type BetService struct {
	markets domain.MarketStore
	bets    domain.BetStore
	gateway domain.LedgerGateway
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewBetService creates a BetService. bus may be nil.
func NewBetService(
	markets domain.MarketStore,
	bets domain.BetStore,
	gateway domain.LedgerGateway,
	bus domain.SignalBus,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		markets: markets,
		bets:    bets,
		gateway: gateway,
		bus:     bus,
		logger:  logger.With("component", "bet_service"),
	}
}

// RecordBet reads the wallet's bet account for the market from the ledger and
// mirrors it, along with the market's confirmed pool totals. Recording the
// same bet twice is a no-op returning the stored row.
func (s *BetService) RecordBet(ctx context.Context, wallet string, marketID uint64) (domain.Bet, error) {
	ledgerBet, err := s.gateway.GetBet(ctx, wallet, marketID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Bet{}, fmt.Errorf("bet %s/%d not on ledger: %w", wallet, marketID, domain.ErrNotConfirmed)
	}
	if err != nil {
		return domain.Bet{}, fmt.Errorf("read ledger bet %s/%d: %w", wallet, marketID, err)
	}

	if err := s.bets.Insert(ctx, ledgerBet); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return s.bets.Get(ctx, wallet, marketID)
		}
		return domain.Bet{}, fmt.Errorf("mirror bet %s/%d: %w", wallet, marketID, err)
	}

	// Pool totals moved with the bet; fold the confirmed values in. Mirror
	// drift here is repaired by the reconciler, so a failure only warns.
	if ledgerMarket, err := s.gateway.GetMarket(ctx, marketID); err == nil {
		if err := s.markets.UpdatePools(ctx, marketID, ledgerMarket.GreenPool, ledgerMarket.RedPool); err != nil {
			s.logger.Warn("pool mirror update failed", "market_id", marketID, "error", err)
		}
	} else {
		s.logger.Warn("ledger market read failed after bet", "market_id", marketID, "error", err)
	}

	s.logger.Info("bet recorded",
		"wallet", wallet,
		"market_id", marketID,
		"side", ledgerBet.Side,
		"amount", ledgerBet.Amount,
		"effective_stake", ledgerBet.EffectiveStake)

	s.publish(ctx, domain.Event{
		Type:     domain.EventBetRecorded,
		MarketID: marketID,
		Wallet:   wallet,
		Side:     ledgerBet.Side,
		Amount:   ledgerBet.Amount,
		At:       time.Now().UTC(),
	})
	return ledgerBet, nil
}

func (s *BetService) publish(ctx context.Context, e domain.Event) {
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
