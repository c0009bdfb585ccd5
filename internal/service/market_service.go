// Package service implements the application operations behind the HTTP API:
// market queries, ledger-verified bet and claim recording, and per-wallet
// position and PnL reads.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
	"github.com/candlefi/candle-markets/internal/engine"
)

// MarketService serves market reads from the mirror.
type MarketService struct {
	markets domain.MarketStore
	maxBet  uint64
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. maxBet caps quoted placements;
// zero uses the engine default.
func NewMarketService(markets domain.MarketStore, maxBet uint64, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets: markets,
		maxBet:  maxBet,
		logger:  logger.With("component", "market_service"),
	}
}

// MarketView is a market together with its derived lifecycle state.
type MarketView struct {
	domain.Market
	State domain.MarketState
}

// Latest returns the most recently started market.
func (s *MarketService) Latest(ctx context.Context) (MarketView, error) {
	m, err := s.markets.Latest(ctx)
	if err != nil {
		return MarketView{}, fmt.Errorf("latest market: %w", err)
	}
	return s.view(m), nil
}

// Get returns one market by id.
func (s *MarketService) Get(ctx context.Context, marketID uint64) (MarketView, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return MarketView{}, fmt.Errorf("market %d: %w", marketID, err)
	}
	return s.view(m), nil
}

// ListActive returns every unsettled market, newest first.
func (s *MarketService) ListActive(ctx context.Context) ([]MarketView, error) {
	markets, err := s.markets.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("active markets: %w", err)
	}
	views := make([]MarketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, s.view(m))
	}
	return views, nil
}

// BetQuote previews the weight tier and effective stake a placement would
// snapshot right now, applying the same guards the ledger program does.
func (s *MarketService) BetQuote(ctx context.Context, marketID uint64, side domain.Side, amount uint64) (domain.Bet, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("market %d: %w", marketID, err)
	}
	now := time.Now().UTC()
	if err := engine.ValidateBet(m, side, amount, s.maxBet, now); err != nil {
		return domain.Bet{}, err
	}
	return engine.BuildBet(m, "", side, amount, now), nil
}

func (s *MarketService) view(m domain.Market) MarketView {
	return MarketView{Market: m, State: m.StateAt(time.Now().UTC())}
}
