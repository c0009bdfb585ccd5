package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/candlefi/candle-markets/internal/domain"
	"github.com/candlefi/candle-markets/internal/engine"
)

// PositionService serves per-wallet reads: open and settled positions,
// aggregate PnL, and claimable previews.
type PositionService struct {
	markets domain.MarketStore
	bets    domain.BetStore
	pnl     domain.PnLStore
	logger  *slog.Logger
}

// NewPositionService creates a PositionService.
func NewPositionService(markets domain.MarketStore, bets domain.BetStore, pnl domain.PnLStore, logger *slog.Logger) *PositionService {
	return &PositionService{
		markets: markets,
		bets:    bets,
		pnl:     pnl,
		logger:  logger.With("component", "position_service"),
	}
}

// Positions returns every bet the wallet holds, joined with its market's
// settlement status, newest first.
func (s *PositionService) Positions(ctx context.Context, wallet string) ([]domain.Position, error) {
	bets, err := s.bets.ListByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("positions for %s: %w", wallet, err)
	}

	positions := make([]domain.Position, 0, len(bets))
	for _, b := range bets {
		settled := false
		if m, err := s.markets.GetByID(ctx, b.MarketID); err == nil {
			settled = m.Settled
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("market %d for position: %w", b.MarketID, err)
		}
		positions = append(positions, domain.Position{
			MarketID:       b.MarketID,
			Side:           b.Side,
			Amount:         b.Amount,
			Weight:         b.Weight,
			EffectiveStake: b.EffectiveStake,
			Payout:         b.Payout,
			Claimed:        b.Claimed,
			Settled:        settled,
			PlacedAt:       b.CreatedAt,
		})
	}
	return positions, nil
}

// PnL returns the wallet's settled aggregate.
func (s *PositionService) PnL(ctx context.Context, wallet string) (domain.PnLStats, error) {
	stats, err := s.pnl.Stats(ctx, wallet)
	if err != nil {
		return domain.PnLStats{}, fmt.Errorf("pnl for %s: %w", wallet, err)
	}
	return stats, nil
}

// Claimable is a settled, unclaimed bet with its computed payout. Losing and
// tied bets appear with a zero payout: claiming them closes the position on
// the ledger, so they are still actionable.
type Claimable struct {
	MarketID       uint64
	Side           domain.Side
	Amount         uint64
	EffectiveStake uint64
	Payout         uint64
	Result         domain.ClaimResult
}

// ListClaimable previews every claim the wallet could submit right now. The
// preview uses the same payout arithmetic the ledger program runs, so the
// numbers shown match what a claim instruction would transfer.
func (s *PositionService) ListClaimable(ctx context.Context, wallet string) ([]Claimable, error) {
	bets, err := s.bets.ListByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("claimable for %s: %w", wallet, err)
	}

	var out []Claimable
	for _, b := range bets {
		if b.Claimed {
			continue
		}
		m, err := s.markets.GetByID(ctx, b.MarketID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("market %d for claimable: %w", b.MarketID, err)
		}
		if !m.Settled {
			continue
		}
		out = append(out, Claimable{
			MarketID:       b.MarketID,
			Side:           b.Side,
			Amount:         b.Amount,
			EffectiveStake: b.EffectiveStake,
			Payout:         engine.ComputePayout(m, b),
			Result:         engine.ClassifyClaim(m, b),
		})
	}
	return out, nil
}
