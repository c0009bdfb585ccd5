package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

// Shared in-memory fakes for the service tests.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memMarkets struct {
	mu   sync.Mutex
	rows map[uint64]domain.Market
}

func newMemMarkets() *memMarkets { return &memMarkets{rows: map[uint64]domain.Market{}} }

func (s *memMarkets) Insert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[m.MarketID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[m.MarketID] = m
	return nil
}

func (s *memMarkets) GetByID(_ context.Context, id uint64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarkets) Latest(_ context.Context) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest domain.Market
	found := false
	for _, m := range s.rows {
		if !found || m.StartTime.After(latest.StartTime) {
			latest, found = m, true
		}
	}
	if !found {
		return domain.Market{}, domain.ErrNotFound
	}
	return latest, nil
}

func (s *memMarkets) ListActive(_ context.Context) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.rows {
		if !m.Settled {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarkets) ListExpiredUnsettled(_ context.Context, now time.Time) ([]domain.Market, error) {
	return nil, nil
}

func (s *memMarkets) ListSettledBefore(_ context.Context, _ time.Time, _ int) ([]domain.Market, error) {
	return nil, nil
}

func (s *memMarkets) MarkSettled(_ context.Context, id uint64, closePrice uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Settled {
		return domain.ErrAlreadySettled
	}
	m.Settled = true
	m.ClosePrice = &closePrice
	s.rows[id] = m
	return nil
}

func (s *memMarkets) UpdatePools(_ context.Context, id uint64, green, red uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.GreenPool, m.RedPool = green, red
	s.rows[id] = m
	return nil
}

type betKey struct {
	wallet   string
	marketID uint64
}

type memBets struct {
	mu   sync.Mutex
	rows map[betKey]domain.Bet
}

func newMemBets() *memBets { return &memBets{rows: map[betKey]domain.Bet{}} }

func (s *memBets) Insert(_ context.Context, b domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := betKey{b.Wallet, b.MarketID}
	if _, ok := s.rows[k]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[k] = b
	return nil
}

func (s *memBets) Get(_ context.Context, wallet string, marketID uint64) (domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[betKey{wallet, marketID}]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *memBets) ListByWallet(_ context.Context, wallet string) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for k, b := range s.rows {
		if k.wallet == wallet {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memBets) ListByMarket(_ context.Context, marketID uint64) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for k, b := range s.rows {
		if k.marketID == marketID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memBets) MarkClaimed(_ context.Context, wallet string, marketID uint64, payout uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := betKey{wallet, marketID}
	b, ok := s.rows[k]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Claimed {
		return domain.ErrAlreadyClaimed
	}
	b.Claimed = true
	b.Payout = &payout
	s.rows[k] = b
	return nil
}

type memPayouts struct {
	mu   sync.Mutex
	rows []domain.Payout
}

func (s *memPayouts) Record(_ context.Context, p domain.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, p)
	return nil
}

func (s *memPayouts) ListByWallet(_ context.Context, wallet string) ([]domain.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Payout
	for _, p := range s.rows {
		if p.Wallet == wallet {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPayouts) ListBefore(_ context.Context, _ time.Time, _ int) ([]domain.Payout, error) {
	return nil, nil
}

type memPnL struct {
	mu     sync.Mutex
	deltas map[string][]int64
}

func newMemPnL() *memPnL { return &memPnL{deltas: map[string][]int64{}} }

func (s *memPnL) Apply(_ context.Context, wallet string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas[wallet] = append(s.deltas[wallet], delta)
	return nil
}

func (s *memPnL) Stats(_ context.Context, wallet string) (domain.PnLStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.PnLStats{Wallet: wallet}
	var wins int64
	for _, d := range s.deltas[wallet] {
		stats.TotalPnL += d
		stats.TotalBets++
		if d > 0 {
			wins++
		}
	}
	if stats.TotalBets > 0 {
		stats.WinRate = float64(wins) / float64(stats.TotalBets) * 100
	}
	return stats, nil
}

// fakeLedger answers GetBet and GetMarket from fixed maps.
type fakeLedger struct {
	mu      sync.Mutex
	bets    map[betKey]domain.Bet
	markets map[uint64]domain.Market
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{bets: map[betKey]domain.Bet{}, markets: map[uint64]domain.Market{}}
}

func (g *fakeLedger) CreateMarket(context.Context, string, uint64, time.Time, time.Time, uint64) (string, error) {
	return "", domain.ErrAlreadyExists
}

func (g *fakeLedger) SettleMarket(context.Context, uint64, uint64) (string, error) {
	return "", domain.ErrAlreadySettled
}

func (g *fakeLedger) GetMarket(_ context.Context, id uint64) (domain.Market, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (g *fakeLedger) GetBet(_ context.Context, wallet string, marketID uint64) (domain.Bet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.bets[betKey{wallet, marketID}]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func (g *fakeLedger) TreasuryBalance(context.Context) (uint64, error) {
	return 1 << 40, nil
}
