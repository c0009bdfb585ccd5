package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

var testWindow = 4 * time.Hour

func testStart() time.Time {
	return time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)
}

// memMarketStore is an in-memory domain.MarketStore.
type memMarketStore struct {
	mu      sync.Mutex
	rows    map[uint64]domain.Market
	inserts int
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{rows: map[uint64]domain.Market{}}
}

func (s *memMarketStore) Insert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[m.MarketID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[m.MarketID] = m
	s.inserts++
	return nil
}

func (s *memMarketStore) GetByID(_ context.Context, id uint64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarketStore) Latest(_ context.Context) (domain.Market, error) {
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

func (s *memMarketStore) ListActive(_ context.Context) ([]domain.Market, error) {
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

func (s *memMarketStore) ListExpiredUnsettled(_ context.Context, now time.Time) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.rows {
		if !m.Settled && !m.EndTime.After(now) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarketStore) ListSettledBefore(_ context.Context, before time.Time, limit int) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.rows {
		if m.Settled && m.EndTime.Before(before) && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarketStore) MarkSettled(_ context.Context, id uint64, closePrice uint64) error {
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

func (s *memMarketStore) UpdatePools(_ context.Context, id uint64, green, red uint64) error {
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

// fakeGateway simulates the ledger program's idempotency behavior.
type fakeGateway struct {
	mu          sync.Mutex
	markets     map[uint64]domain.Market
	createCalls int
	settleCalls int
	settleErr   map[uint64]error // per-market injected failures
	balance     uint64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		markets:   map[uint64]domain.Market{},
		settleErr: map[uint64]error{},
		balance:   1 << 40,
	}
}

func (g *fakeGateway) CreateMarket(_ context.Context, asset string, openPrice uint64, start, end time.Time, id uint64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if _, ok := g.markets[id]; ok {
		return "", domain.ErrAlreadyExists
	}
	g.markets[id] = domain.Market{
		MarketID: id, Asset: asset, StartTime: start, EndTime: end,
		OpenPrice: openPrice, GreenPool: 100, RedPool: 100, VirtualLiquidity: 100,
	}
	return fmt.Sprintf("sig-create-%d", id), nil
}

func (g *fakeGateway) SettleMarket(_ context.Context, id uint64, closePrice uint64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.settleCalls++
	if err := g.settleErr[id]; err != nil {
		return "", err
	}
	m, ok := g.markets[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	if m.Settled {
		return "", domain.ErrAlreadySettled
	}
	m.Settled = true
	m.ClosePrice = &closePrice
	g.markets[id] = m
	return fmt.Sprintf("sig-settle-%d", id), nil
}

func (g *fakeGateway) GetMarket(_ context.Context, id uint64) (domain.Market, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (g *fakeGateway) GetBet(context.Context, string, uint64) (domain.Bet, error) {
	return domain.Bet{}, domain.ErrNotFound
}

func (g *fakeGateway) TreasuryBalance(context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

// stubCandles returns one fixed candle per window start.
type stubCandles struct {
	candles map[int64]domain.Candle
	err     error
}

func (s *stubCandles) Window(_ context.Context, start time.Time, window time.Duration) (domain.Candle, error) {
	if s.err != nil {
		return domain.Candle{}, s.err
	}
	c, ok := s.candles[start.UTC().Unix()]
	if !ok {
		return domain.Candle{}, domain.ErrNotFound
	}
	return c, nil
}

// recordAlerter captures alerts for assertions.
type recordAlerter struct {
	mu     sync.Mutex
	events []string
}

func (a *recordAlerter) Alert(_ context.Context, event, _ string, _ map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordAlerter) has(event string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.events {
		if e == event {
			return true
		}
	}
	return false
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(store *memMarketStore, gw *fakeGateway, candles CandleSource, alerter Alerter, now time.Time) *Controller {
	c := NewController(
		Config{
			Asset:                "BTC/USDT",
			Window:               testWindow,
			LockAhead:            10 * time.Minute,
			VirtualLiquidity:     100,
			MaxConcurrentSettles: 2,
			LowTreasury:          1000,
		},
		store, gw, candles, nil, alerter, testLogger(),
	)
	c.now = func() time.Time { return now }
	return c
}

func candleFor(start time.Time, open, close uint64) map[int64]domain.Candle {
	return map[int64]domain.Candle{
		start.Unix(): {
			Start: start,
			End:   start.Add(testWindow),
			Open:  open,
			High:  open + 1000,
			Low:   open - 1000,
			Close: close,
		},
	}
}

func TestCreateCurrent_Idempotent(t *testing.T) {
	start := testStart()
	now := start.Add(time.Minute)
	store := newMemMarketStore()
	gw := newFakeGateway()
	candles := &stubCandles{candles: candleFor(start, 64000_000000, 0)}
	c := newTestController(store, gw, candles, nil, now)

	m1, err := c.CreateCurrent(context.Background())
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if m1.MarketID != domain.MarketIDForWindow(start) {
		t.Errorf("market id = %d", m1.MarketID)
	}
	if m1.OpenPrice != 64000_000000 {
		t.Errorf("open price = %d", m1.OpenPrice)
	}
	if m1.GreenPool != 100 || m1.RedPool != 100 {
		t.Errorf("pools not seeded with virtual liquidity: %+v", m1)
	}
	if !m1.LockTime.Equal(start.Add(testWindow).Add(-10 * time.Minute)) {
		t.Errorf("lock time = %s", m1.LockTime)
	}

	m2, err := c.CreateCurrent(context.Background())
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if m2.MarketID != m1.MarketID {
		t.Errorf("second create returned a different market")
	}
	if gw.createCalls != 1 {
		t.Errorf("ledger create called %d times, want 1", gw.createCalls)
	}
	if store.inserts != 1 {
		t.Errorf("mirror insert called %d times, want 1", store.inserts)
	}
}

func TestCreateCurrent_RepairsMirrorWhenLedgerHasMarket(t *testing.T) {
	start := testStart()
	store := newMemMarketStore()
	gw := newFakeGateway()
	// Ledger already has the account; the mirror lost its row.
	id := domain.MarketIDForWindow(start)
	gw.markets[id] = domain.Market{MarketID: id, Asset: "BTC/USDT"}

	candles := &stubCandles{candles: candleFor(start, 64000_000000, 0)}
	c := newTestController(store, gw, candles, nil, start.Add(time.Minute))

	m, err := c.CreateCurrent(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.MarketID != id {
		t.Errorf("market id = %d", m.MarketID)
	}
	if _, err := store.GetByID(context.Background(), id); err != nil {
		t.Errorf("mirror row not repaired: %v", err)
	}
}

func TestCreateCurrent_OracleFailureAborts(t *testing.T) {
	store := newMemMarketStore()
	gw := newFakeGateway()
	c := newTestController(store, gw, &stubCandles{err: errors.New("feed down")}, nil, testStart())

	if _, err := c.CreateCurrent(context.Background()); err == nil {
		t.Fatal("expected error when the oracle is down")
	}
	if gw.createCalls != 0 {
		t.Error("no ledger instruction may be sent without an open price")
	}
	if store.inserts != 0 {
		t.Error("no mirror row may be written without a ledger market")
	}
}

func TestSettleOne_SettlesAndMirrors(t *testing.T) {
	start := testStart()
	end := start.Add(testWindow)
	now := end.Add(time.Minute)
	id := domain.MarketIDForWindow(start)

	store := newMemMarketStore()
	gw := newFakeGateway()
	gw.markets[id] = domain.Market{MarketID: id, StartTime: start, EndTime: end}
	m := domain.Market{
		MarketID: id, Asset: "BTC/USDT",
		StartTime: start, EndTime: end, LockTime: end.Add(-10 * time.Minute),
	}
	store.rows[id] = m

	candles := &stubCandles{candles: candleFor(start, 64000_000000, 64500_000000)}
	c := newTestController(store, gw, candles, nil, now)

	if err := c.SettleOne(context.Background(), m); err != nil {
		t.Fatalf("settle: %v", err)
	}

	got, _ := store.GetByID(context.Background(), id)
	if !got.Settled || got.ClosePrice == nil || *got.ClosePrice != 64500_000000 {
		t.Errorf("mirror not settled correctly: %+v", got)
	}
	ledger, _ := gw.GetMarket(context.Background(), id)
	if !ledger.Settled {
		t.Error("ledger market not settled")
	}
}

func TestSettleOne_RejectsBeforeEnd(t *testing.T) {
	start := testStart()
	m := domain.Market{MarketID: 1, StartTime: start, EndTime: start.Add(testWindow)}
	c := newTestController(newMemMarketStore(), newFakeGateway(), &stubCandles{}, nil, start.Add(time.Hour))

	if err := c.SettleOne(context.Background(), m); !errors.Is(err, domain.ErrMarketNotEnded) {
		t.Errorf("err = %v, want ErrMarketNotEnded", err)
	}
}

func TestSettleOne_RejectsFormingCandle(t *testing.T) {
	start := testStart()
	end := start.Add(testWindow)
	m := domain.Market{MarketID: 1, StartTime: start, EndTime: end}

	// Candle end is in the future relative to "now": still forming.
	candles := &stubCandles{candles: map[int64]domain.Candle{
		start.Unix(): {Start: start, End: end.Add(time.Hour), Close: 1},
	}}
	c := newTestController(newMemMarketStore(), newFakeGateway(), candles, nil, end.Add(time.Minute))

	if err := c.SettleOne(context.Background(), m); !errors.Is(err, domain.ErrStaleCandle) {
		t.Errorf("err = %v, want ErrStaleCandle", err)
	}
}

func TestSettleExpired_IsolatesFailures(t *testing.T) {
	base := testStart()
	store := newMemMarketStore()
	gw := newFakeGateway()
	alerter := &recordAlerter{}

	candles := &stubCandles{candles: map[int64]domain.Candle{}}
	var ids []uint64
	for i := 0; i < 3; i++ {
		start := base.Add(time.Duration(i) * testWindow)
		end := start.Add(testWindow)
		id := domain.MarketIDForWindow(start)
		ids = append(ids, id)
		store.rows[id] = domain.Market{
			MarketID: id, StartTime: start, EndTime: end, LockTime: end.Add(-time.Minute),
		}
		gw.markets[id] = domain.Market{MarketID: id, StartTime: start, EndTime: end}
		candles.candles[start.Unix()] = domain.Candle{
			Start: start, End: end, Open: 1, Close: 2,
		}
	}
	gw.settleErr[ids[1]] = errors.New("rpc timeout")

	now := base.Add(4 * testWindow)
	c := newTestController(store, gw, candles, alerter, now)

	n, err := c.SettleExpired(context.Background())
	if err != nil {
		t.Fatalf("SettleExpired: %v", err)
	}
	if n != 2 {
		t.Errorf("settled = %d, want 2", n)
	}
	for _, id := range []uint64{ids[0], ids[2]} {
		m, _ := store.GetByID(context.Background(), id)
		if !m.Settled {
			t.Errorf("market %d should be settled", id)
		}
	}
	if m, _ := store.GetByID(context.Background(), ids[1]); m.Settled {
		t.Error("failed market must stay unsettled")
	}
	if !alerter.has("settle_failed") {
		t.Error("expected a settle_failed alert")
	}

	// The stuck market settles on the next pass once the fault clears.
	delete(gw.settleErr, ids[1])
	n, err = c.SettleExpired(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if n != 1 {
		t.Errorf("second pass settled = %d, want 1", n)
	}
}

func TestSettleExpired_AlertsOnLowTreasury(t *testing.T) {
	start := testStart()
	end := start.Add(testWindow)
	id := domain.MarketIDForWindow(start)

	store := newMemMarketStore()
	store.rows[id] = domain.Market{MarketID: id, StartTime: start, EndTime: end}
	gw := newFakeGateway()
	gw.markets[id] = domain.Market{MarketID: id, StartTime: start, EndTime: end}
	gw.balance = 10 // below the configured threshold of 1000

	alerter := &recordAlerter{}
	candles := &stubCandles{candles: candleFor(start, 1, 2)}
	c := newTestController(store, gw, candles, alerter, end.Add(time.Minute))

	if _, err := c.SettleExpired(context.Background()); err != nil {
		t.Fatalf("SettleExpired: %v", err)
	}
	if !alerter.has("low_treasury") {
		t.Error("expected a low_treasury alert")
	}
}
