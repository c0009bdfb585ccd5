package engine

import (
	"testing"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

func openMarket() domain.Market {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return domain.Market{
		MarketID:         domain.MarketIDForWindow(start),
		Asset:            "BTC/USDT",
		StartTime:        start,
		EndTime:          start.Add(4 * time.Hour),
		LockTime:         start.Add(4*time.Hour - 10*time.Minute),
		OpenPrice:        100_000000,
		GreenPool:        100,
		RedPool:          100,
		VirtualLiquidity: 100,
	}
}

func TestValidateBet(t *testing.T) {
	m := openMarket()

	cases := []struct {
		name   string
		side   domain.Side
		amount uint64
		at     time.Time
		want   error
	}{
		{"ok early", domain.SideUp, 1000, m.StartTime.Add(time.Minute), nil},
		{"ok just before lock", domain.SideDown, 1000, m.LockTime.Add(-time.Second), nil},
		{"at lock time", domain.SideUp, 1000, m.LockTime, domain.ErrMarketLocked},
		{"after lock", domain.SideUp, 1000, m.EndTime, domain.ErrMarketLocked},
		{"zero amount", domain.SideUp, 0, m.StartTime.Add(time.Minute), domain.ErrInvalidBetSize},
		{"over max", domain.SideUp, MaxBet + 1, m.StartTime.Add(time.Minute), domain.ErrInvalidBetSize},
		{"at max", domain.SideUp, MaxBet, m.StartTime.Add(time.Minute), nil},
		{"bad side", domain.Side("SIDEWAYS"), 1000, m.StartTime.Add(time.Minute), domain.ErrInvalidBetSize},
		{"before start", domain.SideUp, 1000, m.StartTime.Add(-time.Second), domain.ErrMarketNotOpen},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidateBet(m, tc.side, tc.amount, 0, tc.at); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateBet_ConfiguredCap(t *testing.T) {
	m := openMarket()
	at := m.StartTime.Add(time.Minute)

	if err := ValidateBet(m, domain.SideUp, 2000, 1000, at); err != domain.ErrInvalidBetSize {
		t.Errorf("over configured cap: got %v, want ErrInvalidBetSize", err)
	}
	if err := ValidateBet(m, domain.SideUp, 1000, 1000, at); err != nil {
		t.Errorf("at configured cap: got %v", err)
	}
}

func TestBuildBet_SnapshotsWeight(t *testing.T) {
	m := openMarket()

	// Third quarter of the window: 50% tier, integer floor.
	at := m.StartTime.Add(2*time.Hour + 30*time.Minute)
	b := BuildBet(m, "wallet-1", domain.SideUp, 999, at)

	if b.Weight != 50 {
		t.Errorf("weight = %d, want 50", b.Weight)
	}
	if b.EffectiveStake != 499 {
		t.Errorf("effective stake = %d, want 499", b.EffectiveStake)
	}
	if b.MarketID != m.MarketID || b.Side != domain.SideUp || b.Amount != 999 {
		t.Errorf("bet fields not carried: %+v", b)
	}
}

func TestApplyBet_PoolsNeverDropBelowVirtualLiquidity(t *testing.T) {
	m := openMarket()

	bets := []struct {
		side domain.Side
		eff  uint64
	}{
		{domain.SideUp, 500},
		{domain.SideDown, 700},
		{domain.SideUp, 1},
		{domain.SideDown, 0},
	}

	prevGreen, prevRed := m.GreenPool, m.RedPool
	for _, b := range bets {
		ApplyBet(&m, b.side, b.eff)
		if m.GreenPool < prevGreen || m.RedPool < prevRed {
			t.Fatalf("pool decreased after applying %+v: %+v", b, m)
		}
		prevGreen, prevRed = m.GreenPool, m.RedPool

		if m.GreenPool < m.VirtualLiquidity || m.RedPool < m.VirtualLiquidity {
			t.Fatalf("pool below virtual liquidity: %+v", m)
		}
	}

	if m.GreenPool-m.VirtualLiquidity != 501 {
		t.Errorf("green real stake = %d, want 501", m.GreenPool-m.VirtualLiquidity)
	}
	if m.RedPool-m.VirtualLiquidity != 700 {
		t.Errorf("red real stake = %d, want 700", m.RedPool-m.VirtualLiquidity)
	}
}
