package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

const (
	testWallet = "6yKHERk8rsbmJxvMpPuwPs1ct3hRiP7xaJF2tpnoHe42"
	testMarket = uint64(1756339200)
)

func settledUpMarket() domain.Market {
	closePrice := uint64(64500_000000)
	start := time.Unix(int64(testMarket), 0).UTC()
	return domain.Market{
		MarketID:         testMarket,
		Asset:            "BTC/USDT",
		StartTime:        start,
		EndTime:          start.Add(4 * time.Hour),
		LockTime:         start.Add(4*time.Hour - 10*time.Minute),
		OpenPrice:        64000_000000,
		ClosePrice:       &closePrice,
		GreenPool:        100 + 1000,
		RedPool:          100 + 2000,
		VirtualLiquidity: 100,
		Settled:          true,
	}
}

func upBet() domain.Bet {
	return domain.Bet{
		Wallet:         testWallet,
		MarketID:       testMarket,
		Side:           domain.SideUp,
		Amount:         1000,
		Weight:         100,
		EffectiveStake: 1000,
	}
}

func newClaimFixture() (*ClaimService, *memMarkets, *memBets, *memPayouts, *memPnL, *fakeLedger) {
	markets := newMemMarkets()
	bets := newMemBets()
	payouts := &memPayouts{}
	pnl := newMemPnL()
	ledger := newFakeLedger()
	svc := NewClaimService(markets, bets, payouts, pnl, ledger, nil, testLogger())
	return svc, markets, bets, payouts, pnl, ledger
}

func TestRecordClaim_WinningBet(t *testing.T) {
	svc, markets, bets, payouts, pnl, ledger := newClaimFixture()
	ctx := context.Background()

	markets.rows[testMarket] = settledUpMarket()
	bets.rows[betKey{testWallet, testMarket}] = upBet()
	claimed := upBet()
	claimed.Claimed = true
	ledger.bets[betKey{testWallet, testMarket}] = claimed

	receipt, err := svc.RecordClaim(ctx, testWallet, testMarket, "sig-claim")
	if err != nil {
		t.Fatalf("RecordClaim: %v", err)
	}
	// Whole losing pool (2000 real) to the sole winner (eff 1000).
	if receipt.Payout != 2000 {
		t.Errorf("payout = %d, want 2000", receipt.Payout)
	}
	if receipt.Result != domain.ClaimWon {
		t.Errorf("result = %s, want won", receipt.Result)
	}

	b, _ := bets.Get(ctx, testWallet, testMarket)
	if !b.Claimed || b.Payout == nil || *b.Payout != 2000 {
		t.Errorf("bet row not updated: %+v", b)
	}

	got, _ := payouts.ListByWallet(ctx, testWallet)
	if len(got) != 1 || got[0].Amount != 2000 || got[0].Reference != "sig-claim" {
		t.Errorf("payout record wrong: %+v", got)
	}

	stats, _ := pnl.Stats(ctx, testWallet)
	if stats.TotalPnL != 1000 { // 2000 payout - 1000 effective stake
		t.Errorf("pnl delta = %d, want 1000", stats.TotalPnL)
	}
}

func TestRecordClaim_UsesLedgerPoolsOverStaleMirror(t *testing.T) {
	svc, markets, bets, payouts, pnl, ledger := newClaimFixture()
	ctx := context.Background()

	// A late bet doubled the losing pool on the ledger but was never posted
	// to the mirror, and no reconcile pass ran before settlement.
	markets.rows[testMarket] = settledUpMarket()
	truth := settledUpMarket()
	truth.RedPool = 100 + 4000
	ledger.markets[testMarket] = truth

	bets.rows[betKey{testWallet, testMarket}] = upBet()
	claimed := upBet()
	claimed.Claimed = true
	ledger.bets[betKey{testWallet, testMarket}] = claimed

	receipt, err := svc.RecordClaim(ctx, testWallet, testMarket, "sig-claim")
	if err != nil {
		t.Fatalf("RecordClaim: %v", err)
	}
	// The treasury paid out of the real pools: the sole winner took the
	// whole 4000 losing stake, not the mirror's stale 2000.
	if receipt.Payout != 4000 {
		t.Errorf("payout = %d, want 4000", receipt.Payout)
	}

	b, _ := bets.Get(ctx, testWallet, testMarket)
	if b.Payout == nil || *b.Payout != 4000 {
		t.Errorf("bet row payout = %v, want 4000", b.Payout)
	}
	got, _ := payouts.ListByWallet(ctx, testWallet)
	if len(got) != 1 || got[0].Amount != 4000 {
		t.Errorf("payout record wrong: %+v", got)
	}
	stats, _ := pnl.Stats(ctx, testWallet)
	if stats.TotalPnL != 3000 {
		t.Errorf("pnl delta = %d, want 3000", stats.TotalPnL)
	}

	// The drift is repaired in passing.
	m, _ := markets.GetByID(ctx, testMarket)
	if m.RedPool != 100+4000 {
		t.Errorf("mirror red pool = %d, want repaired to 4100", m.RedPool)
	}
}

func TestRecordClaim_LosingBetPaysZero(t *testing.T) {
	svc, markets, bets, payouts, pnl, ledger := newClaimFixture()
	ctx := context.Background()

	markets.rows[testMarket] = settledUpMarket()
	lost := upBet()
	lost.Side = domain.SideDown
	lost.EffectiveStake = 2000
	bets.rows[betKey{testWallet, testMarket}] = lost
	claimed := lost
	claimed.Claimed = true
	ledger.bets[betKey{testWallet, testMarket}] = claimed

	receipt, err := svc.RecordClaim(ctx, testWallet, testMarket, "sig")
	if err != nil {
		t.Fatalf("RecordClaim: %v", err)
	}
	if receipt.Payout != 0 || receipt.Result != domain.ClaimLost {
		t.Errorf("receipt = %+v", receipt)
	}

	// Zero payouts close the position but never append a payout row.
	b, _ := bets.Get(ctx, testWallet, testMarket)
	if !b.Claimed {
		t.Error("losing bet must still be marked claimed")
	}
	if got, _ := payouts.ListByWallet(ctx, testWallet); len(got) != 0 {
		t.Errorf("unexpected payout rows: %+v", got)
	}

	stats, _ := pnl.Stats(ctx, testWallet)
	if stats.TotalPnL != -2000 {
		t.Errorf("pnl delta = %d, want -2000", stats.TotalPnL)
	}
}

func TestRecordClaim_TieMarket(t *testing.T) {
	svc, markets, bets, _, _, ledger := newClaimFixture()
	ctx := context.Background()

	m := settledUpMarket()
	flat := m.OpenPrice
	m.ClosePrice = &flat
	markets.rows[testMarket] = m
	bets.rows[betKey{testWallet, testMarket}] = upBet()
	claimed := upBet()
	claimed.Claimed = true
	ledger.bets[betKey{testWallet, testMarket}] = claimed

	receipt, err := svc.RecordClaim(ctx, testWallet, testMarket, "sig")
	if err != nil {
		t.Fatalf("RecordClaim: %v", err)
	}
	if receipt.Payout != 0 || receipt.Result != domain.ClaimTie {
		t.Errorf("receipt = %+v", receipt)
	}
}

func TestRecordClaim_Replay(t *testing.T) {
	svc, markets, bets, _, pnl, ledger := newClaimFixture()
	ctx := context.Background()

	markets.rows[testMarket] = settledUpMarket()
	bets.rows[betKey{testWallet, testMarket}] = upBet()
	claimed := upBet()
	claimed.Claimed = true
	ledger.bets[betKey{testWallet, testMarket}] = claimed

	if _, err := svc.RecordClaim(ctx, testWallet, testMarket, "sig"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := svc.RecordClaim(ctx, testWallet, testMarket, "sig"); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("replay err = %v, want ErrAlreadyClaimed", err)
	}

	// The replay must not double-count pnl.
	stats, _ := pnl.Stats(ctx, testWallet)
	if stats.TotalBets != 1 {
		t.Errorf("pnl applied %d times, want 1", stats.TotalBets)
	}
}

func TestRecordClaim_Guards(t *testing.T) {
	svc, markets, bets, _, _, ledger := newClaimFixture()
	ctx := context.Background()

	// Unsettled market.
	open := settledUpMarket()
	open.Settled = false
	open.ClosePrice = nil
	markets.rows[testMarket] = open
	bets.rows[betKey{testWallet, testMarket}] = upBet()
	if _, err := svc.RecordClaim(ctx, testWallet, testMarket, "sig"); !errors.Is(err, domain.ErrNotSettled) {
		t.Errorf("unsettled err = %v, want ErrNotSettled", err)
	}

	// Settled, but no claim transaction confirmed on the ledger yet.
	markets.rows[testMarket] = settledUpMarket()
	if _, err := svc.RecordClaim(ctx, testWallet, testMarket, "sig"); !errors.Is(err, domain.ErrNotConfirmed) {
		t.Errorf("unconfirmed err = %v, want ErrNotConfirmed", err)
	}

	// Ledger bet exists but its claimed flag is still false.
	ledger.bets[betKey{testWallet, testMarket}] = upBet()
	if _, err := svc.RecordClaim(ctx, testWallet, testMarket, "sig"); !errors.Is(err, domain.ErrNotConfirmed) {
		t.Errorf("pending err = %v, want ErrNotConfirmed", err)
	}

	// Unknown market.
	if _, err := svc.RecordClaim(ctx, testWallet, 999, "sig"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown market err = %v, want ErrNotFound", err)
	}
}
