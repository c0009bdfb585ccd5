package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memMarketSource struct {
	rows     map[uint64]domain.Market
	archived map[uint64]bool
}

func newMemMarketSource() *memMarketSource {
	return &memMarketSource{rows: map[uint64]domain.Market{}, archived: map[uint64]bool{}}
}

func (s *memMarketSource) ListSettledBefore(_ context.Context, before time.Time, limit int) ([]domain.Market, error) {
	var out []domain.Market
	for id, m := range s.rows {
		if m.Settled && !s.archived[id] && m.EndTime.Before(before) {
			out = append(out, m)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memMarketSource) MarkArchived(_ context.Context, id uint64) error {
	if s.archived[id] {
		return domain.ErrNotFound
	}
	s.archived[id] = true
	return nil
}

type memBetSource struct {
	rows map[uint64][]domain.Bet
}

func (s *memBetSource) ListByMarket(_ context.Context, id uint64) ([]domain.Bet, error) {
	return s.rows[id], nil
}

type memUploader struct {
	objects map[string][]byte
	err     error
}

func (u *memUploader) Put(_ context.Context, key string, body io.Reader, _ string) error {
	if u.err != nil {
		return u.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if u.objects == nil {
		u.objects = map[string][]byte{}
	}
	u.objects[key] = data
	return nil
}

func agedMarket(start int64) domain.Market {
	closePrice := uint64(64500_000000)
	st := time.Unix(start, 0).UTC()
	return domain.Market{
		MarketID:   uint64(start),
		Asset:      "BTC/USDT",
		StartTime:  st,
		EndTime:    st.Add(4 * time.Hour),
		LockTime:   st.Add(4*time.Hour - 10*time.Minute),
		OpenPrice:  64000_000000,
		ClosePrice: &closePrice,
		GreenPool:  1100,
		RedPool:    2100,
		Settled:    true,
	}
}

func TestArchivePass_UploadsJSONLAndStamps(t *testing.T) {
	// Market ended long before the cutoff.
	start := time.Now().UTC().Add(-60 * 24 * time.Hour).Truncate(4 * time.Hour).Unix()
	m := agedMarket(start)

	markets := newMemMarketSource()
	markets.rows[m.MarketID] = m
	payout := uint64(2000)
	bets := &memBetSource{rows: map[uint64][]domain.Bet{
		m.MarketID: {
			{Wallet: "w1", MarketID: m.MarketID, Side: domain.SideUp, Amount: 1000, Weight: 100, EffectiveStake: 1000, Payout: &payout, Claimed: true},
			{Wallet: "w2", MarketID: m.MarketID, Side: domain.SideDown, Amount: 2000, Weight: 70, EffectiveStake: 1400},
		},
	}}
	blob := &memUploader{}

	a := NewArchiver(markets, bets, blob, 30*24*time.Hour, testLogger())
	if err := a.ArchivePass(context.Background()); err != nil {
		t.Fatalf("ArchivePass: %v", err)
	}

	if !markets.archived[m.MarketID] {
		t.Error("market not stamped archived")
	}
	if len(blob.objects) != 1 {
		t.Fatalf("uploaded %d objects, want 1", len(blob.objects))
	}

	key := archiveKey(m)
	data, ok := blob.objects[key]
	if !ok {
		t.Fatalf("object %q missing, have %v", key, keysOf(blob.objects))
	}

	var lines []archiveLine
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var l archiveLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("bad JSONL line: %v", err)
		}
		lines = append(lines, l)
	}
	if len(lines) != 3 {
		t.Fatalf("archive has %d lines, want market + 2 bets", len(lines))
	}
	if lines[0].Type != "market" || lines[0].MarketID != m.MarketID {
		t.Errorf("first line = %+v", lines[0])
	}
	if lines[1].Type != "bet" || lines[2].Type != "bet" {
		t.Errorf("bet lines = %+v, %+v", lines[1], lines[2])
	}
}

func TestArchivePass_SkipsRecentMarkets(t *testing.T) {
	start := domain.WindowStart(time.Now(), 4*time.Hour).Add(-8 * time.Hour).Unix()
	m := agedMarket(start)

	markets := newMemMarketSource()
	markets.rows[m.MarketID] = m
	blob := &memUploader{}

	a := NewArchiver(markets, &memBetSource{}, blob, 30*24*time.Hour, testLogger())
	if err := a.ArchivePass(context.Background()); err != nil {
		t.Fatalf("ArchivePass: %v", err)
	}
	if len(blob.objects) != 0 {
		t.Errorf("uploaded %d objects, want 0 for a recent market", len(blob.objects))
	}
}

func TestArchivePass_UploadFailureLeavesRowUnstamped(t *testing.T) {
	start := time.Now().UTC().Add(-60 * 24 * time.Hour).Truncate(4 * time.Hour).Unix()
	m := agedMarket(start)

	markets := newMemMarketSource()
	markets.rows[m.MarketID] = m
	blob := &memUploader{err: errors.New("bucket unreachable")}

	a := NewArchiver(markets, &memBetSource{}, blob, 30*24*time.Hour, testLogger())
	if err := a.ArchivePass(context.Background()); err == nil {
		t.Fatal("want error when upload fails")
	}
	if markets.archived[m.MarketID] {
		t.Error("market must stay unstamped after a failed upload")
	}
}

func TestArchiveKey(t *testing.T) {
	m := agedMarket(1756339200) // 2025-08-28 00:00 UTC
	got := archiveKey(m)
	want := "markets/BTC-USDT/2025/08/1756339200.jsonl"
	if got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
