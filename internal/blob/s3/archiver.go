package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

// MarketSource lists archivable markets and stamps them once uploaded.
// Satisfied by the postgres market store.
type MarketSource interface {
	ListSettledBefore(ctx context.Context, before time.Time, limit int) ([]domain.Market, error)
	MarkArchived(ctx context.Context, marketID uint64) error
}

// BetSource lists the bets of one market. Satisfied by the postgres bet store.
type BetSource interface {
	ListByMarket(ctx context.Context, marketID uint64) ([]domain.Bet, error)
}

// Uploader stores one archive object. Satisfied by Client.
type Uploader interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// archiveBatchSize bounds one pass so a large backlog drains across passes
// instead of holding the archive lock for hours.
const archiveBatchSize = 50

// Archiver moves aged settled markets to object storage as JSONL, one object
// per market: a market line followed by one line per bet. Object keys are
// deterministic, so a crash between upload and stamp re-uploads the same
// bytes on the next pass.
type Archiver struct {
	markets MarketSource
	bets    BetSource
	blob    Uploader
	after   time.Duration
	logger  *slog.Logger
}

// NewArchiver creates an Archiver. after is the age past end_time at which a
// settled market becomes archivable.
func NewArchiver(markets MarketSource, bets BetSource, blob Uploader, after time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		markets: markets,
		bets:    bets,
		blob:    blob,
		after:   after,
		logger:  logger.With("component", "archiver"),
	}
}

// archiveLine is one JSONL record. Type distinguishes the market header from
// its bet rows.
type archiveLine struct {
	Type           string  `json:"type"` // "market" or "bet"
	MarketID       uint64  `json:"market_id"`
	Asset          string  `json:"asset,omitempty"`
	StartTime      int64   `json:"start_time,omitempty"`
	EndTime        int64   `json:"end_time,omitempty"`
	OpenPrice      uint64  `json:"open_price,omitempty"`
	ClosePrice     *uint64 `json:"close_price,omitempty"`
	GreenPool      uint64  `json:"green_pool,omitempty"`
	RedPool        uint64  `json:"red_pool,omitempty"`
	Wallet         string  `json:"wallet,omitempty"`
	Side           string  `json:"side,omitempty"`
	Amount         uint64  `json:"amount,omitempty"`
	Weight         uint64  `json:"weight,omitempty"`
	EffectiveStake uint64  `json:"effective_stake,omitempty"`
	Payout         *uint64 `json:"payout,omitempty"`
	Claimed        bool    `json:"claimed,omitempty"`
}

// ArchivePass archives one batch of aged markets. Per-market failures stop
// the pass; the failed market stays unstamped and leads the next batch.
func (a *Archiver) ArchivePass(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.after)
	markets, err := a.markets.ListSettledBefore(ctx, cutoff, archiveBatchSize)
	if err != nil {
		return fmt.Errorf("archive: list markets: %w", err)
	}
	if len(markets) == 0 {
		return nil
	}

	for _, m := range markets {
		if err := a.archiveOne(ctx, m); err != nil {
			return fmt.Errorf("archive market %d: %w", m.MarketID, err)
		}
	}
	a.logger.Info("archive pass complete", "archived", len(markets), "cutoff", cutoff)
	return nil
}

func (a *Archiver) archiveOne(ctx context.Context, m domain.Market) error {
	bets, err := a.bets.ListByMarket(ctx, m.MarketID)
	if err != nil {
		return fmt.Errorf("list bets: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(archiveLine{
		Type:       "market",
		MarketID:   m.MarketID,
		Asset:      m.Asset,
		StartTime:  m.StartTime.Unix(),
		EndTime:    m.EndTime.Unix(),
		OpenPrice:  m.OpenPrice,
		ClosePrice: m.ClosePrice,
		GreenPool:  m.GreenPool,
		RedPool:    m.RedPool,
	}); err != nil {
		return fmt.Errorf("encode market: %w", err)
	}
	for _, b := range bets {
		if err := enc.Encode(archiveLine{
			Type:           "bet",
			MarketID:       b.MarketID,
			Wallet:         b.Wallet,
			Side:           string(b.Side),
			Amount:         b.Amount,
			Weight:         b.Weight,
			EffectiveStake: b.EffectiveStake,
			Payout:         b.Payout,
			Claimed:        b.Claimed,
		}); err != nil {
			return fmt.Errorf("encode bet: %w", err)
		}
	}

	key := archiveKey(m)
	if err := a.blob.Put(ctx, key, &buf, "application/x-ndjson"); err != nil {
		return err
	}
	if err := a.markets.MarkArchived(ctx, m.MarketID); err != nil {
		return fmt.Errorf("stamp archived: %w", err)
	}

	a.logger.Debug("market archived", "market_id", m.MarketID, "key", key, "bets", len(bets))
	return nil
}

// archiveKey lays objects out by month so listing a billing period is one
// prefix scan: markets/BTC-USDT/2026/08/1756339200.jsonl
func archiveKey(m domain.Market) string {
	asset := make([]byte, len(m.Asset))
	for i := 0; i < len(m.Asset); i++ {
		c := m.Asset[i]
		if c == '/' {
			c = '-'
		}
		asset[i] = c
	}
	t := m.StartTime.UTC()
	return fmt.Sprintf("markets/%s/%04d/%02d/%d.jsonl", asset, t.Year(), t.Month(), m.MarketID)
}
