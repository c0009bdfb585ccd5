package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

// Binance fetches candles from the Binance spot klines API.
type Binance struct {
	baseURL string
	symbol  string
	client  *http.Client
}

// NewBinance builds a Binance source for one trading symbol (e.g. "BTCUSDT").
func NewBinance(baseURL, symbol string, timeout time.Duration) *Binance {
	return &Binance{
		baseURL: baseURL,
		symbol:  symbol,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *Binance) Name() string { return "binance" }

// binanceIntervals maps window lengths to the API's interval tokens.
var binanceIntervals = map[time.Duration]string{
	time.Minute:      "1m",
	5 * time.Minute:  "5m",
	15 * time.Minute: "15m",
	30 * time.Minute: "30m",
	time.Hour:        "1h",
	2 * time.Hour:    "2h",
	4 * time.Hour:    "4h",
	6 * time.Hour:    "6h",
	12 * time.Hour:   "12h",
	24 * time.Hour:   "1d",
}

func (b *Binance) Candle(ctx context.Context, start time.Time, window time.Duration) (domain.Candle, error) {
	interval, ok := binanceIntervals[window]
	if !ok {
		return domain.Candle{}, fmt.Errorf("binance has no interval for window %v", window)
	}

	q := url.Values{}
	q.Set("symbol", b.symbol)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return domain.Candle{}, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return domain.Candle{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Candle{}, fmt.Errorf("klines returned %d: %s", resp.StatusCode, body)
	}

	// Klines are heterogeneous arrays; the prices we need are the string
	// elements 1..4 and the open time is element 0.
	var klines [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&klines); err != nil {
		return domain.Candle{}, fmt.Errorf("decode klines: %w", err)
	}
	if len(klines) == 0 {
		return domain.Candle{}, fmt.Errorf("no kline for %s at %s: %w", b.symbol, start, domain.ErrNotFound)
	}
	k := klines[0]
	if len(k) < 5 {
		return domain.Candle{}, fmt.Errorf("short kline row: %d fields", len(k))
	}

	var openMillis int64
	if err := json.Unmarshal(k[0], &openMillis); err != nil {
		return domain.Candle{}, fmt.Errorf("kline open time: %w", err)
	}
	got := time.UnixMilli(openMillis).UTC()
	if !got.Equal(start) {
		return domain.Candle{}, fmt.Errorf("kline starts at %s, wanted %s: %w", got, start, domain.ErrStaleCandle)
	}

	var c domain.Candle
	c.Start = got
	c.End = got.Add(window)
	for i, dst := range []*uint64{&c.Open, &c.High, &c.Low, &c.Close} {
		var s string
		if err := json.Unmarshal(k[i+1], &s); err != nil {
			return domain.Candle{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		v, err := parsePrice(s)
		if err != nil {
			return domain.Candle{}, err
		}
		*dst = v
	}
	return c, nil
}
