package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

// Coinbase fetches candles from the Coinbase Exchange API. It is the fallback
// feed; prices come back as JSON numbers, so the decoder keeps them as
// json.Number to avoid a float round trip.
type Coinbase struct {
	baseURL string
	product string
	client  *http.Client
}

// NewCoinbase builds a Coinbase source for one product (e.g. "BTC-USD").
func NewCoinbase(baseURL, product string, timeout time.Duration) *Coinbase {
	return &Coinbase{
		baseURL: baseURL,
		product: product,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Coinbase) Name() string { return "coinbase" }

// Supported granularities in seconds, per the exchange API.
var coinbaseGranularities = map[time.Duration]bool{
	time.Minute:      true,
	5 * time.Minute:  true,
	15 * time.Minute: true,
	time.Hour:        true,
	4 * time.Hour:    true,
	6 * time.Hour:    true,
	24 * time.Hour:   true,
}

func (c *Coinbase) Candle(ctx context.Context, start time.Time, window time.Duration) (domain.Candle, error) {
	if !coinbaseGranularities[window] {
		return domain.Candle{}, fmt.Errorf("coinbase has no granularity for window %v", window)
	}

	q := url.Values{}
	q.Set("granularity", fmt.Sprintf("%d", int(window.Seconds())))
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", start.Add(window).UTC().Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/products/%s/candles?%s", c.baseURL, c.product, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Candle{}, err
	}
	req.Header.Set("User-Agent", "candled/1.0")
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Candle{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Candle{}, fmt.Errorf("candles returned %d: %s", resp.StatusCode, body)
	}

	// Rows are [time, low, high, open, close, volume], newest first.
	var rows [][]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return domain.Candle{}, fmt.Errorf("decode candles: %w", err)
	}

	want := start.UTC().Unix()
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		ts, err := row[0].Int64()
		if err != nil || ts != want {
			continue
		}
		var out domain.Candle
		out.Start = start.UTC()
		out.End = out.Start.Add(window)
		// Reorder low/high/open/close into open/high/low/close.
		for i, dst := range []*uint64{&out.Low, &out.High, &out.Open, &out.Close} {
			v, err := parsePrice(row[i+1].String())
			if err != nil {
				return domain.Candle{}, err
			}
			*dst = v
		}
		return out, nil
	}
	return domain.Candle{}, fmt.Errorf("no candle for %s at %s: %w", c.product, start, domain.ErrNotFound)
}
