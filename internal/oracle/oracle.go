// Package oracle fetches price candles from exchange APIs. Prices are parsed
// from the exchanges' decimal strings into 1e6 fixed point; no floats touch
// the values that end up on the ledger.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/candlefi/candle-markets/internal/domain"
)

// Source is a single upstream candle feed.
type Source interface {
	Name() string
	// Candle returns the candle that starts at start and spans window.
	// The candle may still be forming; callers decide whether that matters.
	Candle(ctx context.Context, start time.Time, window time.Duration) (domain.Candle, error)
}

// Chain queries sources in order until one answers, caching results so
// concurrent lifecycle passes and preview requests share one upstream fetch.
type Chain struct {
	sources []Source
	cache   domain.CandleCache
	asset   string
	ttl     time.Duration
	logger  *slog.Logger
}

// NewChain builds a chain over the given sources. cache may be nil, in which
// case every call goes upstream.
func NewChain(sources []Source, cache domain.CandleCache, asset string, ttl time.Duration, logger *slog.Logger) *Chain {
	return &Chain{
		sources: sources,
		cache:   cache,
		asset:   asset,
		ttl:     ttl,
		logger:  logger.With("component", "oracle"),
	}
}

// Window returns the candle for the window starting at start. Closed candles
// never change, so they are cached with a long TTL; forming candles use the
// configured short TTL.
func (c *Chain) Window(ctx context.Context, start time.Time, window time.Duration) (domain.Candle, error) {
	start = start.UTC().Truncate(window)

	if c.cache != nil {
		if candle, err := c.cache.Get(ctx, c.asset, start); err == nil {
			return candle, nil
		}
	}

	var errs []error
	for _, src := range c.sources {
		candle, err := src.Candle(ctx, start, window)
		if err != nil {
			c.logger.Warn("candle fetch failed",
				"source", src.Name(),
				"start", start,
				"error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		if c.cache != nil {
			ttl := c.ttl
			if candle.Closed(time.Now().UTC()) {
				ttl = 24 * time.Hour
			}
			if err := c.cache.Set(ctx, c.asset, start, candle, ttl); err != nil {
				c.logger.Warn("candle cache write failed", "error", err)
			}
		}
		return candle, nil
	}
	return domain.Candle{}, fmt.Errorf("all candle sources failed: %w", errors.Join(errs...))
}

// parsePrice converts an exchange decimal string into 1e6 fixed point,
// truncating sub-micro precision.
func parsePrice(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative price %q", s)
	}
	scaled := d.Shift(6).Truncate(0)
	if !scaled.BigInt().IsUint64() {
		return 0, fmt.Errorf("price %q overflows fixed point", s)
	}
	return scaled.BigInt().Uint64(), nil
}
