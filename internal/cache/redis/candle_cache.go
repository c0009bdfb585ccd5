package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/candlefi/candle-markets/internal/domain"
)

// CandleCache implements domain.CandleCache. Each candle is stored as JSON at
// "candle:{asset}:{startUnix}" with a TTL chosen by the caller: short for
// forming candles, long for closed ones.
type CandleCache struct {
	rdb *redis.Client
}

// NewCandleCache creates a CandleCache backed by the given Client.
func NewCandleCache(c *Client) *CandleCache {
	return &CandleCache{rdb: c.Underlying()}
}

var _ domain.CandleCache = (*CandleCache)(nil)

func candleKey(asset string, start time.Time) string {
	return fmt.Sprintf("candle:%s:%d", asset, start.UTC().Unix())
}

// candleEntry is the stored form; times travel as unix seconds so the entry
// is stable across clients regardless of zone.
type candleEntry struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Open  uint64 `json:"open"`
	High  uint64 `json:"high"`
	Low   uint64 `json:"low"`
	Close uint64 `json:"close"`
}

// Set stores a candle with the given TTL.
func (cc *CandleCache) Set(ctx context.Context, asset string, start time.Time, c domain.Candle, ttl time.Duration) error {
	entry := candleEntry{
		Start: c.Start.UTC().Unix(),
		End:   c.End.UTC().Unix(),
		Open:  c.Open,
		High:  c.High,
		Low:   c.Low,
		Close: c.Close,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis: marshal candle: %w", err)
	}
	if err := cc.rdb.Set(ctx, candleKey(asset, start), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set candle %s: %w", asset, err)
	}
	return nil
}

// Get retrieves a cached candle. It returns domain.ErrNotFound on a miss.
func (cc *CandleCache) Get(ctx context.Context, asset string, start time.Time) (domain.Candle, error) {
	data, err := cc.rdb.Get(ctx, candleKey(asset, start)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Candle{}, domain.ErrNotFound
		}
		return domain.Candle{}, fmt.Errorf("redis: get candle %s: %w", asset, err)
	}

	var entry candleEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return domain.Candle{}, fmt.Errorf("redis: unmarshal candle %s: %w", asset, err)
	}
	return domain.Candle{
		Start: time.Unix(entry.Start, 0).UTC(),
		End:   time.Unix(entry.End, 0).UTC(),
		Open:  entry.Open,
		High:  entry.High,
		Low:   entry.Low,
		Close: entry.Close,
	}, nil
}
