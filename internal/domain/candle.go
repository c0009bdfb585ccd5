package domain

import "time"

// Candle is one OHLC window from the price oracle. Prices are PriceScale
// fixed-point integers: oracle clients parse exchange decimal strings
// directly into this representation so no float ever feeds settlement.
type Candle struct {
	Start time.Time
	End   time.Time
	Open  uint64
	High  uint64
	Low   uint64
	Close uint64
}

// Closed reports whether the candle's window has fully elapsed at now.
// Settlement must only consume closed candles; an in-flight candle's close
// is still moving.
func (c Candle) Closed(now time.Time) bool {
	return !now.Before(c.End)
}
