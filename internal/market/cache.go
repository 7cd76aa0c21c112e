package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DataCache is the read surface strategies see during a tick. Implementations
// must be safe for reads from multiple strategy contexts; writes happen only
// between ticks.
type DataCache interface {
	LTP(symbol string) (decimal.Decimal, time.Time, error)
	Candles(symbol, timeframe string, count int) ([]Candle, error)
}

// Cache is an in-memory DataCache fed by the tick stream. It keeps the last
// traded price per symbol and a bounded candle history per symbol/timeframe.
type Cache struct {
	ltp     map[string]Tick
	candles map[string][]Candle // keyed by symbol|timeframe
	depth   int
}

// NewCache creates a cache retaining up to depth candles per series.
func NewCache(depth int) *Cache {
	if depth <= 0 {
		depth = 500
	}
	return &Cache{
		ltp:     make(map[string]Tick),
		candles: make(map[string][]Candle),
		depth:   depth,
	}
}

// Apply ingests one tick. Called by the scheduler before node graphs run.
func (c *Cache) Apply(t Tick) {
	c.ltp[t.Symbol] = t
	if t.Candle != nil {
		key := seriesKey(t.Symbol, t.Candle.Timeframe)
		series := append(c.candles[key], *t.Candle)
		if len(series) > c.depth {
			series = series[len(series)-c.depth:]
		}
		c.candles[key] = series
	}
}

// LTP returns the last traded price and its timestamp for symbol.
func (c *Cache) LTP(symbol string) (decimal.Decimal, time.Time, error) {
	t, ok := c.ltp[symbol]
	if !ok {
		return decimal.Decimal{}, time.Time{}, fmt.Errorf("no price seen for symbol %q", symbol)
	}
	return t.Price, t.Timestamp, nil
}

// Candles returns up to count most recent candles for symbol/timeframe,
// oldest first.
func (c *Cache) Candles(symbol, timeframe string, count int) ([]Candle, error) {
	series, ok := c.candles[seriesKey(symbol, timeframe)]
	if !ok || len(series) == 0 {
		return nil, fmt.Errorf("no candles for %s %s", symbol, timeframe)
	}
	if count <= 0 || count > len(series) {
		count = len(series)
	}
	out := make([]Candle, count)
	copy(out, series[len(series)-count:])
	return out, nil
}

func seriesKey(symbol, timeframe string) string {
	return symbol + "|" + timeframe
}
