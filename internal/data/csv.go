package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"strategy-core/internal/market"
)

// CSVSource reads a tick series from a CSV export. The file needs a header
// row with at least "timestamp" and "price"; "symbol" and the candle columns
// "open", "high", "low", "close", "volume" are picked up when present.
type CSVSource struct {
	Path string
	// Symbol overrides the per-row symbol column; required when the file has
	// no symbol column.
	Symbol string
	// Timeframe stamps the bar series attached to ticks. A per-row
	// "timeframe" column takes precedence; one of the two is required when
	// candle columns are present, because the market cache keys series by
	// symbol and timeframe.
	Timeframe string
}

var _ Source = (*CSVSource)(nil)

func (s *CSVSource) Ticks(ctx context.Context) ([]market.Tick, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open tick csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"timestamp", "price"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("tick csv %s: missing %q column", s.Path, required)
		}
	}
	if _, ok := cols["symbol"]; !ok && s.Symbol == "" {
		return nil, fmt.Errorf("tick csv %s: no symbol column and no symbol override", s.Path)
	}
	if _, hasCandles := cols["close"]; hasCandles {
		if _, ok := cols["timeframe"]; !ok && s.Timeframe == "" {
			return nil, fmt.Errorf("tick csv %s: candle columns present but no timeframe column and no timeframe override", s.Path)
		}
	}

	var ticks []market.Tick
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tick csv %s line %d: %w", s.Path, line, err)
		}

		tick, err := s.parseRow(cols, rec)
		if err != nil {
			return nil, fmt.Errorf("tick csv %s line %d: %w", s.Path, line, err)
		}
		ticks = append(ticks, tick)
	}

	if len(ticks) == 0 {
		return nil, fmt.Errorf("tick csv %s: no data rows", s.Path)
	}
	if err := validateOrder(ticks); err != nil {
		return nil, fmt.Errorf("tick csv %s: %w", s.Path, err)
	}
	return ticks, nil
}

func (s *CSVSource) parseRow(cols map[string]int, rec []string) (market.Tick, error) {
	field := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}

	raw, _ := field("timestamp")
	ts, err := parseTimestamp(raw)
	if err != nil {
		return market.Tick{}, err
	}

	rawPrice, _ := field("price")
	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return market.Tick{}, fmt.Errorf("bad price %q: %w", rawPrice, err)
	}

	symbol := s.Symbol
	if v, ok := field("symbol"); ok && v != "" {
		symbol = v
	}

	tick := market.Tick{Symbol: symbol, Price: price, Timestamp: ts}

	if _, ok := cols["close"]; ok {
		timeframe := s.Timeframe
		if v, ok := field("timeframe"); ok && v != "" {
			timeframe = v
		}
		if timeframe == "" {
			return market.Tick{}, fmt.Errorf("candle row has empty timeframe")
		}
		candle := market.Candle{Symbol: symbol, Timeframe: timeframe, OpenTime: ts}
		for name, dst := range map[string]*decimal.Decimal{
			"open":   &candle.Open,
			"high":   &candle.High,
			"low":    &candle.Low,
			"close":  &candle.Close,
			"volume": &candle.Volume,
		} {
			v, ok := field(name)
			if !ok || v == "" {
				continue
			}
			d, err := decimal.NewFromString(v)
			if err != nil {
				return market.Tick{}, fmt.Errorf("bad %s %q: %w", name, v, err)
			}
			*dst = d
		}
		tick.Candle = &candle
	}

	return tick, nil
}

// parseTimestamp accepts RFC3339 or epoch seconds/milliseconds.
func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", raw)
	}
	// Epoch values past the year 33658 in seconds are milliseconds.
	if n > 1e12 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}
