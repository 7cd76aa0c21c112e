package condition

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"strategy-core/internal/market"
)

func testContext(t *testing.T) Context {
	t.Helper()
	cache := market.NewCache(10)
	base := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)

	prev := market.Candle{
		Symbol: "NIFTY", Timeframe: "5m", OpenTime: base.Add(-5 * time.Minute),
		Open: decimal.NewFromInt(100), High: decimal.NewFromInt(105),
		Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(104),
		Volume: decimal.NewFromInt(1000),
	}
	cur := market.Candle{
		Symbol: "NIFTY", Timeframe: "5m", OpenTime: base,
		Open: decimal.NewFromInt(104), High: decimal.NewFromInt(110),
		Low: decimal.NewFromInt(103), Close: decimal.NewFromInt(108),
		Volume: decimal.NewFromInt(1500),
	}
	cache.Apply(market.Tick{Symbol: "NIFTY", Price: prev.Close, Timestamp: prev.OpenTime, Candle: &prev})
	tick := market.Tick{Symbol: "NIFTY", Price: cur.Close, Timestamp: base, Candle: &cur}
	cache.Apply(tick)

	return Context{Symbol: "NIFTY", Timeframe: "5m", Tick: tick, Market: cache}
}

func TestComparatorEvaluate(t *testing.T) {
	ctx := testContext(t)
	eval := NewComparator()

	tests := []struct {
		expr string
		want bool
	}{
		{"ltp > 100", true},
		{"ltp < 100", false},
		{"close >= 108", true},
		{"close > prev_close", true},
		{"low <= prev_low", false},
		{"volume != 1500", false},
		{"ltp == 108", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, tr, err := eval.Evaluate(tt.expr, ctx)
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Fatalf("Evaluate(%q)=%v, want %v", tt.expr, got, tt.want)
			}
			if tr.Result != got {
				t.Fatalf("trace result %v disagrees with returned %v", tr.Result, got)
			}
			if tr.Rendered == "" || !strings.Contains(tr.Rendered, tt.expr[:strings.Index(tt.expr, " ")]) {
				t.Fatalf("trace rendering %q does not mention lhs of %q", tr.Rendered, tt.expr)
			}
		})
	}
}

func TestIndicatorOperands(t *testing.T) {
	cache := market.NewCache(50)
	base := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)

	// Rising closes 100, 101, ..., 109.
	var tick market.Tick
	for i := 0; i < 10; i++ {
		close := decimal.NewFromInt(int64(100 + i))
		candle := market.Candle{
			Symbol: "NIFTY", Timeframe: "5m",
			OpenTime: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:     close, High: close, Low: close, Close: close,
			Volume: decimal.NewFromInt(100),
		}
		tick = market.Tick{Symbol: "NIFTY", Price: close, Timestamp: candle.OpenTime, Candle: &candle}
		cache.Apply(tick)
	}
	ctx := Context{Symbol: "NIFTY", Timeframe: "5m", Tick: tick, Market: cache}
	eval := NewComparator()

	tests := []struct {
		expr string
		want bool
	}{
		{"sma_4 == 107.5", true},
		{"ltp > sma_4", true},
		{"rsi_5 == 100", true},
		{"ema_3 > sma_10", true},
		{"ema_3 <= close", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, tr, err := eval.Evaluate(tt.expr, ctx)
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Fatalf("Evaluate(%q)=%v (%s), want %v", tt.expr, got, tr.Rendered, tt.want)
			}
		})
	}
}

func TestIndicatorOperandNeedsHistory(t *testing.T) {
	ctx := testContext(t)
	eval := NewComparator()
	if _, _, err := eval.Evaluate("sma_50 > 1", ctx); err == nil {
		t.Fatal("want history error for sma_50 on a 2-candle series")
	}
}

func TestComparatorRejectsMalformed(t *testing.T) {
	ctx := testContext(t)
	eval := NewComparator()

	for _, expr := range []string{"", "ltp >", "ltp ~ 5", "bogus > 1", "ltp > bogus"} {
		if _, _, err := eval.Evaluate(expr, ctx); err == nil {
			t.Fatalf("Evaluate(%q) expected error, got nil", expr)
		}
	}
}
