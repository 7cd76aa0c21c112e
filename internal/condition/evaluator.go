// Package condition evaluates strategy rule expressions against market data
// and reports a structured trace of every evaluation so the diagnostics log
// can explain why a signal fired (or did not).
package condition

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"strategy-core/internal/indicators"
	"strategy-core/internal/market"
)

// Context carries the market view an expression is evaluated against.
type Context struct {
	Symbol    string
	Timeframe string
	Tick      market.Tick
	Market    market.DataCache
}

// Operand describes one side of a comparison after resolution.
type Operand struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

// Trace records how a single expression evaluated.
type Trace struct {
	Expression string    `json:"expression"`
	Left       Operand   `json:"left"`
	Operator   string    `json:"operator"`
	Right      Operand   `json:"right"`
	Result     bool      `json:"result"`
	Rendered   string    `json:"rendered"`
	At         time.Time `json:"at"`
}

// Evaluator is the contract the node graph consumes. Implementations must
// return an error (never panic) for expressions they cannot evaluate.
type Evaluator interface {
	Evaluate(expr string, ctx Context) (bool, Trace, error)
}

// Comparator evaluates expressions of the form "<operand> <op> <operand>"
// where an operand is a numeric literal, a market reference (ltp, open, high,
// low, close, volume, prev_open, prev_high, prev_low, prev_close) or an
// indicator reference like sma_20, ema_9, rsi_14.
type Comparator struct{}

// NewComparator returns the default expression evaluator.
func NewComparator() *Comparator { return &Comparator{} }

var _ Evaluator = (*Comparator)(nil)

// Evaluate resolves both operands and applies the operator.
func (c *Comparator) Evaluate(expr string, ctx Context) (bool, Trace, error) {
	fields := strings.Fields(expr)
	if len(fields) != 3 {
		return false, Trace{}, fmt.Errorf("condition %q: want \"<lhs> <op> <rhs>\", got %d tokens", expr, len(fields))
	}

	left, err := resolve(fields[0], ctx)
	if err != nil {
		return false, Trace{}, fmt.Errorf("condition %q: %w", expr, err)
	}
	right, err := resolve(fields[2], ctx)
	if err != nil {
		return false, Trace{}, fmt.Errorf("condition %q: %w", expr, err)
	}

	op := fields[1]
	result, err := compare(left.Value, op, right.Value)
	if err != nil {
		return false, Trace{}, fmt.Errorf("condition %q: %w", expr, err)
	}

	tr := Trace{
		Expression: expr,
		Left:       left,
		Operator:   op,
		Right:      right,
		Result:     result,
		At:         ctx.Tick.Timestamp,
	}
	tr.Rendered = fmt.Sprintf("%s(%s) %s %s(%s) => %v",
		left.Name, left.Value, op, right.Name, right.Value, result)
	return result, tr, nil
}

func resolve(token string, ctx Context) (Operand, error) {
	if v, err := decimal.NewFromString(token); err == nil {
		return Operand{Name: "literal", Value: v}, nil
	}

	ref := strings.ToLower(token)
	switch ref {
	case "ltp":
		price, _, err := ctx.Market.LTP(ctx.Symbol)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Name: "ltp", Value: price}, nil
	case "open", "high", "low", "close", "volume":
		c, err := lastCandle(ctx, 1)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Name: ref, Value: candleField(c, ref)}, nil
	case "prev_open", "prev_high", "prev_low", "prev_close":
		c, err := lastCandle(ctx, 2)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Name: ref, Value: candleField(c, strings.TrimPrefix(ref, "prev_"))}, nil
	}

	if name, period, ok := parseIndicator(ref); ok {
		v, err := resolveIndicator(ctx, name, period)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Name: ref, Value: v}, nil
	}

	return Operand{}, fmt.Errorf("unknown operand %q", token)
}

// parseIndicator splits references like "sma_20" into name and period.
func parseIndicator(ref string) (string, int, bool) {
	name, rest, found := strings.Cut(ref, "_")
	if !found {
		return "", 0, false
	}
	switch name {
	case "sma", "ema", "rsi":
	default:
		return "", 0, false
	}
	period, err := strconv.Atoi(rest)
	if err != nil || period <= 0 {
		return "", 0, false
	}
	return name, period, true
}

func resolveIndicator(ctx Context, name string, period int) (decimal.Decimal, error) {
	// EMA folds over extra history when available; RSI needs one extra value
	// for its first change.
	want := period
	switch name {
	case "ema":
		want = 3 * period
	case "rsi":
		want = period + 1
	}
	candles, err := ctx.Market.Candles(ctx.Symbol, ctx.Timeframe, want)
	if err != nil {
		return decimal.Decimal{}, err
	}
	closes := indicators.Closes(candles)

	switch name {
	case "sma":
		return indicators.SMA(closes, period)
	case "ema":
		return indicators.EMA(closes, period)
	default:
		return indicators.RSI(closes, period)
	}
}

// lastCandle returns the n-th most recent candle (1 = current).
func lastCandle(ctx Context, n int) (market.Candle, error) {
	candles, err := ctx.Market.Candles(ctx.Symbol, ctx.Timeframe, n)
	if err != nil {
		return market.Candle{}, err
	}
	if len(candles) < n {
		return market.Candle{}, fmt.Errorf("need %d candles for %s %s, have %d", n, ctx.Symbol, ctx.Timeframe, len(candles))
	}
	return candles[0], nil
}

func candleField(c market.Candle, field string) decimal.Decimal {
	switch field {
	case "open":
		return c.Open
	case "high":
		return c.High
	case "low":
		return c.Low
	case "close":
		return c.Close
	default:
		return c.Volume
	}
}

func compare(l decimal.Decimal, op string, r decimal.Decimal) (bool, error) {
	cmp := l.Cmp(r)
	switch op {
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case "==":
		return cmp == 0, nil
	case "!=":
		return cmp != 0, nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}
