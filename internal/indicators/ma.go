package indicators

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SMA calculates the simple moving average of the last period values.
func SMA(values []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Decimal{}, fmt.Errorf("sma: period must be positive, got %d", period)
	}
	if len(values) < period {
		return decimal.Decimal{}, fmt.Errorf("sma(%d): need %d values, have %d", period, period, len(values))
	}
	sum := decimal.Zero
	for _, v := range values[len(values)-period:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), nil
}

// EMA calculates the exponential moving average, seeded with the SMA of the
// first period values and folded over the rest of the series.
func EMA(values []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Decimal{}, fmt.Errorf("ema: period must be positive, got %d", period)
	}
	if len(values) < period {
		return decimal.Decimal{}, fmt.Errorf("ema(%d): need %d values, have %d", period, period, len(values))
	}

	seed, err := SMA(values[:period], period)
	if err != nil {
		return decimal.Decimal{}, err
	}
	k := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))
	ema := seed
	for _, v := range values[period:] {
		ema = v.Sub(ema).Mul(k).Add(ema)
	}
	return ema, nil
}
