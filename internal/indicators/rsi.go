package indicators

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RSI computes a basic Relative Strength Index over the last period changes,
// smoothing disabled.
func RSI(values []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Decimal{}, fmt.Errorf("rsi: period must be positive, got %d", period)
	}
	if len(values) < period+1 {
		return decimal.Decimal{}, fmt.Errorf("rsi(%d): need %d values, have %d", period, period+1, len(values))
	}

	gain := decimal.Zero
	loss := decimal.Zero
	for i := len(values) - period; i < len(values); i++ {
		change := values[i].Sub(values[i-1])
		if change.Sign() > 0 {
			gain = gain.Add(change)
		} else {
			loss = loss.Sub(change)
		}
	}

	if loss.IsZero() {
		return hundred, nil
	}
	rs := gain.Div(loss)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs))), nil
}
