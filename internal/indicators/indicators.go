// Package indicators computes a few core technical indicators over candle
// close series. Price windows live in the market cache; these functions are
// pure and return an error when the series is too short.
package indicators

import (
	"github.com/shopspring/decimal"

	"strategy-core/internal/market"
)

// Closes extracts the close series from candles, oldest first.
func Closes(candles []market.Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
