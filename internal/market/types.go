package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one timestamped unit of market data. In backtests a tick is
// derived from a candle close; in live mode it is a trade/quote update.
type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	// Candle carries the bar this tick was derived from, when available.
	Candle *Candle `json:"candle,omitempty"`
}

// Candle represents a single OHLCV bar.
type Candle struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	OpenTime  time.Time       `json:"open_time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}
