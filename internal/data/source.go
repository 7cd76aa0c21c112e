// Package data loads tick streams for replay, either from a ClickHouse
// timeseries store or from CSV files on disk.
package data

import (
	"context"
	"fmt"

	"strategy-core/internal/market"
)

// Source yields the complete tick series for one replay session, already in
// ascending timestamp order.
type Source interface {
	Ticks(ctx context.Context) ([]market.Tick, error)
}

// validateOrder rejects a series whose timestamps go backwards. Loaders call
// it before handing ticks to the scheduler so a bad export fails at load time
// rather than mid-run.
func validateOrder(ticks []market.Tick) error {
	for i := 1; i < len(ticks); i++ {
		if ticks[i].Timestamp.Before(ticks[i-1].Timestamp) {
			return fmt.Errorf("tick %d at %s is earlier than tick %d at %s",
				i, ticks[i].Timestamp, i-1, ticks[i-1].Timestamp)
		}
	}
	return nil
}
