package diagnostics

import (
	"fmt"

	"strategy-core/internal/ledger"
)

// ReplayPositions rebuilds a fresh ledger from the event history alone.
// Replaying the full history in order must reproduce the live ledger's final
// position set exactly; the scheduler uses this as a consistency check after
// a run.
func ReplayPositions(events []ExecutionEvent) (*ledger.Ledger, error) {
	l := ledger.New()
	for _, ev := range events {
		if ev.Type != EventLogicCompleted {
			continue
		}
		// Entry events carry the opened position snapshot plus the order.
		if ev.Payload.Position != nil && ev.Payload.Order != nil {
			p := ev.Payload.Position
			if _, err := l.OpenPosition(p.PositionID, p.Symbol, p.Side, p.QtyEntered, p.EntryPrice, p.EntryTime, p.EntryFlowIDs); err != nil {
				return nil, fmt.Errorf("replay %s: %w", ev.ExecutionID, err)
			}
			continue
		}
		if ev.Payload.ExitResult != nil {
			if err := replayClosure(l, ev.ExecutionID, *ev.Payload.ExitResult); err != nil {
				return nil, err
			}
			continue
		}
		if ev.Payload.SquareOff != nil {
			for _, res := range ev.Payload.SquareOff.Exits {
				if err := replayClosure(l, ev.ExecutionID, res); err != nil {
					return nil, err
				}
			}
		}
	}
	return l, nil
}

func replayClosure(l *ledger.Ledger, executionID string, res ledger.ClosureResult) error {
	exits := res.Position.PartialExits
	if len(exits) == 0 {
		return fmt.Errorf("replay %s: exit result carries no fills", executionID)
	}
	last := exits[len(exits)-1]
	if _, err := l.ClosePosition(res.Position.PositionID, last.QtyClosed, last.ExitPrice, last.ExitTime, last.ExecutionID, last.ExitFlowIDs); err != nil {
		return fmt.Errorf("replay %s: %w", executionID, err)
	}
	return nil
}
