package graph

import (
	"fmt"

	"strategy-core/internal/diagnostics"
)

// ReEntryConfig configures a re-entry signal node. EntryNodeID is the entry
// node this signal re-arms; MaxEntries caps how many occupants the slot may
// ever have (0 = unlimited).
type ReEntryConfig struct {
	ID          string
	Children    []string
	PositionID  string
	EntryNodeID string
	MaxEntries  int
	Conditions  []string
}

// ReEntrySignalNode decides whether to re-open a slot after a prior close.
//
// Explicit (user-configured) conditions are always evaluated first; only
// when they pass do the implicit structural checks run, in a fixed order:
// entry limit (terminal), open position (transient), entry node busy
// (transient). Only the entry limit retires the node; the transient checks
// must keep it active, or a legitimately delayed fill would permanently lose
// its re-entry.
type ReEntrySignalNode struct {
	Cfg ReEntryConfig
}

func (n *ReEntrySignalNode) ID() string         { return n.Cfg.ID }
func (n *ReEntrySignalNode) Kind() Kind         { return KindReEntrySignal }
func (n *ReEntrySignalNode) Children() []string { return n.Cfg.Children }

func (n *ReEntrySignalNode) Execute(ctx *Context) (Result, error) {
	if len(n.Cfg.Conditions) == 0 {
		return Result{}, fmt.Errorf("re-entry signal %q: no conditions configured", n.Cfg.ID)
	}

	passed, traces, err := evaluateAll(ctx, n.Cfg.Conditions)
	if err != nil {
		return Result{}, err
	}
	if !passed {
		// Explicit conditions failed: retry next tick, no state change.
		return Result{}, nil
	}

	// Implicit checks, short-circuiting on the first failure.
	if n.Cfg.MaxEntries > 0 && ctx.Ledger.LatestPositionNum(n.Cfg.PositionID) >= n.Cfg.MaxEntries {
		// Entry limit reached: the only permanent outcome.
		return Result{
			LogicCompleted:   true,
			SuppressChildren: true,
			Terminal:         true,
			Payload: diagnostics.Payload{
				Conditions: traces,
				Note: fmt.Sprintf("entry limit reached for %s (%d/%d), retiring re-entry",
					n.Cfg.PositionID, ctx.Ledger.LatestPositionNum(n.Cfg.PositionID), n.Cfg.MaxEntries),
			},
		}, nil
	}
	if ctx.Ledger.HasOpenPosition(n.Cfg.PositionID) {
		// Slot still occupied: wait, do not retire.
		return Result{}, nil
	}
	if n.Cfg.EntryNodeID != "" && ctx.Graph().IsActive(n.Cfg.EntryNodeID) {
		// Entry node mid-processing: wait for it to settle.
		return Result{}, nil
	}

	return Result{
		LogicCompleted: true,
		Payload: diagnostics.Payload{
			Conditions: traces,
			Note:       "re-entry armed for " + n.Cfg.PositionID,
		},
	}, nil
}
