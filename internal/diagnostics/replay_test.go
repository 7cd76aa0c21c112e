package diagnostics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"strategy-core/internal/ledger"
	"strategy-core/internal/order"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// Drives a ledger through entry, partial exit, full exit and a re-entry while
// recording the same payloads the action nodes would, then checks replay
// reproduces the final position set.
func TestReplayRoundTrip(t *testing.T) {
	live := ledger.New()
	rec := NewRecorder()
	ts := t0

	record := func(payload Payload) {
		t.Helper()
		if _, err := rec.RecordEvent("node", "", ts, EventLogicCompleted, payload); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	open := func(slot string, qty, price int64) {
		t.Helper()
		p, err := live.OpenPosition(slot, "NIFTY", ledger.Short, d(qty), d(price), ts, nil)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		snap := p.Clone()
		record(Payload{
			Position: &snap,
			Order:    &order.Order{Symbol: "NIFTY", Side: order.Sell, Qty: d(qty), Price: d(price), PlacedAt: ts},
		})
	}
	closePos := func(slot string, qty, price int64) {
		t.Helper()
		res, err := live.ClosePosition(slot, d(qty), d(price), ts, "exec", nil)
		if err != nil {
			t.Fatalf("close: %v", err)
		}
		record(Payload{ExitResult: &res})
	}

	open("slot1", 50, 200)
	ts = ts.Add(time.Minute)
	closePos("slot1", 25, 190)
	ts = ts.Add(time.Minute)
	closePos("slot1", 25, 185)
	ts = ts.Add(time.Minute)
	open("slot1", 40, 195) // re-entry, num=2
	ts = ts.Add(time.Minute)
	open("slot2", 10, 300)
	ts = ts.Add(time.Minute)
	closePos("slot2", 10, 310)

	replayed, err := ReplayPositions(rec.Events())
	if err != nil {
		t.Fatalf("ReplayPositions: %v", err)
	}

	want := live.Positions()
	got := replayed.Positions()
	if len(got) != len(want) {
		t.Fatalf("replayed %d positions, want %d", len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if g.PositionID != w.PositionID || g.PositionNum != w.PositionNum ||
			g.Status != w.Status || !g.QtyEntered.Equal(w.QtyEntered) ||
			!g.QtyClosed.Equal(w.QtyClosed) || !g.EntryPrice.Equal(w.EntryPrice) {
			t.Fatalf("position %d: replayed %+v, want %+v", i, g, w)
		}
		if len(g.PartialExits) != len(w.PartialExits) {
			t.Fatalf("position %d: %d exits, want %d", i, len(g.PartialExits), len(w.PartialExits))
		}
	}

	if !replayed.RealizedPnL().Equal(live.RealizedPnL()) {
		t.Fatalf("replayed pnl=%s, live pnl=%s", replayed.RealizedPnL(), live.RealizedPnL())
	}
}
