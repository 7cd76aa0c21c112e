package ledger

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestOpenCloseFullLifecycle(t *testing.T) {
	l := New()

	p, err := l.OpenPosition("slot1", "NIFTY", Short, d(50), d(200), t0, []string{"e1"})
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if p.PositionNum != 1 {
		t.Fatalf("PositionNum=%d, want 1", p.PositionNum)
	}
	if !l.HasOpenPosition("slot1") {
		t.Fatal("HasOpenPosition=false after open")
	}

	res, err := l.ClosePosition("slot1", d(50), d(180), t0.Add(time.Minute), "x1", []string{"x1"})
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if !res.FullyClosed {
		t.Fatal("expected full closure")
	}
	// short: (200-180)*50 = 1000
	if !res.RealizedPnL.Equal(d(1000)) {
		t.Fatalf("RealizedPnL=%s, want 1000", res.RealizedPnL)
	}
	if res.Position.Status != StatusClosed || res.Position.QtyRemaining().Sign() != 0 {
		t.Fatalf("position not closed: %+v", res.Position)
	}

	trades := l.Trades()
	if len(trades) != 1 {
		t.Fatalf("Trades()=%d, want 1", len(trades))
	}
	if !trades[0].PnL.Equal(d(1000)) {
		t.Fatalf("trade pnl=%s, want 1000", trades[0].PnL)
	}
}

func TestPartialThenFullExit(t *testing.T) {
	l := New()
	if _, err := l.OpenPosition("slot1", "NIFTY", Short, d(50), d(200), t0, nil); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	res, err := l.ClosePosition("slot1", d(25), d(190), t0.Add(time.Minute), "x1", nil)
	if err != nil {
		t.Fatalf("first close: %v", err)
	}
	if res.FullyClosed {
		t.Fatal("first close should be partial")
	}
	if p, _ := l.OpenPositionFor("slot1"); p.Status != StatusPartial || !p.QtyRemaining().Equal(d(25)) {
		t.Fatalf("after partial: status=%s remaining=%s", p.Status, p.QtyRemaining())
	}

	res, err = l.ClosePosition("slot1", d(25), d(185), t0.Add(2*time.Minute), "x2", nil)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !res.FullyClosed {
		t.Fatal("second close should fully close")
	}

	trades := l.Trades()
	if len(trades) != 1 {
		t.Fatalf("Trades()=%d, want 1", len(trades))
	}
	// (200-190)*25 + (200-185)*25 = 250 + 375
	if !trades[0].PnL.Equal(d(625)) {
		t.Fatalf("trade pnl=%s, want 625", trades[0].PnL)
	}
	if got := len(res.Position.PartialExits); got != 2 {
		t.Fatalf("partial exits=%d, want 2", got)
	}
}

func TestDuplicateOpenRejected(t *testing.T) {
	l := New()
	if _, err := l.OpenPosition("slot1", "NIFTY", Long, d(10), d(100), t0, nil); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	_, err := l.OpenPosition("slot1", "NIFTY", Long, d(10), d(101), t0.Add(time.Second), nil)
	if !errors.Is(err, ErrDuplicateOpenPosition) {
		t.Fatalf("err=%v, want ErrDuplicateOpenPosition", err)
	}
}

func TestCloseUnknownPosition(t *testing.T) {
	l := New()
	if _, err := l.ClosePosition("ghost", d(1), d(1), t0, "x", nil); !errors.Is(err, ErrUnknownPosition) {
		t.Fatalf("err=%v, want ErrUnknownPosition", err)
	}

	// Closed slots behave the same as never-opened ones.
	if _, err := l.OpenPosition("slot1", "NIFTY", Long, d(10), d(100), t0, nil); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if _, err := l.ClosePosition("slot1", d(10), d(110), t0, "x1", nil); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if _, err := l.ClosePosition("slot1", d(10), d(110), t0, "x2", nil); !errors.Is(err, ErrUnknownPosition) {
		t.Fatalf("err=%v, want ErrUnknownPosition after closure", err)
	}
}

func TestCloseClampsOverRequestedQty(t *testing.T) {
	l := New()
	if _, err := l.OpenPosition("slot1", "NIFTY", Short, d(30), d(100), t0, nil); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	res, err := l.ClosePosition("slot1", d(100), d(90), t0, "x1", nil)
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if !res.QtyClosed.Equal(d(30)) {
		t.Fatalf("QtyClosed=%s, want clamped 30", res.QtyClosed)
	}
	if !res.FullyClosed {
		t.Fatal("clamped close should fully close")
	}
}

func TestPositionNumSequencePerSlot(t *testing.T) {
	l := New()
	for i := 1; i <= 5; i++ {
		p, err := l.OpenPosition("slot1", "NIFTY", Long, d(1), d(100), t0, nil)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		if p.PositionNum != i {
			t.Fatalf("PositionNum=%d, want %d", p.PositionNum, i)
		}
		if got := l.LatestPositionNum("slot1"); got != i {
			t.Fatalf("LatestPositionNum=%d, want %d", got, i)
		}
		if _, err := l.ClosePosition("slot1", d(1), d(100), t0, "x", nil); err != nil {
			t.Fatalf("close #%d: %v", i, err)
		}
	}
	if got := l.LatestPositionNum("other"); got != 0 {
		t.Fatalf("LatestPositionNum(other)=%d, want 0", got)
	}
}

func TestUnrealizedPnL(t *testing.T) {
	l := New()
	if _, err := l.OpenPosition("s", "NIFTY", Short, d(40), d(150), t0, nil); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	tests := []struct {
		name string
		ltp  decimal.Decimal
		want decimal.Decimal
	}{
		{"price fell", d(140), d(400)},
		{"price rose", d(160), d(-400)},
		{"unchanged", d(150), d(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.UnrealizedPnL("s", tt.ltp); !got.Equal(tt.want) {
				t.Fatalf("UnrealizedPnL(%s)=%s, want %s", tt.ltp, got, tt.want)
			}
		})
	}

	if got := l.UnrealizedPnL("empty", d(100)); got.Sign() != 0 {
		t.Fatalf("UnrealizedPnL(empty)=%s, want 0", got)
	}
}

// Random operation sequences must preserve the quantity and single-occupancy
// invariants regardless of ordering.
func TestInvariantsUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := New()
	slots := []string{"a", "b", "c"}

	for i := 0; i < 2000; i++ {
		slot := slots[rng.Intn(len(slots))]
		if rng.Intn(2) == 0 {
			_, err := l.OpenPosition(slot, "SYM", Short, d(int64(1+rng.Intn(50))), d(int64(100+rng.Intn(50))), t0, nil)
			if err != nil && !errors.Is(err, ErrDuplicateOpenPosition) {
				t.Fatalf("op %d open: %v", i, err)
			}
		} else {
			_, err := l.ClosePosition(slot, d(int64(1+rng.Intn(80))), d(int64(100+rng.Intn(50))), t0, "x", nil)
			if err != nil && !errors.Is(err, ErrUnknownPosition) {
				t.Fatalf("op %d close: %v", i, err)
			}
		}
	}

	for _, slot := range slots {
		open := 0
		seen := 0
		for _, p := range l.Positions() {
			if p.PositionID != slot {
				continue
			}
			seen++
			if p.PositionNum != seen {
				t.Fatalf("slot %s: PositionNum=%d at index %d, want contiguous", slot, p.PositionNum, seen)
			}
			if p.IsOpen() {
				open++
			}
			closed := decimal.Zero
			for _, pe := range p.PartialExits {
				closed = closed.Add(pe.QtyClosed)
			}
			if !closed.Equal(p.QtyClosed) {
				t.Fatalf("slot %s num %d: sum(partial_exits)=%s, QtyClosed=%s", slot, p.PositionNum, closed, p.QtyClosed)
			}
			if p.QtyRemaining().Sign() < 0 {
				t.Fatalf("slot %s num %d: negative remaining %s", slot, p.PositionNum, p.QtyRemaining())
			}
			if (p.Status == StatusClosed) != (p.QtyRemaining().Sign() == 0) {
				t.Fatalf("slot %s num %d: status=%s remaining=%s", slot, p.PositionNum, p.Status, p.QtyRemaining())
			}
		}
		if open > 1 {
			t.Fatalf("slot %s: %d open occupants, want at most 1", slot, open)
		}
	}
}
