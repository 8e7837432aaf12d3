package orderbook

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func lvl(price, size string) Level {
	return Level{Price: d(price), Size: d(size)}
}

func TestApplySnapshotSortsAndDropsZero(t *testing.T) {
	t.Parallel()
	b := NewBook("tok")
	b.ApplySnapshot(
		[]Level{lvl("0.54", "200"), lvl("0.55", "100"), lvl("0.53", "0")},
		[]Level{lvl("0.58", "50"), lvl("0.57", "75")},
		time.Now(),
	)

	if len(b.Bids) != 2 {
		t.Fatalf("expected 2 bids (zero-size dropped), got %d", len(b.Bids))
	}
	if !b.Bids[0].Price.Equal(d("0.55")) {
		t.Errorf("best bid = %s, want 0.55 (descending sort)", b.Bids[0].Price)
	}
	if !b.Asks[0].Price.Equal(d("0.57")) {
		t.Errorf("best ask = %s, want 0.57 (ascending sort)", b.Asks[0].Price)
	}
}

func TestBestBidAskAndMid(t *testing.T) {
	t.Parallel()
	b := NewBook("tok")

	if _, ok := b.Mid(); ok {
		t.Error("Mid() should be false for an empty book")
	}

	b.ApplySnapshot([]Level{lvl("0.49", "100")}, []Level{lvl("0.51", "100")}, time.Now())

	mid, ok := b.Mid()
	if !ok {
		t.Fatal("Mid() should be true once both sides present")
	}
	if !mid.Equal(d("0.50")) {
		t.Errorf("mid = %s, want 0.50", mid)
	}
}

func TestApplyDeltaInsertUpdateRemove(t *testing.T) {
	t.Parallel()
	b := NewBook("tok")
	b.ApplySnapshot([]Level{lvl("0.50", "100")}, []Level{lvl("0.52", "100")}, time.Now())

	// Insert a new, better bid.
	b.ApplyDelta(Buy, d("0.51"), d("40"), time.Now())
	bid, _ := b.BestBid()
	if !bid.Equal(d("0.51")) {
		t.Errorf("best bid after insert = %s, want 0.51", bid)
	}

	// Update existing level's size.
	b.ApplyDelta(Buy, d("0.51"), d("999"), time.Now())
	if !b.Bids[0].Size.Equal(d("999")) {
		t.Errorf("updated size = %s, want 999", b.Bids[0].Size)
	}

	// Remove via size=0.
	b.ApplyDelta(Buy, d("0.51"), decimal.Zero, time.Now())
	bid, ok := b.BestBid()
	if !ok || !bid.Equal(d("0.50")) {
		t.Errorf("best bid after removal = %s, want 0.50", bid)
	}

	// Idempotent: removing again is a no-op, not an error.
	before := len(b.Bids)
	b.ApplyDelta(Buy, d("0.51"), decimal.Zero, time.Now())
	if len(b.Bids) != before {
		t.Errorf("re-removal changed book length: %d -> %d", before, len(b.Bids))
	}
}

func TestWeightedMid(t *testing.T) {
	t.Parallel()
	b := NewBook("tok")
	b.ApplySnapshot(
		[]Level{lvl("0.50", "100"), lvl("0.49", "300")},
		[]Level{lvl("0.52", "100"), lvl("0.53", "300")},
		time.Now(),
	)

	wm, ok := b.WeightedMid(2)
	if !ok {
		t.Fatal("WeightedMid should be ok with both sides present")
	}
	// bid side: (0.50*100 + 0.49*300)/400 = 0.4925; ask side: (0.52*100+0.53*300)/400=0.5275
	// average = 0.51
	if !wm.Equal(d("0.51")) {
		t.Errorf("weighted mid = %s, want 0.51", wm)
	}
}

func TestRoundTickHalfAwayFromZero(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"0.505": "0.51",
		"0.504": "0.50",
		"0.495": "0.50",
	}
	for in, want := range cases {
		got := RoundTick(d(in))
		if !got.Equal(d(want)) {
			t.Errorf("RoundTick(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	t.Parallel()
	if !StatusLive.CanTransition(StatusPartial) {
		t.Error("LIVE -> PARTIAL should be legal")
	}
	if StatusMatched.CanTransition(StatusLive) {
		t.Error("MATCHED is terminal, should never transition")
	}
	if StatusCancelled.CanTransition(StatusLive) {
		t.Error("CANCELLED is terminal, should never transition")
	}
	if !StatusUnknown.CanTransition(StatusLive) {
		t.Error("UNKNOWN should be able to resolve back to LIVE")
	}
}

func TestOrderApplyFillSize(t *testing.T) {
	t.Parallel()
	o := Order{Size: d("10"), Status: StatusLive}

	o.ApplyFillSize(d("4"))
	if o.Status != StatusPartial {
		t.Errorf("status = %s, want PARTIAL", o.Status)
	}
	if !o.SizeMatched.Equal(d("4")) {
		t.Errorf("size_matched = %s, want 4", o.SizeMatched)
	}

	o.ApplyFillSize(d("6"))
	if o.Status != StatusMatched {
		t.Errorf("status = %s, want MATCHED", o.Status)
	}
	if !o.Remaining().IsZero() {
		t.Errorf("remaining = %s, want 0", o.Remaining())
	}

	// A terminal order does not move further.
	o.ApplyFillSize(d("1"))
	if !o.SizeMatched.Equal(d("10")) {
		t.Errorf("terminal order size_matched changed: %s", o.SizeMatched)
	}
}

func TestKeyNormalizesAcrossArithmeticPaths(t *testing.T) {
	t.Parallel()
	// Two decimals that are mathematically identical but reached via
	// different arithmetic should produce the same reconciliation key.
	a := d("0.50").Add(d("0.005"))
	b := d("0.505")
	if Key(a, d("10")) != Key(b, d("10")) {
		t.Errorf("Key(%s) != Key(%s), reconciler would misclassify identical quotes", a, b)
	}
}
