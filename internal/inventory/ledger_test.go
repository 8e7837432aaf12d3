package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/orderbook"
)

const testAsset = "asset-1"

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func fill(side orderbook.Side, price, size string) orderbook.Trade {
	return orderbook.Trade{
		AssetID:   testAsset,
		Side:      side,
		Price:     d(price),
		Size:      d(size),
		Timestamp: time.Now(),
	}
}

func TestApplyFillBuyOpensLong(t *testing.T) {
	t.Parallel()
	l := NewLedger()

	l.ApplyFill(fill(orderbook.Buy, "0.50", "10"))

	pos, ok := l.Position(testAsset)
	if !ok {
		t.Fatal("expected position after first fill")
	}
	if pos.Quantity != 10 {
		t.Errorf("Quantity = %d, want 10", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(d("0.50")) {
		t.Errorf("AvgEntryPrice = %s, want 0.50", pos.AvgEntryPrice)
	}
}

func TestApplyFillBuyMultipleWeightsAverage(t *testing.T) {
	t.Parallel()
	l := NewLedger()

	l.ApplyFill(fill(orderbook.Buy, "0.50", "10"))
	l.ApplyFill(fill(orderbook.Buy, "0.60", "10"))

	pos, _ := l.Position(testAsset)
	if pos.Quantity != 20 {
		t.Errorf("Quantity = %d, want 20", pos.Quantity)
	}
	// avg = (0.50*10 + 0.60*10) / 20 = 0.55
	if !pos.AvgEntryPrice.Equal(d("0.55")) {
		t.Errorf("AvgEntryPrice = %s, want 0.55", pos.AvgEntryPrice)
	}
}

func TestApplyFillPartialCloseRealizesPnL(t *testing.T) {
	t.Parallel()
	l := NewLedger()

	l.ApplyFill(fill(orderbook.Buy, "0.50", "10"))
	l.ApplyFill(fill(orderbook.Sell, "0.60", "5"))

	pos, _ := l.Position(testAsset)
	if pos.Quantity != 5 {
		t.Errorf("Quantity = %d, want 5", pos.Quantity)
	}
	// realized = (0.60 - 0.50) * 5 = 0.50
	if !pos.RealizedPnL.Equal(d("0.50")) {
		t.Errorf("RealizedPnL = %s, want 0.50", pos.RealizedPnL)
	}
	// entry price for the remaining quantity is unchanged
	if !pos.AvgEntryPrice.Equal(d("0.50")) {
		t.Errorf("AvgEntryPrice = %s, want 0.50", pos.AvgEntryPrice)
	}
}

func TestApplyFillFullCloseZeroesEntry(t *testing.T) {
	t.Parallel()
	l := NewLedger()

	l.ApplyFill(fill(orderbook.Buy, "0.40", "10"))
	l.ApplyFill(fill(orderbook.Sell, "0.50", "10"))

	pos, _ := l.Position(testAsset)
	if pos.Quantity != 0 {
		t.Errorf("Quantity = %d, want 0", pos.Quantity)
	}
	if !pos.AvgEntryPrice.IsZero() {
		t.Errorf("AvgEntryPrice = %s, want 0 after full close", pos.AvgEntryPrice)
	}
	if !pos.RealizedPnL.Equal(d("1.0")) {
		t.Errorf("RealizedPnL = %s, want 1.0", pos.RealizedPnL)
	}
}

// TestApplyFillResidualFlipsPosition is the case the teacher's dual-leg
// Inventory does not handle: an oversized closing fill should open a new
// position in the opposite direction at the trade price for the residual,
// not merely clip the quantity to zero.
func TestApplyFillResidualFlipsPosition(t *testing.T) {
	t.Parallel()
	l := NewLedger()

	l.ApplyFill(fill(orderbook.Buy, "0.40", "10"))
	l.ApplyFill(fill(orderbook.Sell, "0.50", "15"))

	pos, _ := l.Position(testAsset)
	if pos.Quantity != -5 {
		t.Fatalf("Quantity = %d, want -5 (flipped short)", pos.Quantity)
	}
	// realized on the closed 10: (0.50-0.40)*10 = 1.0
	if !pos.RealizedPnL.Equal(d("1.0")) {
		t.Errorf("RealizedPnL = %s, want 1.0", pos.RealizedPnL)
	}
	// new short leg opened at the trade price
	if !pos.AvgEntryPrice.Equal(d("0.50")) {
		t.Errorf("AvgEntryPrice = %s, want 0.50 (new short entry)", pos.AvgEntryPrice)
	}
}

func TestApplyFillOpensShortFromFlat(t *testing.T) {
	t.Parallel()
	l := NewLedger()

	l.ApplyFill(fill(orderbook.Sell, "0.45", "8"))

	pos, _ := l.Position(testAsset)
	if pos.Quantity != -8 {
		t.Errorf("Quantity = %d, want -8", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(d("0.45")) {
		t.Errorf("AvgEntryPrice = %s, want 0.45", pos.AvgEntryPrice)
	}
}

func TestApplyFillClosingShortRealizesPnL(t *testing.T) {
	t.Parallel()
	l := NewLedger()

	l.ApplyFill(fill(orderbook.Sell, "0.50", "10"))
	l.ApplyFill(fill(orderbook.Buy, "0.40", "10"))

	pos, _ := l.Position(testAsset)
	if pos.Quantity != 0 {
		t.Errorf("Quantity = %d, want 0", pos.Quantity)
	}
	// realized on a short close = (entry - exit) * size = (0.50-0.40)*10 = 1.0
	if !pos.RealizedPnL.Equal(d("1.0")) {
		t.Errorf("RealizedPnL = %s, want 1.0", pos.RealizedPnL)
	}
}

func TestUpdateUnrealized(t *testing.T) {
	t.Parallel()
	l := NewLedger()

	l.ApplyFill(fill(orderbook.Buy, "0.50", "10"))
	l.UpdateUnrealized(testAsset, d("0.60"))

	pos, _ := l.Position(testAsset)
	// unrealized = (0.60-0.50)*10 = 1.0
	if !pos.UnrealizedPnL.Equal(d("1.0")) {
		t.Errorf("UnrealizedPnL = %s, want 1.0", pos.UnrealizedPnL)
	}
}

func TestGrossAndNetExposure(t *testing.T) {
	t.Parallel()
	l := NewLedger()

	l.ApplyFill(orderbook.Trade{AssetID: "yes", Side: orderbook.Buy, Price: d("0.50"), Size: d("10"), Timestamp: time.Now()})
	l.ApplyFill(orderbook.Trade{AssetID: "no", Side: orderbook.Sell, Price: d("0.50"), Size: d("5"), Timestamp: time.Now()})

	// gross = 10*0.50 + 5*0.50 = 7.5
	if got := l.GrossExposure(); !got.Equal(d("7.5")) {
		t.Errorf("GrossExposure = %s, want 7.5", got)
	}
	// net = 10*0.50 + (-5)*0.50 = 2.5
	if got := l.NetExposure(); !got.Equal(d("2.5")) {
		t.Errorf("NetExposure = %s, want 2.5", got)
	}
}

func TestTotalPnL(t *testing.T) {
	t.Parallel()
	l := NewLedger()

	l.ApplyFill(fill(orderbook.Buy, "0.40", "10"))
	l.ApplyFill(fill(orderbook.Sell, "0.50", "5"))
	l.UpdateUnrealized(testAsset, d("0.55"))

	// realized = (0.50-0.40)*5 = 0.5; unrealized = (0.55-0.40)*5 = 0.75
	if got := l.TotalPnL(); !got.Equal(d("1.25")) {
		t.Errorf("TotalPnL = %s, want 1.25", got)
	}
}

func TestSetPositionRestoresFromPersistence(t *testing.T) {
	t.Parallel()
	l := NewLedger()

	l.SetPosition(orderbook.Position{AssetID: testAsset, Quantity: 42, AvgEntryPrice: d("0.55")})

	pos, ok := l.Position(testAsset)
	if !ok || pos.Quantity != 42 {
		t.Errorf("Position = %+v ok=%v, want Quantity=42", pos, ok)
	}
}

func TestNumPositionsExcludesFlat(t *testing.T) {
	t.Parallel()
	l := NewLedger()

	l.ApplyFill(fill(orderbook.Buy, "0.40", "10"))
	l.ApplyFill(fill(orderbook.Sell, "0.40", "10")) // closes back to flat

	if n := l.NumPositions(); n != 0 {
		t.Errorf("NumPositions = %d, want 0 after full close", n)
	}
}
