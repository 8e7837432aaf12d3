package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/inventory"
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

func testConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionPerMarket:  100,
		MaxTotalExposure:      d("1000"),
		MaxGlobalExposure:     d("5000"),
		MaxInventoryImbalance: 100,
		MaxDailyLoss:          d("50"),
	}
}

func TestCheckOrderAllowedWithinLimits(t *testing.T) {
	t.Parallel()
	g := NewGate(testConfig())
	ledger := inventory.NewLedger()

	ok, reason := g.CheckOrderAllowed(ledger, testAsset, orderbook.Buy, d("10"), d("0.50"))
	if !ok {
		t.Errorf("expected order allowed, got rejected: %s", reason)
	}
}

func TestCheckOrderAllowedRejectsOverPositionLimit(t *testing.T) {
	t.Parallel()
	g := NewGate(testConfig())
	ledger := inventory.NewLedger()
	ledger.ApplyFill(orderbook.Trade{AssetID: testAsset, Side: orderbook.Buy, Price: d("0.50"), Size: d("95"), Timestamp: time.Now()})

	ok, reason := g.CheckOrderAllowed(ledger, testAsset, orderbook.Buy, d("10"), d("0.50"))
	if ok {
		t.Fatal("expected rejection, position would exceed max_position_per_market")
	}
	if reason == "" {
		t.Error("expected a non-empty rejection reason")
	}
}

func TestCheckOrderAllowedRejectsOverTotalExposure(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxPositionPerMarket = 100000
	cfg.MaxInventoryImbalance = 100000
	cfg.MaxTotalExposure = d("100")
	g := NewGate(cfg)
	ledger := inventory.NewLedger()

	ok, _ := g.CheckOrderAllowed(ledger, testAsset, orderbook.Buy, d("500"), d("0.50"))
	if ok {
		t.Fatal("expected rejection, 500*0.50=250 exceeds max_total_exposure of 100")
	}
}

func TestCheckOrderAllowedRejectsOverInventoryImbalanceAcrossAssets(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxPositionPerMarket = 100000
	cfg.MaxTotalExposure = d("100000")
	cfg.MaxInventoryImbalance = 100
	g := NewGate(cfg)
	ledger := inventory.NewLedger()
	// Net exposure is portfolio-wide currency, not a per-asset share count:
	// a long position already held on a different asset must count against
	// the limit for an order on this one.
	ledger.ApplyFill(orderbook.Trade{AssetID: "asset-other", Side: orderbook.Buy, Price: d("0.90"), Size: d("100"), Timestamp: time.Now()})

	ok, reason := g.CheckOrderAllowed(ledger, testAsset, orderbook.Buy, d("15"), d("0.90"))
	if ok {
		t.Fatal("expected rejection: net exposure 90 + 13.5 = 103.5 exceeds max_inventory_imbalance of 100")
	}
	if reason == "" {
		t.Error("expected a non-empty rejection reason")
	}
}

func TestCheckOrderAllowedRejectsWhenHalted(t *testing.T) {
	t.Parallel()
	g := NewGate(testConfig())
	ledger := inventory.NewLedger()

	g.Halt("manual stop")
	ok, reason := g.CheckOrderAllowed(ledger, testAsset, orderbook.Buy, d("1"), d("0.50"))
	if ok {
		t.Fatal("expected rejection while halted")
	}
	if reason != "manual stop" {
		t.Errorf("reason = %q, want %q", reason, "manual stop")
	}

	g.Resume()
	ok, _ = g.CheckOrderAllowed(ledger, testAsset, orderbook.Buy, d("1"), d("0.50"))
	if !ok {
		t.Error("expected order allowed after resume")
	}
}

func TestCalculateSizeAdjustmentReducesOnSkew(t *testing.T) {
	t.Parallel()
	g := NewGate(testConfig()) // MaxInventoryImbalance = 100, half = 50
	ledger := inventory.NewLedger()
	ledger.ApplyFill(orderbook.Trade{AssetID: testAsset, Side: orderbook.Buy, Price: d("0.50"), Size: d("80"), Timestamp: time.Now()})

	// qty=80 > half(50), buying further into the skew should be throttled.
	adj := g.CalculateSizeAdjustment(ledger, testAsset, orderbook.Buy, d("20"))
	// reduction = min(0.5, 80/100) = 0.5
	want := d("10") // 20 * (1-0.5)
	if !adj.Equal(want) {
		t.Errorf("adjusted size = %s, want %s", adj, want)
	}
}

func TestCalculateSizeAdjustmentNoReductionWhenBalanced(t *testing.T) {
	t.Parallel()
	g := NewGate(testConfig())
	ledger := inventory.NewLedger()

	adj := g.CalculateSizeAdjustment(ledger, testAsset, orderbook.Buy, d("20"))
	if !adj.Equal(d("20")) {
		t.Errorf("adjusted size = %s, want unchanged 20", adj)
	}
}

func TestCalculateSizeAdjustmentSymmetricForSells(t *testing.T) {
	t.Parallel()
	g := NewGate(testConfig())
	ledger := inventory.NewLedger()
	ledger.ApplyFill(orderbook.Trade{AssetID: testAsset, Side: orderbook.Sell, Price: d("0.50"), Size: d("80"), Timestamp: time.Now()})

	adj := g.CalculateSizeAdjustment(ledger, testAsset, orderbook.Sell, d("20"))
	want := d("10")
	if !adj.Equal(want) {
		t.Errorf("adjusted size = %s, want %s", adj, want)
	}
}

func TestCheckDailyLossTripsHalt(t *testing.T) {
	t.Parallel()
	g := NewGate(testConfig()) // MaxDailyLoss = 50
	ledger := inventory.NewLedger()
	ledger.ApplyFill(orderbook.Trade{AssetID: testAsset, Side: orderbook.Buy, Price: d("0.60"), Size: d("100"), Timestamp: time.Now()})
	ledger.UpdateUnrealized(testAsset, d("0.01")) // unrealized = (0.01-0.60)*100 = -59

	g.CheckDailyLoss(ledger)

	halted, reason := g.IsHalted()
	if !halted {
		t.Fatal("expected daily loss circuit breaker to trip")
	}
	if reason == "" {
		t.Error("expected a non-empty halt reason")
	}
}

func TestCheckDailyLossDoesNotTripWithinLimit(t *testing.T) {
	t.Parallel()
	g := NewGate(testConfig())
	ledger := inventory.NewLedger()
	ledger.ApplyFill(orderbook.Trade{AssetID: testAsset, Side: orderbook.Buy, Price: d("0.50"), Size: d("10"), Timestamp: time.Now()})
	ledger.UpdateUnrealized(testAsset, d("0.49")) // unrealized = -0.10

	g.CheckDailyLoss(ledger)

	if halted, _ := g.IsHalted(); halted {
		t.Error("expected gate to remain open within daily loss limit")
	}
}

func TestRiskSnapshotReportsAggregates(t *testing.T) {
	t.Parallel()
	g := NewGate(testConfig())
	ledger := inventory.NewLedger()
	ledger.ApplyFill(orderbook.Trade{AssetID: testAsset, Side: orderbook.Buy, Price: d("0.50"), Size: d("10"), Timestamp: time.Now()})

	snap := g.RiskSnapshot(ledger)
	if snap.NumPositions != 1 {
		t.Errorf("NumPositions = %d, want 1", snap.NumPositions)
	}
	if !snap.TotalExposure.Equal(d("5")) {
		t.Errorf("TotalExposure = %s, want 5", snap.TotalExposure)
	}
	if !snap.InventoryImbalanceRatio.Equal(d("1")) {
		t.Errorf("InventoryImbalanceRatio = %s, want 1 (fully long)", snap.InventoryImbalanceRatio)
	}
}
