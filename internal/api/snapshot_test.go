package api

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/engine"
	"polymarket-mm/internal/risk"
	"polymarket-mm/pkg/orderbook"
)

func TestConvertRiskSnapshot(t *testing.T) {
	snap := risk.Snapshot{
		TotalExposure: decimal.RequireFromString("123.45"),
		RealizedPnL:   decimal.RequireFromString("10"),
		UnrealizedPnL: decimal.RequireFromString("-5"),
		NumPositions:  3,
		Halted:        true,
		HaltReason:    "daily loss limit",
	}
	out := convertRiskSnapshot(snap)
	if out.TotalExposure != 123.45 {
		t.Errorf("TotalExposure = %v, want 123.45", out.TotalExposure)
	}
	if !out.Halted || out.HaltReason != "daily loss limit" {
		t.Errorf("halt fields not carried through: %+v", out)
	}
}

func TestConvertFills(t *testing.T) {
	trades := []orderbook.Trade{
		{TradeID: "t1", AssetID: "asset-1", Side: orderbook.Buy, Price: decimal.RequireFromString("0.5"), Size: decimal.RequireFromString("10")},
	}
	out := convertFills(trades)
	if len(out) != 1 || out[0].AssetID != "asset-1" || out[0].Side != "BUY" {
		t.Errorf("unexpected conversion: %+v", out)
	}
}

func TestConvertPnLHistory(t *testing.T) {
	now := time.Now()
	points := []engine.PnLPoint{
		{At: now, Realized: decimal.RequireFromString("1"), Unrealized: decimal.RequireFromString("2")},
	}
	out := convertPnLHistory(points)
	if len(out) != 1 || out[0].Realized != 1 || out[0].Unrealized != 2 {
		t.Errorf("unexpected conversion: %+v", out)
	}
}

func TestNewConfigSummaryCarriesDryRunAndPushMode(t *testing.T) {
	cfg := config.Config{DryRun: true, PushMode: false}
	cfg.Quote.OrderSize = decimal.RequireFromString("5")
	summary := NewConfigSummary(cfg)
	if !summary.DryRun || summary.PushMode {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.OrderSize != 5 {
		t.Errorf("OrderSize = %v, want 5", summary.OrderSize)
	}
}
