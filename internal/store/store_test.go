package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/orderbook"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestSaveAndLoadPosition(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	pos := orderbook.Position{
		AssetID:       "asset-1",
		Quantity:      10,
		AvgEntryPrice: d("0.55"),
		RealizedPnL:   d("1.23"),
		LastUpdated:   time.Now(),
	}

	if err := s.SavePosition("asset-1", pos); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	loaded, err := s.LoadPosition("asset-1")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadPosition returned nil")
	}

	if loaded.Quantity != pos.Quantity {
		t.Errorf("Quantity = %v, want %v", loaded.Quantity, pos.Quantity)
	}
	if !loaded.AvgEntryPrice.Equal(pos.AvgEntryPrice) {
		t.Errorf("AvgEntryPrice = %v, want %v", loaded.AvgEntryPrice, pos.AvgEntryPrice)
	}
	if !loaded.RealizedPnL.Equal(pos.RealizedPnL) {
		t.Errorf("RealizedPnL = %v, want %v", loaded.RealizedPnL, pos.RealizedPnL)
	}
}

func TestLoadPositionMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadPosition("nonexistent")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing position, got %+v", loaded)
	}
}

func TestSavePositionOverwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	pos1 := orderbook.Position{AssetID: "asset-1", Quantity: 10}
	pos2 := orderbook.Position{AssetID: "asset-1", Quantity: 20}

	_ = s.SavePosition("asset-1", pos1)
	_ = s.SavePosition("asset-1", pos2)

	loaded, err := s.LoadPosition("asset-1")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded.Quantity != 20 {
		t.Errorf("Quantity = %v, want 20 (latest save)", loaded.Quantity)
	}
}

func TestLoadAllRestoresEveryAsset(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	_ = s.SavePosition("asset-1", orderbook.Position{AssetID: "asset-1", Quantity: 5})
	_ = s.SavePosition("asset-2", orderbook.Position{AssetID: "asset-2", Quantity: -3})

	all, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	if all["asset-1"].Quantity != 5 {
		t.Errorf("asset-1 quantity = %d, want 5", all["asset-1"].Quantity)
	}
	if all["asset-2"].Quantity != -3 {
		t.Errorf("asset-2 quantity = %d, want -3", all["asset-2"].Quantity)
	}
}
