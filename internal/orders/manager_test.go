package orders

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/pkg/orderbook"
	"polymarket-mm/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testAsset = "asset-1"

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// fakeVenue is an in-memory VenueClient for reconciliation tests.
type fakeVenue struct {
	mu       sync.Mutex
	nextID   int
	posted   [][]types.UserOrder
	canceled [][]string
	open     []types.OpenOrder
}

func (f *fakeVenue) PostOrders(_ context.Context, orders []types.UserOrder, _ bool) ([]types.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, orders)
	results := make([]types.OrderResponse, len(orders))
	for i := range orders {
		f.nextID++
		results[i] = types.OrderResponse{Success: true, OrderID: fmt.Sprintf("order-%d", f.nextID), Status: "live"}
	}
	return results, nil
}

func (f *fakeVenue) CancelOrders(_ context.Context, ids []string) (*types.CancelResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, ids)
	return &types.CancelResponse{Canceled: ids}, nil
}

func (f *fakeVenue) GetOpenOrders(_ context.Context, _ string) ([]types.OpenOrder, error) {
	return f.open, nil
}

func testMgr() (*Manager, *fakeVenue) {
	v := &fakeVenue{}
	cfg := config.OrdersConfig{OrderTimeout: 300 * time.Second}
	return NewManager(cfg, v, discardLogger()), v
}

func quoteSet(bidPrice, bidSize, askPrice, askSize string) orderbook.QuoteSet {
	return orderbook.QuoteSet{
		AssetID: testAsset,
		Bids:    []orderbook.Quote{{Price: d(bidPrice), Size: d(bidSize), Side: orderbook.Buy}},
		Asks:    []orderbook.Quote{{Price: d(askPrice), Size: d(askSize), Side: orderbook.Sell}},
	}
}

func TestUpdateQuotesPlacesOnEmptyBook(t *testing.T) {
	t.Parallel()
	m, v := testMgr()

	placed, err := m.UpdateQuotes(context.Background(), testAsset, quoteSet("0.49", "10", "0.51", "10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if placed != 2 {
		t.Fatalf("placed = %d, want 2", placed)
	}
	if len(v.posted) != 2 { // one PostOrders call per side with a placement
		t.Errorf("posted batches = %d, want 2", len(v.posted))
	}
}

func TestUpdateQuotesKeepsMatchingOrderUnchanged(t *testing.T) {
	t.Parallel()
	m, v := testMgr()

	qs := quoteSet("0.49", "10", "0.51", "10")
	if _, err := m.UpdateQuotes(context.Background(), testAsset, qs); err != nil {
		t.Fatalf("first update: %v", err)
	}

	placed, err := m.UpdateQuotes(context.Background(), testAsset, qs)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if placed != 0 {
		t.Errorf("placed = %d on unchanged quotes, want 0 (orders should be kept)", placed)
	}
	if len(v.canceled) != 0 {
		t.Errorf("expected no cancellations, got %d batches", len(v.canceled))
	}
}

func TestUpdateQuotesCancelsDriftedOrder(t *testing.T) {
	t.Parallel()
	m, v := testMgr()

	if _, err := m.UpdateQuotes(context.Background(), testAsset, quoteSet("0.49", "10", "0.51", "10")); err != nil {
		t.Fatalf("first update: %v", err)
	}

	placed, err := m.UpdateQuotes(context.Background(), testAsset, quoteSet("0.48", "10", "0.52", "10"))
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if placed != 2 {
		t.Errorf("placed = %d, want 2 (both sides drifted)", placed)
	}
	if len(v.canceled) == 0 {
		t.Error("expected the drifted orders to be cancelled")
	}
}

func TestCancelStaleOrdersCancelsPastTimeout(t *testing.T) {
	t.Parallel()
	m, v := testMgr()
	m.cfg.OrderTimeout = 10 * time.Millisecond

	if _, err := m.UpdateQuotes(context.Background(), testAsset, quoteSet("0.49", "10", "0.51", "10")); err != nil {
		t.Fatalf("update: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	n, err := m.CancelStaleOrders(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("stale cancelled = %d, want 2", n)
	}
	if len(v.canceled) == 0 {
		t.Error("expected a cancellation call")
	}
}

func TestSyncWithExchangeMarksAbsentOrdersUnknown(t *testing.T) {
	t.Parallel()
	m, v := testMgr()

	if _, err := m.UpdateQuotes(context.Background(), testAsset, quoteSet("0.49", "10", "0.51", "10")); err != nil {
		t.Fatalf("update: %v", err)
	}
	v.open = nil // venue reports nothing live

	if err := m.SyncWithExchange(context.Background(), testAsset); err != nil {
		t.Fatalf("sync: %v", err)
	}

	live := m.GetLiveOrders(Filter{AssetID: testAsset, Status: orderbook.StatusLive})
	if len(live) != 0 {
		t.Errorf("expected no LIVE orders after sync with an empty venue set, got %d", len(live))
	}
	unknown := m.GetLiveOrders(Filter{AssetID: testAsset, Status: orderbook.StatusUnknown})
	if len(unknown) != 2 {
		t.Errorf("expected 2 UNKNOWN orders, got %d", len(unknown))
	}
}

func TestCancelAllOrdersClearsAsset(t *testing.T) {
	t.Parallel()
	m, _ := testMgr()

	if _, err := m.UpdateQuotes(context.Background(), testAsset, quoteSet("0.49", "10", "0.51", "10")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := m.CancelAllOrders(context.Background(), testAsset); err != nil {
		t.Fatalf("cancel all: %v", err)
	}

	live := m.GetLiveOrders(Filter{AssetID: testAsset})
	if len(live) != 0 {
		t.Errorf("expected 0 orders after CancelAllOrders, got %d", len(live))
	}
}

func TestApplyFillStatusTransitionsToPartialThenMatched(t *testing.T) {
	t.Parallel()
	m, _ := testMgr()

	if _, err := m.UpdateQuotes(context.Background(), testAsset, quoteSet("0.49", "10", "0.51", "10")); err != nil {
		t.Fatalf("update: %v", err)
	}
	live := m.GetLiveOrders(Filter{AssetID: testAsset, Side: orderbook.Buy})
	if len(live) != 1 {
		t.Fatalf("expected 1 live bid, got %d", len(live))
	}
	id := live[0].Order.OrderID

	m.ApplyFillStatus(id, d("4"))
	partial := m.GetLiveOrders(Filter{AssetID: testAsset, Status: orderbook.StatusPartial})
	if len(partial) != 1 {
		t.Fatalf("expected order in PARTIAL after a 4/10 fill, got %d partial", len(partial))
	}

	m.ApplyFillStatus(id, d("6"))
	matched := m.GetLiveOrders(Filter{AssetID: testAsset, Status: orderbook.StatusMatched})
	if len(matched) != 1 {
		t.Fatalf("expected order MATCHED after a total 10/10 fill, got %d matched", len(matched))
	}
}
