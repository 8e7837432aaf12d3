package sim

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand"
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

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestSim(cfg config.SimulatorConfig) *Simulator {
	return NewSimulator(cfg, d("1000"), discardLogger())
}

func TestPostOrdersRestsWithoutCrossing(t *testing.T) {
	t.Parallel()
	s := newTestSim(config.SimulatorConfig{})
	book := orderbook.NewBook("asset-1")
	book.ApplySnapshot(
		[]orderbook.Level{{Price: d("0.49"), Size: d("200")}},
		[]orderbook.Level{{Price: d("0.51"), Size: d("200")}},
		time.Now(),
	)
	s.UpdateMarket("asset-1", book)

	resp, err := s.PostOrders(context.Background(), []types.UserOrder{
		{TokenID: "asset-1", Side: types.BUY, Price: d("0.49"), Size: d("10")},
	}, false)
	if err != nil {
		t.Fatalf("PostOrders: %v", err)
	}
	if len(resp) != 1 || resp[0].Status != string(orderbook.StatusLive) {
		t.Fatalf("expected one resting LIVE order, got %+v", resp)
	}

	open, err := s.GetOpenOrders(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("GetOpenOrders: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open order, got %d", len(open))
	}
}

func TestPostOrdersCrossingFillsImmediately(t *testing.T) {
	t.Parallel()
	s := newTestSim(config.SimulatorConfig{})
	book := orderbook.NewBook("asset-1")
	book.ApplySnapshot(
		[]orderbook.Level{{Price: d("0.49"), Size: d("200")}},
		[]orderbook.Level{{Price: d("0.51"), Size: d("5")}, {Price: d("0.52"), Size: d("200")}},
		time.Now(),
	)
	s.UpdateMarket("asset-1", book)

	resp, err := s.PostOrders(context.Background(), []types.UserOrder{
		{TokenID: "asset-1", Side: types.BUY, Price: d("0.52"), Size: d("8")},
	}, false)
	if err != nil {
		t.Fatalf("PostOrders: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected 1 response, got %d", len(resp))
	}

	select {
	case trade := <-s.Fills():
		if !trade.Price.Equal(d("0.51")) {
			t.Errorf("expected first fill at best ask 0.51, got %v", trade.Price)
		}
		if !trade.Slippage.Equal(d("0.01")) {
			t.Errorf("expected slippage 0.01 (0.52-0.51), got %v", trade.Slippage)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a taker fill from crossing")
	}

	select {
	case trade := <-s.Fills():
		if !trade.Price.Equal(d("0.52")) {
			t.Errorf("expected second fill at 0.52, got %v", trade.Price)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a second taker fill walking to the next level")
	}

	open, _ := s.GetOpenOrders(context.Background(), "asset-1")
	if len(open) != 0 {
		t.Errorf("fully-matched crossing order should not rest, got %+v", open)
	}
}

func TestCancelOrdersRemovesResting(t *testing.T) {
	t.Parallel()
	s := newTestSim(config.SimulatorConfig{})
	book := orderbook.NewBook("asset-1")
	book.ApplySnapshot(
		[]orderbook.Level{{Price: d("0.49"), Size: d("200")}},
		[]orderbook.Level{{Price: d("0.51"), Size: d("200")}},
		time.Now(),
	)
	s.UpdateMarket("asset-1", book)

	resp, _ := s.PostOrders(context.Background(), []types.UserOrder{
		{TokenID: "asset-1", Side: types.BUY, Price: d("0.49"), Size: d("10")},
	}, false)
	orderID := resp[0].OrderID

	cancelResp, err := s.CancelOrders(context.Background(), []string{orderID, "unknown-id"})
	if err != nil {
		t.Fatalf("CancelOrders: %v", err)
	}
	if len(cancelResp.Canceled) != 1 || cancelResp.Canceled[0] != orderID {
		t.Errorf("expected only %q canceled, got %+v", orderID, cancelResp.Canceled)
	}

	open, _ := s.GetOpenOrders(context.Background(), "asset-1")
	if len(open) != 0 {
		t.Errorf("expected no open orders after cancel, got %+v", open)
	}
}

func TestFillProbabilityAdverseSelectionOnBuy(t *testing.T) {
	t.Parallel()
	qo := &orderbook.QueuedOrder{
		Order:             orderbook.Order{Side: orderbook.Buy, Price: d("0.50"), Size: d("10")},
		QueuePosition:     d("50"),
		InitialQueueDepth: d("100"),
		MidAtPlacement:    d("0.50"),
	}
	state := &orderbook.MarketState{BestBid: d("0.47"), BestAsk: d("0.48")} // mid dropped to 0.475

	prob, adverse := fillProbability(qo, state, time.Now())
	if !adverse {
		t.Error("expected a BUY resting through a downward price move to be tagged adverse")
	}
	if prob <= baseFillProb {
		t.Errorf("expected adverse multiplier to raise probability above base, got %v", prob)
	}
}

func TestFillProbabilityFavorableSelectionOnBuy(t *testing.T) {
	t.Parallel()
	qo := &orderbook.QueuedOrder{
		Order:             orderbook.Order{Side: orderbook.Buy, Price: d("0.50"), Size: d("10")},
		QueuePosition:     d("50"),
		InitialQueueDepth: d("100"),
		MidAtPlacement:    d("0.50"),
	}
	state := &orderbook.MarketState{BestBid: d("0.53"), BestAsk: d("0.54")} // mid rose to 0.535

	prob, adverse := fillProbability(qo, state, time.Now())
	if adverse {
		t.Error("expected a BUY resting through an upward price move to be favorable, not adverse")
	}
	if prob >= baseFillProb {
		t.Errorf("expected favorable multiplier to lower probability below base, got %v", prob)
	}
}

func TestFillProbabilityQueueProgressClampedToFloor(t *testing.T) {
	t.Parallel()
	qo := &orderbook.QueuedOrder{
		Order:             orderbook.Order{Side: orderbook.Buy, Price: d("0.50"), Size: d("10")},
		QueuePosition:     d("100"), // no progress at all
		InitialQueueDepth: d("100"),
		MidAtPlacement:    decimal.Zero, // no placement mid recorded -> no selection scaling
	}
	state := &orderbook.MarketState{}

	prob, _ := fillProbability(qo, state, time.Now())
	want := baseFillProb * queueProgressFloor
	if math.Abs(prob-want) > 1e-9 {
		t.Errorf("prob = %v, want %v (base * queue floor)", prob, want)
	}
}

func TestPartialFillSizeFloorsAtOne(t *testing.T) {
	t.Parallel()
	size := partialFillSize(d("0"), d("10"))
	if !size.Equal(d("1")) {
		t.Errorf("size = %v, want 1 (floor)", size)
	}
}

func TestPartialFillSizeCapsAtRemaining(t *testing.T) {
	t.Parallel()
	size := partialFillSize(d("100"), d("5"))
	if !size.Equal(d("5")) {
		t.Errorf("size = %v, want 5 (capped at remaining)", size)
	}
}

func TestTickFillsRestingOrderWhenRollBeatsProbability(t *testing.T) {
	t.Parallel()
	s := newTestSim(config.SimulatorConfig{})
	s.rng = rand.New(rand.NewSource(1)) // deterministic

	book := orderbook.NewBook("asset-1")
	book.ApplySnapshot(
		[]orderbook.Level{{Price: d("0.49"), Size: d("10")}},
		[]orderbook.Level{{Price: d("0.51"), Size: d("10")}},
		time.Now(),
	)
	s.UpdateMarket("asset-1", book)

	resp, _ := s.PostOrders(context.Background(), []types.UserOrder{
		{TokenID: "asset-1", Side: types.BUY, Price: d("0.49"), Size: d("10")},
	}, false)
	orderID := resp[0].OrderID

	s.mu.Lock()
	qo := s.orders[orderID]
	qo.QueuePosition = decimal.Zero // fully decayed queue -> max queue-progress scale
	s.mu.Unlock()

	// Drive enough ticks that a near-certain roll eventually fires; the
	// queue has fully decayed so queueScale is at its ceiling (1.0).
	fired := false
	for i := 0; i < 5000; i++ {
		s.tick(time.Now())
		select {
		case <-s.Fills():
			fired = true
		default:
		}
		if fired {
			break
		}
	}
	if !fired {
		t.Fatal("expected the resting order to fill within 5000 ticks at base probability")
	}
}
