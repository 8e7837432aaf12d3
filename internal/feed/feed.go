// Package feed implements the Market Data Feed (C1): a polling mode built
// on the venue REST client and a push mode built on the adapted
// exchange.WSFeed pair (market + user channel), unified behind one
// get_book/event-stream contract. Grounded on the teacher's
// internal/engine/engine.go wiring of the two WS feeds, generalized so the
// polling fallback shares the same downstream event shapes.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/exchange"
	"polymarket-mm/internal/market"
	"polymarket-mm/pkg/orderbook"
	"polymarket-mm/pkg/types"
)

// RestClient is the subset of exchange.Client the feed needs for polling
// mode and for polling-mode fill detection. Narrowed to an interface so
// the feed is testable without a live HTTP client.
type RestClient interface {
	GetOrderBook(ctx context.Context, tokenID string) (*types.BookResponse, error)
	GetTrades(ctx context.Context, tokenID string, limit int) ([]types.TradeRecord, error)
}

// OrderUpdateKind mirrors the venue's order lifecycle event types.
type OrderUpdateKind string

const (
	Placement    OrderUpdateKind = "PLACEMENT"
	Update       OrderUpdateKind = "UPDATE"
	Cancellation OrderUpdateKind = "CANCELLATION"
)

// OrderUpdate is the domain-level UserOrderUpdate event (spec §4.1).
type OrderUpdate struct {
	OrderID     string
	AssetID     string
	Side        orderbook.Side
	Price       decimal.Decimal
	SizeMatched decimal.Decimal
	Kind        OrderUpdateKind
	Timestamp   time.Time
}

// asset tracks one instrument's identifiers for subscription purposes: the
// market channel subscribes by token ID, the user channel by condition ID.
type asset struct {
	tokenID     string
	conditionID string
}

// Feed unifies polling and push-mode market data delivery behind one
// contract. It owns the order book cache (single-writer, per spec §5) and
// emits fills and order-lifecycle updates on buffered channels for the
// Control Loop and Inventory Ledger to consume.
type Feed struct {
	cfg    config.Config
	client RestClient
	cache  *market.Cache
	logger *slog.Logger

	mktFeed *exchange.WSFeed // nil unless push mode
	usrFeed *exchange.WSFeed // nil unless push mode

	mu     sync.RWMutex
	assets map[string]asset // tokenID -> asset

	fillCh       chan orderbook.Trade
	orderCh      chan OrderUpdate
	bookUpdateCh chan string // asset IDs whose book just changed

	dedup *tradeDedup

	fillLimit int // GetTrades page size for polling-mode fill detection
}

// NewFeed builds a feed. In push mode, mktFeed/usrFeed deliver books, fills
// and order events; client is not called in push mode, and after a
// reconnect each book is rebuilt only from the next WebSocket snapshot. In
// polling mode only client is used.
func NewFeed(cfg config.Config, client RestClient, mktFeed, usrFeed *exchange.WSFeed, logger *slog.Logger) *Feed {
	f := &Feed{
		cfg:          cfg,
		client:       client,
		cache:        market.NewCache(),
		logger:       logger.With("component", "feed"),
		mktFeed:      mktFeed,
		usrFeed:      usrFeed,
		assets:       make(map[string]asset),
		fillCh:       make(chan orderbook.Trade, 256),
		orderCh:      make(chan OrderUpdate, 256),
		bookUpdateCh: make(chan string, 256),
		dedup:        newTradeDedup(500),
		fillLimit:    50,
	}
	if cfg.PushMode && mktFeed != nil {
		mktFeed.OnReconnect(f.discardTrackedBooks)
	}
	return f
}

// Cache exposes the read-only order book registry for components that need
// more than GetBook's single-asset view (e.g. the admission probe's
// DepthWithin over raw levels).
func (f *Feed) Cache() *market.Cache { return f.cache }

// Track registers an instrument for subscription. tokenID is required;
// conditionID is only used to subscribe the user (fills) channel in push
// mode and may be left empty if fills aren't needed for this asset.
func (f *Feed) Track(ctx context.Context, tokenID, conditionID string) error {
	f.mu.Lock()
	f.assets[tokenID] = asset{tokenID: tokenID, conditionID: conditionID}
	f.mu.Unlock()

	if !f.cfg.PushMode || f.mktFeed == nil {
		return nil
	}
	if err := f.mktFeed.Subscribe(ctx, []string{tokenID}); err != nil {
		return fmt.Errorf("subscribe market channel: %w", err)
	}
	if conditionID != "" && f.usrFeed != nil {
		if err := f.usrFeed.Subscribe(ctx, []string{conditionID}); err != nil {
			return fmt.Errorf("subscribe user channel: %w", err)
		}
	}
	return nil
}

// Untrack removes an instrument and discards its cached book.
func (f *Feed) Untrack(ctx context.Context, tokenID string) {
	f.mu.Lock()
	a, ok := f.assets[tokenID]
	delete(f.assets, tokenID)
	f.mu.Unlock()
	if !ok {
		return
	}
	f.cache.Remove(tokenID)
	if f.cfg.PushMode && f.mktFeed != nil {
		f.mktFeed.Unsubscribe(ctx, []string{tokenID})
		if a.conditionID != "" && f.usrFeed != nil {
			f.usrFeed.Unsubscribe(ctx, []string{a.conditionID})
		}
	}
}

func (f *Feed) trackedTokenIDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.assets))
	for id := range f.assets {
		out = append(out, id)
	}
	return out
}

// discardTrackedBooks drops every tracked asset's cached book — called
// before re-subscription on every WebSocket reconnect so the next snapshot
// rebuilds the cache from scratch (spec §4.1: "local book is discarded on
// reconnect"), never stitched onto possibly-stale prior state.
func (f *Feed) discardTrackedBooks() {
	for _, id := range f.trackedTokenIDs() {
		f.cache.Remove(id)
	}
	f.logger.Info("discarded cached books for reconnect", "count", len(f.trackedTokenIDs()))
}

// GetBook returns a snapshot copy of an asset's current order book.
func (f *Feed) GetBook(assetID string) (*orderbook.Book, bool) {
	bids, asks, ok := f.cache.Snapshot(assetID)
	if !ok {
		return nil, false
	}
	b := orderbook.NewBook(assetID)
	b.ApplySnapshot(bids, asks, f.cache.LastUpdated(assetID))
	return b, true
}

// Fills returns the channel of observed own-order fills (from the user WS
// channel in push mode, or from polling GET /trades in polling mode).
func (f *Feed) Fills() <-chan orderbook.Trade { return f.fillCh }

// OrderUpdates returns the channel of own-order lifecycle events
// (push mode only — polling mode has no equivalent venue endpoint and
// relies entirely on sync_with_exchange for drift detection).
func (f *Feed) OrderUpdates() <-chan OrderUpdate { return f.orderCh }

// BookUpdates returns the channel of asset IDs whose book just changed,
// used by the push-mode control loop to drive its needs-update bitmap.
func (f *Feed) BookUpdates() <-chan string { return f.bookUpdateCh }

// Run starts the feed in whichever mode cfg.PushMode selects and blocks
// until ctx is cancelled or an unrecoverable transport error occurs.
func (f *Feed) Run(ctx context.Context) error {
	if f.cfg.PushMode {
		return f.runPush(ctx)
	}
	return f.runPolling(ctx)
}

func (f *Feed) signalBookUpdate(assetID string) {
	select {
	case f.bookUpdateCh <- assetID:
	default:
		f.logger.Warn("book update channel full, dropping signal", "asset", assetID)
	}
}

func (f *Feed) emitFill(t orderbook.Trade) {
	select {
	case f.fillCh <- t:
	default:
		f.logger.Warn("fill channel full, dropping fill", "trade_id", t.TradeID)
	}
}

func (f *Feed) emitOrderUpdate(u OrderUpdate) {
	select {
	case f.orderCh <- u:
	default:
		f.logger.Warn("order update channel full, dropping event", "order_id", u.OrderID)
	}
}

// runGroup runs fns under one errgroup sharing a derived context and returns
// the first error.
func runGroup(ctx context.Context, fns ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}
