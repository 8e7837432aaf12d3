// Package market owns the locally-mirrored order book cache: one
// orderbook.Book per asset id, kept current from REST snapshots and
// WebSocket deltas. The cache is single-writer (the feed) / multi-reader
// (everyone else) — readers take the RWMutex only for the duration of their
// read, never across a suspension point.
package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/orderbook"
	"polymarket-mm/pkg/types"
)

// Cache is the concurrency-safe registry of per-asset order books. It is
// the Market Data Feed's exclusive mutation surface (spec §3 Ownership);
// every other component observes via Snapshot or the accessor methods,
// which return copies or read-only values, never the live struct.
type Cache struct {
	mu        sync.RWMutex
	books     map[string]*orderbook.Book
	updatedAt map[string]time.Time
}

// NewCache returns an empty book cache.
func NewCache() *Cache {
	return &Cache{
		books:     make(map[string]*orderbook.Book),
		updatedAt: make(map[string]time.Time),
	}
}

func (c *Cache) getOrCreateLocked(assetID string) *orderbook.Book {
	b, ok := c.books[assetID]
	if !ok {
		b = orderbook.NewBook(assetID)
		c.books[assetID] = b
	}
	return b
}

// ApplyBookResponse loads a full REST snapshot for an asset, as used in
// polling mode and on first load / push-mode reconnect.
func (c *Cache) ApplyBookResponse(resp *types.BookResponse) {
	c.applySnapshot(resp.AssetID, toLevels(resp.Bids), toLevels(resp.Asks))
}

// ApplyBookEvent loads a full WebSocket book snapshot for an asset.
func (c *Cache) ApplyBookEvent(event types.WSBookEvent) {
	c.applySnapshot(event.AssetID, toLevels(event.Buys), toLevels(event.Sells))
}

func (c *Cache) applySnapshot(assetID string, bids, asks []orderbook.Level) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.getOrCreateLocked(assetID)
	b.ApplySnapshot(bids, asks, now)
	c.updatedAt[assetID] = now
}

// ApplyPriceChange applies a price_change event's deltas, inserting,
// updating, or removing levels and re-sorting the affected side — each
// price_change entry is (asset_id, side, price, size) where size == 0
// removes the level.
func (c *Cache) ApplyPriceChange(event types.WSPriceChangeEvent) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pc := range event.PriceChanges {
		price, err := decimal.NewFromString(pc.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(pc.Size)
		if err != nil {
			continue
		}
		side := orderbook.Buy
		if pc.Side == string(types.SELL) {
			side = orderbook.Sell
		}
		b := c.getOrCreateLocked(pc.AssetID)
		b.ApplyDelta(side, price, size, now)
		c.updatedAt[pc.AssetID] = now
	}
}

// Snapshot returns a value copy of the current levels for an asset so
// callers never hold a reference into the live book across a suspension
// point. ok is false if the asset has never been seen.
func (c *Cache) Snapshot(assetID string) (bids, asks []orderbook.Level, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, exists := c.books[assetID]
	if !exists {
		return nil, nil, false
	}
	bids = append([]orderbook.Level(nil), b.Bids...)
	asks = append([]orderbook.Level(nil), b.Asks...)
	return bids, asks, true
}

// Mid returns the current mid price for an asset.
func (c *Cache) Mid(assetID string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, exists := c.books[assetID]
	if !exists {
		return decimal.Zero, false
	}
	return b.Mid()
}

// WeightedMid returns the top-K size-weighted mid for an asset.
func (c *Cache) WeightedMid(assetID string, k int) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, exists := c.books[assetID]
	if !exists {
		return decimal.Zero, false
	}
	return b.WeightedMid(k)
}

// IsStale reports whether the asset's book has gone without an update for
// longer than maxAge. An asset that has never been seen is always stale.
func (c *Cache) IsStale(assetID string, maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	last, ok := c.updatedAt[assetID]
	if !ok {
		return true
	}
	return time.Since(last) > maxAge
}

// LastUpdated returns the timestamp of the asset's most recent update.
func (c *Cache) LastUpdated(assetID string) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt[assetID]
}

// Remove drops an asset's book entirely, used when an instrument is
// unsubscribed (an OrderBook is destroyed when the feed stops tracking it).
func (c *Cache) Remove(assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.books, assetID)
	delete(c.updatedAt, assetID)
}

func toLevels(levels []types.PriceLevel) []orderbook.Level {
	out := make([]orderbook.Level, 0, len(levels))
	for _, lv := range levels {
		price, size := lv.Decimal()
		out = append(out, orderbook.Level{Price: price, Size: size})
	}
	return out
}
