// Package orderbook defines the core decimal domain model shared by the
// quote engine, inventory ledger, risk gate, order manager, and simulator:
// order books, quotes, orders, positions, and fills. All prices and sizes
// are exact decimals — never float64 — per the tick-rounded arithmetic the
// reconciler depends on.
package orderbook

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is the minimum price increment for every instrument this engine
// quotes: binary markets trade in [0.01, 0.99] on a one-cent tick.
var Tick = decimal.NewFromFloat(0.01)

// MinPrice and MaxPrice bound every price this engine will ever quote or
// accept, independent of the configurable clamp range used for fair value.
var (
	MinPrice = decimal.NewFromFloat(0.01)
	MaxPrice = decimal.NewFromFloat(0.99)
)

// RoundTick rounds d to the nearest tick using half-away-from-zero rounding,
// the convention spec'd for every decimal that crosses a tick boundary.
func RoundTick(d decimal.Decimal) decimal.Decimal {
	return d.DivRound(Tick, 0).Mul(Tick)
}

// Side is the direction of an order or fill.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Level is one (price, size) rung of an order book side.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Book is the per-asset order book: a timestamp, descending bids, ascending
// asks. Owned exclusively by the Market Data Feed (C1); every other
// component observes it read-only.
type Book struct {
	AssetID   string
	Bids      []Level // descending by price, best bid first
	Asks      []Level // ascending by price, best ask first
	UpdatedAt time.Time
}

// NewBook returns an empty book for an asset.
func NewBook(assetID string) *Book {
	return &Book{AssetID: assetID}
}

// ApplySnapshot replaces the book's contents wholesale. Used on the first
// message for an asset and on every push-mode reconnect.
func (b *Book) ApplySnapshot(bids, asks []Level, at time.Time) {
	b.Bids = sortedCopy(bids, true)
	b.Asks = sortedCopy(asks, false)
	b.UpdatedAt = at
}

func sortedCopy(levels []Level, descending bool) []Level {
	out := make([]Level, 0, len(levels))
	for _, lv := range levels {
		if lv.Size.Sign() > 0 {
			out = append(out, lv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// ApplyDelta inserts, updates, or removes a single level on one side and
// re-sorts that side. size == 0 removes the level. Idempotent: applying the
// same (price, 0) removal twice is a no-op the second time.
func (b *Book) ApplyDelta(side Side, price, size decimal.Decimal, at time.Time) {
	if side == Buy {
		b.Bids = applyLevel(b.Bids, price, size, true)
	} else {
		b.Asks = applyLevel(b.Asks, price, size, false)
	}
	b.UpdatedAt = at
}

func applyLevel(levels []Level, price, size decimal.Decimal, descending bool) []Level {
	idx := -1
	for i, lv := range levels {
		if lv.Price.Equal(price) {
			idx = i
			break
		}
	}
	if size.Sign() <= 0 {
		if idx < 0 {
			return levels
		}
		return append(levels[:idx], levels[idx+1:]...)
	}
	if idx >= 0 {
		levels[idx].Size = size
		return levels
	}
	levels = append(levels, Level{Price: price, Size: size})
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return levels
}

// BestBid returns the highest bid, ok=false if the book has no bids.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	if len(b.Bids) == 0 {
		return decimal.Zero, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the lowest ask, ok=false if the book has no asks.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	if len(b.Asks) == 0 {
		return decimal.Zero, false
	}
	return b.Asks[0].Price, true
}

// Mid returns (best_bid+best_ask)/2, ok=false unless both sides are present.
func (b *Book) Mid() (decimal.Decimal, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// WeightedMid averages the size-weighted price of the top-K levels on each
// side, then averages the two sides. ok=false unless both sides have at
// least one level.
func (b *Book) WeightedMid(k int) (decimal.Decimal, bool) {
	bidWM, okB := weightedSide(b.Bids, k)
	askWM, okA := weightedSide(b.Asks, k)
	if !okB || !okA {
		return decimal.Zero, false
	}
	return bidWM.Add(askWM).Div(decimal.NewFromInt(2)), true
}

func weightedSide(levels []Level, k int) (decimal.Decimal, bool) {
	if len(levels) == 0 {
		return decimal.Zero, false
	}
	if k > len(levels) {
		k = len(levels)
	}
	var notional, size decimal.Decimal
	for i := 0; i < k; i++ {
		notional = notional.Add(levels[i].Price.Mul(levels[i].Size))
		size = size.Add(levels[i].Size)
	}
	if size.Sign() == 0 {
		return decimal.Zero, false
	}
	return notional.Div(size), true
}

// DepthWithin sums the size of the first n levels of a side (best first);
// when n exceeds the number of levels, it sums all of them.
func DepthWithin(levels []Level, n int) decimal.Decimal {
	if n > len(levels) {
		n = len(levels)
	}
	var total decimal.Decimal
	for i := 0; i < n; i++ {
		total = total.Add(levels[i].Size)
	}
	return total
}

// DepthAtOrBetter sums size at prices at-or-better than price. side
// determines direction: a bid queue counts levels priced >= price, an ask
// queue counts levels priced <= price.
func DepthAtOrBetter(levels []Level, side Side, price decimal.Decimal) decimal.Decimal {
	var total decimal.Decimal
	for _, lv := range levels {
		if side == Buy && lv.Price.GreaterThanOrEqual(price) {
			total = total.Add(lv.Size)
		} else if side == Sell && lv.Price.LessThanOrEqual(price) {
			total = total.Add(lv.Size)
		}
	}
	return total
}
