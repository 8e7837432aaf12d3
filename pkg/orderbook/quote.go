package orderbook

import "github.com/shopspring/decimal"

// Quote is a single desired price/size level on one side.
type Quote struct {
	Price decimal.Decimal
	Size  decimal.Decimal
	Side  Side
}

// QuoteSet is what the Quote Engine (C2) emits for one asset per tick: the
// bid and ask levels it wants live, plus the fair value and spread used to
// derive them and a short provenance string for logging/debugging.
//
// Ordering: quote.Engine emits each side best first, bids non-increasing and
// asks non-decreasing; they are strictly monotonic when LevelSpacing is at
// least one tick. Bid < FairValue < ask is not enforced: tick rounding at
// the minimum spread, or an inventory skew larger than half the spread, can
// put a quote at or across FairValue.
type QuoteSet struct {
	AssetID    string
	Bids       []Quote
	Asks       []Quote
	FairValue  decimal.Decimal
	Spread     decimal.Decimal
	Provenance string
}

// Pairs returns the (price, size) multiset for one side, used by the Order
// Manager's exact-match reconciliation.
func (qs QuoteSet) Pairs(side Side) []Quote {
	if side == Buy {
		return qs.Bids
	}
	return qs.Asks
}
