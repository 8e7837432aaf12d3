package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the Inventory Ledger's (C3) per-asset record: a signed
// integer quantity (long positive, short negative), the weighted-average
// entry price, and realized/unrealized P&L. Quantity arithmetic is integer
// by design — shares are whole units — while prices stay decimal.
//
// Invariant: when Quantity == 0, UnrealizedPnL == 0. AvgEntryPrice is left
// at its last value when flat, carried only for inspection.
type Position struct {
	AssetID       string
	Quantity      int64
	AvgEntryPrice decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	LastUpdated   time.Time
}

// IsLong reports whether the position is net long.
func (p Position) IsLong() bool { return p.Quantity > 0 }

// IsShort reports whether the position is net short.
func (p Position) IsShort() bool { return p.Quantity < 0 }

// Exposure returns |Quantity| * AvgEntryPrice, the gross notional of this
// single position (a component of the ledger-wide gross exposure sum).
func (p Position) Exposure() decimal.Decimal {
	qty := decimal.NewFromInt(p.Quantity)
	if qty.Sign() < 0 {
		qty = qty.Neg()
	}
	return qty.Mul(p.AvgEntryPrice)
}

// SignedExposure returns Quantity * AvgEntryPrice (net, sign-preserving),
// the component of the ledger-wide net exposure sum.
func (p Position) SignedExposure() decimal.Decimal {
	return decimal.NewFromInt(p.Quantity).Mul(p.AvgEntryPrice)
}

// Trade (a.k.a. Fill) is an immutable record of one execution, ours or the
// market's, once observed. Fees are venue-defined; the simulator applies
// configurable maker/taker rates (default zero).
type Trade struct {
	TradeID   string
	AssetID   string
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	Fee       decimal.Decimal
	Timestamp time.Time
	OrderID   string
	// Slippage is |fill_price - order_price|, non-zero only for a
	// simulator taker fill executed at a level other than its own limit price.
	Slippage decimal.Decimal
}

// QueuedOrder (simulator-only) extends Order with queue-position and fill
// history used to drive the paper-trading fill model.
type QueuedOrder struct {
	Order             Order
	QueuePosition     decimal.Decimal // size-units of foreign orders ahead of us at placement
	InitialQueueDepth decimal.Decimal // QueuePosition at placement, used to normalize decay
	MidAtPlacement    decimal.Decimal // book mid when this order was placed, for adverse-selection detection
	PlacedAt          time.Time
	Fills             []SimFill
}

// SimFill is one append-only entry in a QueuedOrder's fill log.
type SimFill struct {
	Price   decimal.Decimal
	Size    decimal.Decimal
	Time    time.Time
	Adverse bool
}

// MarketState (simulator-only) is the per-asset cache the fill model reads:
// top-of-book, full depth maps, a rolling 60s trade-volume tally, and a
// 5-minute mid-price history for adverse-selection detection.
type MarketState struct {
	AssetID     string
	BestBid     decimal.Decimal
	BestAsk     decimal.Decimal
	BidDepth    map[string]decimal.Decimal // price.String() -> size
	AskDepth    map[string]decimal.Decimal
	TradeWindow []TradeSample // rolling 60s market-trade tally
	MidHistory  []MidSample   // rolling 5-minute mid history
}

// TradeSample is one observed market trade used for volume-rate estimates.
type TradeSample struct {
	Side Side
	Size decimal.Decimal
	At   time.Time
}

// MidSample is one observed mid-price sample for adverse-selection / momentum
// detection.
type MidSample struct {
	Mid decimal.Decimal
	At  time.Time
}
