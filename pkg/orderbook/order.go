package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the closed sum of order lifecycle states. It is never a
// free-form string at an internal boundary; transitions are validated by
// CanTransition so the rest of the codebase cannot assign an invalid one.
type Status string

const (
	StatusLive      Status = "LIVE"
	StatusPartial   Status = "PARTIAL"
	StatusMatched   Status = "MATCHED"
	StatusCancelled Status = "CANCELLED"
	StatusUnknown   Status = "UNKNOWN"
)

// IsTerminal reports whether an order in this status can ever transition
// again.
func (s Status) IsTerminal() bool {
	return s == StatusMatched || s == StatusCancelled
}

// CanTransition reports whether a transition from s to next is legal.
// Terminal states never transition; UNKNOWN may resolve to LIVE, PARTIAL,
// MATCHED or CANCELLED once a fill or a sync disambiguates it.
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusLive:
		return next == StatusPartial || next == StatusMatched || next == StatusCancelled || next == StatusUnknown
	case StatusPartial:
		return next == StatusMatched || next == StatusCancelled || next == StatusUnknown
	case StatusUnknown:
		return next == StatusMatched || next == StatusCancelled || next == StatusLive || next == StatusPartial
	default:
		return false
	}
}

// OrderKind is the order time-in-force. Only GTC is implemented by the
// venue this engine targets; FOK/FAK are named so the Order type matches
// the data model even though no component currently emits them.
type OrderKind string

const (
	GTC OrderKind = "GTC"
	FOK OrderKind = "FOK"
	FAK OrderKind = "FAK"
)

// Order is the venue-agnostic order record: what we asked for and what has
// happened to it. 0 <= SizeMatched <= Size always holds; MATCHED iff
// SizeMatched == Size.
type Order struct {
	OrderID     string
	AssetID     string
	Side        Side
	Price       decimal.Decimal
	Size        decimal.Decimal
	SizeMatched decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	Type        OrderKind
}

// Remaining returns Size - SizeMatched, floored at zero.
func (o Order) Remaining() decimal.Decimal {
	r := o.Size.Sub(o.SizeMatched)
	if r.Sign() < 0 {
		return decimal.Zero
	}
	return r
}

// ApplyFillSize advances SizeMatched by size and derives the resulting
// status (LIVE stays LIVE on a zero-size no-op; partial fills move to
// PARTIAL; a fill that exhausts Size moves to MATCHED). It never moves a
// terminal order.
func (o *Order) ApplyFillSize(size decimal.Decimal) {
	if o.Status.IsTerminal() {
		return
	}
	o.SizeMatched = o.SizeMatched.Add(size)
	if o.SizeMatched.GreaterThanOrEqual(o.Size) {
		o.SizeMatched = o.Size
		o.Status = StatusMatched
		return
	}
	if o.SizeMatched.Sign() > 0 {
		o.Status = StatusPartial
	}
}

// ManagedOrder is the control-loop wrapper around an Order: which quote
// side produced it, when it was placed, and whether the reconciler has
// flagged it stale. Owned exclusively by the Order Manager (C5).
type ManagedOrder struct {
	Order           Order
	OriginatingSide Side
	AssetID         string
	PlacedAt        time.Time
	IsStale         bool
}

// Price/size pair used by the reconciler's exact-multiset match.
type PriceSizeKey struct {
	Price string // RoundTick(price).String(), a canonical comparison key
	Size  string
}

// Key returns the canonical (price, size) comparison key for reconciliation.
// The price is tick-rounded and both fields are string-normalized before
// comparison so that decimals reached via different arithmetic paths
// compare equal.
func Key(price, size decimal.Decimal) PriceSizeKey {
	return PriceSizeKey{
		Price: RoundTick(price).String(),
		Size:  size.String(),
	}
}
