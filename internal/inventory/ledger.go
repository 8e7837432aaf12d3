// Package inventory implements the Inventory Ledger (C3): weighted-average-
// cost position keeping with sign-flip realization, and the gross/net
// exposure accessors the Risk Gate reads. It is the run's single-writer for
// Position records (spec §3 Ownership) — the fill handler is the only
// caller of ApplyFill.
package inventory

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/orderbook"
)

// Ledger tracks one Position per asset id, generalizing the teacher's
// YES/NO dual-leg Inventory to an arbitrary number of signed-quantity
// positions, one per asset.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*orderbook.Position
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*orderbook.Position)}
}

func (l *Ledger) getOrCreateLocked(assetID string) *orderbook.Position {
	p, ok := l.positions[assetID]
	if !ok {
		p = &orderbook.Position{AssetID: assetID}
		l.positions[assetID] = p
	}
	return p
}

// ApplyFill updates the position for trade.AssetID per the weighted-average-
// cost rule with sign-flip realization (spec §4.3): a same-direction fill
// (or a fill against a flat position) extends the position at a
// size-weighted average price. An opposite-direction fill realizes P&L on
// the closed quantity at (exit-entry) for longs / (entry-exit) for shorts;
// if the fill's size exceeds the open quantity, the residual opens a new
// position in the opposite direction at the trade price.
func (l *Ledger) ApplyFill(trade orderbook.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.getOrCreateLocked(trade.AssetID)
	signedFillQty := trade.Size
	if trade.Side == orderbook.Sell {
		signedFillQty = signedFillQty.Neg()
	}
	fillQty := signedFillQty.IntPart() // integer shares, per spec §3
	if fillQty == 0 {
		fillQty = roundToInt(signedFillQty)
	}

	switch {
	case pos.Quantity == 0 || sameSign(pos.Quantity, fillQty):
		extendPosition(pos, fillQty, trade.Price)
	default:
		closeOrFlipPosition(pos, fillQty, trade.Price)
	}

	pos.LastUpdated = trade.Timestamp
	if pos.LastUpdated.IsZero() {
		pos.LastUpdated = time.Now()
	}
}

func roundToInt(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

func sameSign(qty, delta int64) bool {
	if qty == 0 || delta == 0 {
		return true
	}
	return (qty > 0) == (delta > 0)
}

// extendPosition handles a fill in the same direction as the existing
// position (or against a flat position): new avg price is the size-weighted
// average of old and new cost.
func extendPosition(pos *orderbook.Position, fillQty int64, price decimal.Decimal) {
	oldQty := decimal.NewFromInt(pos.Quantity).Abs()
	newQty := decimal.NewFromInt(fillQty).Abs()
	totalQty := oldQty.Add(newQty)

	if totalQty.Sign() == 0 {
		pos.Quantity = 0
		return
	}

	totalCost := pos.AvgEntryPrice.Mul(oldQty).Add(price.Mul(newQty))
	pos.AvgEntryPrice = totalCost.Div(totalQty)
	pos.Quantity += fillQty
}

// closeOrFlipPosition handles a fill opposite the existing position: it
// realizes P&L on the closed quantity and, if the fill size exceeds the
// open quantity, opens a new position in the opposite direction at the
// trade price for the residual.
func closeOrFlipPosition(pos *orderbook.Position, fillQty int64, price decimal.Decimal) {
	openQty := pos.Quantity // signed, opposite sign to fillQty
	closeQty := fillQty
	if abs64(fillQty) > abs64(openQty) {
		// Close the whole open position; only the matching magnitude closes.
		closeQty = -openQty
	}

	closeSize := decimal.NewFromInt(abs64(closeQty))
	var legPnL decimal.Decimal
	if openQty > 0 {
		// Closing a long: realized = (exit - entry) * closed size.
		legPnL = price.Sub(pos.AvgEntryPrice).Mul(closeSize)
	} else {
		// Closing a short: realized = (entry - exit) * closed size.
		legPnL = pos.AvgEntryPrice.Sub(price).Mul(closeSize)
	}
	pos.RealizedPnL = pos.RealizedPnL.Add(legPnL)
	pos.Quantity += closeQty

	residual := fillQty - closeQty
	if residual == 0 {
		if pos.Quantity == 0 {
			pos.AvgEntryPrice = decimal.Zero
			pos.UnrealizedPnL = decimal.Zero
		}
		return
	}
	// Residual opens a new position in fillQty's direction at the trade price.
	pos.Quantity = residual
	pos.AvgEntryPrice = price
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Position returns a copy of the current position for an asset. ok is
// false if no fill has ever been observed for it.
func (l *Ledger) Position(assetID string) (orderbook.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[assetID]
	if !ok {
		return orderbook.Position{}, false
	}
	return *p, true
}

// SetPosition restores a position from persistence (used on restart).
func (l *Ledger) SetPosition(pos orderbook.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := pos
	l.positions[pos.AssetID] = &cp
}

// UpdateUnrealized recomputes unrealized P&L for an asset given the current
// mid: (current - entry) * qty for longs, symmetric for shorts. A flat
// position always has zero unrealized P&L.
func (l *Ledger) UpdateUnrealized(assetID string, mid decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[assetID]
	if !ok {
		return
	}
	if p.Quantity == 0 {
		p.UnrealizedPnL = decimal.Zero
		return
	}
	qty := decimal.NewFromInt(p.Quantity)
	p.UnrealizedPnL = mid.Sub(p.AvgEntryPrice).Mul(qty)
}

// GrossExposure returns Σ|qty|*avg_entry across all assets.
func (l *Ledger) GrossExposure() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total decimal.Decimal
	for _, p := range l.positions {
		total = total.Add(p.Exposure())
	}
	return total
}

// NetExposure returns Σ qty*avg_entry (signed) across all assets.
func (l *Ledger) NetExposure() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total decimal.Decimal
	for _, p := range l.positions {
		total = total.Add(p.SignedExposure())
	}
	return total
}

// TotalPnL returns the sum of realized + unrealized P&L across all assets.
func (l *Ledger) TotalPnL() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total decimal.Decimal
	for _, p := range l.positions {
		total = total.Add(p.RealizedPnL).Add(p.UnrealizedPnL)
	}
	return total
}

// TotalRealized returns the sum of realized P&L across all assets.
func (l *Ledger) TotalRealized() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total decimal.Decimal
	for _, p := range l.positions {
		total = total.Add(p.RealizedPnL)
	}
	return total
}

// TotalUnrealized returns the sum of unrealized P&L across all assets.
func (l *Ledger) TotalUnrealized() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total decimal.Decimal
	for _, p := range l.positions {
		total = total.Add(p.UnrealizedPnL)
	}
	return total
}

// NumPositions returns the count of assets with a non-zero quantity.
func (l *Ledger) NumPositions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, p := range l.positions {
		if p.Quantity != 0 {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of every tracked position, keyed by asset id.
func (l *Ledger) Snapshot() map[string]orderbook.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]orderbook.Position, len(l.positions))
	for id, p := range l.positions {
		out[id] = *p
	}
	return out
}
