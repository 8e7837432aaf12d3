// Package risk implements the pre-trade Risk Gate (C4): an admission check
// the Order Manager consults before placing each order, a soft size
// throttle, and a sticky halt driven by a daily loss circuit breaker.
//
// This is a synchronous, per-order gate — unlike the teacher's risk.Manager,
// which ran as a standalone goroutine aggregating PositionReports over a
// channel and emitting KillSignals for the engine to consume asynchronously.
// The spec's Risk Gate is consulted inline by the Order Manager on every
// prospective order, so Gate exposes plain mutex-guarded methods instead of
// a report/kill channel pair.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/inventory"
	"polymarket-mm/pkg/orderbook"
)

// Gate enforces portfolio-level risk limits ahead of order placement.
type Gate struct {
	cfg config.RiskConfig

	mu              sync.Mutex
	halted          bool
	haltReason      string
	dailyBaselinePnL decimal.Decimal
	lastResetDay    time.Time // UTC midnight of the current loss window
}

// NewGate constructs a risk gate from config. The daily loss window starts
// anchored to the current UTC day.
func NewGate(cfg config.RiskConfig) *Gate {
	return &Gate{
		cfg:          cfg,
		lastResetDay: utcMidnight(time.Now()),
	}
}

func utcMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// CheckOrderAllowed is the pre-trade admission check. It rejects when the
// gate is halted, when the resulting |quantity| would exceed
// max_position_per_market, when gross_exposure + price*size would exceed
// max_total_exposure, or when the resulting signed net exposure would
// exceed max_inventory_imbalance in absolute value.
func (g *Gate) CheckOrderAllowed(ledger *inventory.Ledger, assetID string, side orderbook.Side, size, price decimal.Decimal) (bool, string) {
	g.mu.Lock()
	halted, reason := g.halted, g.haltReason
	g.mu.Unlock()
	if halted {
		return false, reason
	}

	pos, _ := ledger.Position(assetID)
	signedDelta := size.IntPart()
	if side == orderbook.Sell {
		signedDelta = -signedDelta
	}
	newQty := pos.Quantity + signedDelta

	if g.cfg.MaxPositionPerMarket > 0 && abs64(newQty) > g.cfg.MaxPositionPerMarket {
		return false, "max_position_per_market would be exceeded"
	}

	if g.cfg.MaxTotalExposure.Sign() > 0 {
		incremental := price.Mul(size)
		projected := ledger.GrossExposure().Add(incremental)
		if projected.GreaterThan(g.cfg.MaxTotalExposure) {
			return false, "max_total_exposure would be exceeded"
		}
	}

	if g.cfg.MaxInventoryImbalance > 0 {
		incrementalSigned := price.Mul(size)
		if side == orderbook.Sell {
			incrementalSigned = incrementalSigned.Neg()
		}
		newNet := ledger.NetExposure().Add(incrementalSigned)
		if newNet.Abs().GreaterThan(decimal.NewFromInt(g.cfg.MaxInventoryImbalance)) {
			return false, "max_inventory_imbalance would be exceeded"
		}
	}

	return true, ""
}

// CalculateSizeAdjustment reduces baseSize by up to 50% when the trade
// would push further into an already-skewed side: reduction =
// min(0.5, |qty|/max_imbalance), applied to buys when qty >
// max_imbalance/2 and symmetrically for sells. This is a soft throttle,
// not a rejection.
func (g *Gate) CalculateSizeAdjustment(ledger *inventory.Ledger, assetID string, side orderbook.Side, baseSize decimal.Decimal) decimal.Decimal {
	if g.cfg.MaxInventoryImbalance <= 0 {
		return baseSize
	}
	pos, _ := ledger.Position(assetID)
	qty := pos.Quantity
	half := g.cfg.MaxInventoryImbalance / 2

	skewed := (side == orderbook.Buy && qty > half) || (side == orderbook.Sell && qty < -half)
	if !skewed {
		return baseSize
	}

	ratio := decimal.NewFromInt(abs64(qty)).Div(decimal.NewFromInt(g.cfg.MaxInventoryImbalance))
	half5 := decimal.NewFromFloat(0.5)
	reduction := ratio
	if reduction.GreaterThan(half5) {
		reduction = half5
	}
	return baseSize.Mul(decimal.NewFromInt(1).Sub(reduction))
}

// CheckDailyLoss trips the halt when total P&L (realized+unrealized) across
// the ledger falls below -max_daily_loss. On the first call after a
// UTC-midnight rollover it moves lastResetDay forward and clears
// dailyBaselinePnL; the trip test does not use the baseline, so losses
// from earlier days still count toward the limit.
func (g *Gate) CheckDailyLoss(ledger *inventory.Ledger) {
	now := time.Now()
	today := utcMidnight(now)

	g.mu.Lock()
	if today.After(g.lastResetDay) {
		g.lastResetDay = today
		g.dailyBaselinePnL = decimal.Zero
	}
	g.mu.Unlock()

	if g.cfg.MaxDailyLoss.Sign() <= 0 {
		return
	}
	totalPnL := ledger.TotalRealized().Add(ledger.TotalUnrealized())
	threshold := g.cfg.MaxDailyLoss.Neg()
	if totalPnL.LessThan(threshold) {
		g.Halt("max daily loss breached")
	}
}

// Halt engages the sticky halt. While halted, CheckOrderAllowed rejects
// every order; the control loop keeps running so positions continue to
// mark-to-market and the operator can still observe state.
func (g *Gate) Halt(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.halted = true
	g.haltReason = reason
}

// Resume clears the halt.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.halted = false
	g.haltReason = ""
}

// IsHalted reports whether the gate currently rejects every order.
func (g *Gate) IsHalted() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halted, g.haltReason
}

// Snapshot is the risk metrics view exposed by the read-only API (spec
// §4.4's "risk metrics snapshot").
type Snapshot struct {
	TotalExposure          decimal.Decimal
	MaxPositionSize        int64
	CurrentMaxPosition     int64
	DailyPnL               decimal.Decimal
	UnrealizedPnL          decimal.Decimal
	RealizedPnL            decimal.Decimal
	NumPositions           int
	InventoryImbalanceRatio decimal.Decimal // net/gross, or 0 if gross is 0
	Halted                 bool
	HaltReason             string
}

// RiskSnapshot computes the current aggregate risk metrics.
func (g *Gate) RiskSnapshot(ledger *inventory.Ledger) Snapshot {
	gross := ledger.GrossExposure()
	net := ledger.NetExposure()

	ratio := decimal.Zero
	if gross.Sign() != 0 {
		ratio = net.Div(gross)
	}

	var currentMax int64
	for _, p := range ledger.Snapshot() {
		if v := abs64(p.Quantity); v > currentMax {
			currentMax = v
		}
	}

	halted, reason := g.IsHalted()

	return Snapshot{
		TotalExposure:           gross,
		MaxPositionSize:         g.cfg.MaxPositionPerMarket,
		CurrentMaxPosition:      currentMax,
		DailyPnL:                ledger.TotalRealized().Add(ledger.TotalUnrealized()),
		UnrealizedPnL:           ledger.TotalUnrealized(),
		RealizedPnL:             ledger.TotalRealized(),
		NumPositions:            ledger.NumPositions(),
		InventoryImbalanceRatio: ratio,
		Halted:                  halted,
		HaltReason:              reason,
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
