package quote

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/orderbook"
)

// tradeSample is one observed market trade (not necessarily our own fill)
// used to maintain the adverse-selection factor.
type tradeSample struct {
	side orderbook.Side
	size decimal.Decimal
	at   time.Time
}

// FlowTracker maintains the adverse-selection factor over a rolling window
// of market trades, grounded on the teacher's FlowTracker
// (internal/strategy/flow_tracker.go) eviction idiom but generalized from
// our own fills to every observed market trade, and from a toxicity-score
// blend down to the spec's single imbalance-ratio formula.
type FlowTracker struct {
	mu     sync.Mutex
	window time.Duration
	trades []tradeSample
}

// NewFlowTracker builds a tracker with the given rolling window.
func NewFlowTracker(window time.Duration) *FlowTracker {
	return &FlowTracker{window: window, trades: make([]tradeSample, 0, 64)}
}

// Observe records a market trade.
func (ft *FlowTracker) Observe(side orderbook.Side, size decimal.Decimal, at time.Time) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.trades = append(ft.trades, tradeSample{side: side, size: size, at: at})
	ft.evictStaleLocked(at)
}

func (ft *FlowTracker) evictStaleLocked(now time.Time) {
	if len(ft.trades) == 0 {
		return
	}
	cutoff := now.Add(-ft.window)
	idx := 0
	for idx < len(ft.trades) && !ft.trades[idx].at.After(cutoff) {
		idx++
	}
	if idx > 0 {
		ft.trades = ft.trades[idx:]
	}
}

// Factor returns the adverse-selection spread multiplier: 1.0 when fewer
// than 5 trades are in the window, otherwise 1 + imbalance/2 where
// imbalance = |buy_vol - sell_vol| / total_vol.
func (ft *FlowTracker) Factor() decimal.Decimal {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.evictStaleLocked(time.Now())

	if len(ft.trades) < 5 {
		return decimal.NewFromInt(1)
	}

	var buyVol, sellVol decimal.Decimal
	for _, tr := range ft.trades {
		if tr.side == orderbook.Buy {
			buyVol = buyVol.Add(tr.size)
		} else {
			sellVol = sellVol.Add(tr.size)
		}
	}
	total := buyVol.Add(sellVol)
	if total.Sign() == 0 {
		return decimal.NewFromInt(1)
	}

	imbalance := buyVol.Sub(sellVol).Abs().Div(total)
	return decimal.NewFromInt(1).Add(imbalance.Div(decimal.NewFromInt(2)))
}

// Count returns the number of trades currently in the window.
func (ft *FlowTracker) Count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.evictStaleLocked(time.Now())
	return len(ft.trades)
}
