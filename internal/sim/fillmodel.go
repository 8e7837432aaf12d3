package sim

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/orderbook"
)

const (
	baseFillProb        = 0.01
	volumeScaleDivisor  = 10.0
	volumeScaleCap      = 3.0
	queueProgressFloor  = 0.2
	queueProgressRange  = 0.8
	adverseMultiplier   = 3.0
	favorableMultiplier = 0.3

	tradeWindow       = 60 * time.Second
	midHistoryWindow  = 5 * time.Minute
)

// recentVolumePerSecond sums TradeSample.Size within the trailing 60s window
// and divides by the window length, the rate the fill model scales against.
func recentVolumePerSecond(state *orderbook.MarketState, now time.Time) decimal.Decimal {
	var total decimal.Decimal
	cutoff := now.Add(-tradeWindow)
	for _, s := range state.TradeWindow {
		if s.At.After(cutoff) {
			total = total.Add(s.Size)
		}
	}
	return total.Div(decimal.NewFromInt(int64(tradeWindow / time.Second)))
}

// currentMid reads the cached best bid/ask, ok=false unless both are set.
func currentMid(state *orderbook.MarketState) (decimal.Decimal, bool) {
	if state.BestBid.Sign() == 0 || state.BestAsk.Sign() == 0 {
		return decimal.Zero, false
	}
	return state.BestBid.Add(state.BestAsk).Div(decimal.NewFromInt(2)), true
}

// fillProbability computes the per-tick fire probability for one resting
// order, per the simulator's queue-position and adverse-selection model:
// base rate, scaled by recent market volume, queue progress, and
// price movement since placement.
func fillProbability(order *orderbook.QueuedOrder, state *orderbook.MarketState, now time.Time) (prob float64, adverse bool) {
	volPerSec := recentVolumePerSecond(state, now)
	volScale := 1 + math.Min(volumeScaleCap, volPerSec.InexactFloat64()/volumeScaleDivisor)

	queueScale := 1.0
	if order.InitialQueueDepth.Sign() > 0 {
		progress := 1 - order.QueuePosition.Div(order.InitialQueueDepth).InexactFloat64()
		queueScale = queueProgressFloor + queueProgressRange*progress
		queueScale = clamp(queueScale, queueProgressFloor, 1.0)
	}

	selectionScale := 1.0
	if mid, ok := currentMid(state); ok && order.MidAtPlacement.Sign() != 0 {
		priceMove := mid.Sub(order.MidAtPlacement)
		switch order.Order.Side {
		case orderbook.Buy:
			if priceMove.Sign() < 0 {
				selectionScale, adverse = adverseMultiplier, true
			} else if priceMove.Sign() > 0 {
				selectionScale = favorableMultiplier
			}
		case orderbook.Sell:
			if priceMove.Sign() > 0 {
				selectionScale, adverse = adverseMultiplier, true
			} else if priceMove.Sign() < 0 {
				selectionScale = favorableMultiplier
			}
		}
	}

	prob = clamp(baseFillProb*volScale*queueScale*selectionScale, 0, 1)
	return prob, adverse
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// partialFillSize returns the size to fill on a tick's fire: at least 1
// share, half the rolling volume rate, capped at what remains on the order.
func partialFillSize(volPerSec, remaining decimal.Decimal) decimal.Decimal {
	size := volPerSec.Mul(decimal.NewFromFloat(0.5))
	one := decimal.NewFromInt(1)
	if size.LessThan(one) {
		size = one
	}
	if size.GreaterThan(remaining) {
		size = remaining
	}
	return size
}

// appendMid appends a mid-price sample and evicts anything older than
// window, keeping MidHistory a rolling buffer.
func appendMid(history []orderbook.MidSample, sample orderbook.MidSample, window time.Duration) []orderbook.MidSample {
	history = append(history, sample)
	return pruneOlderThan(history, sample.At, window)
}

func pruneOlderThan(history []orderbook.MidSample, now time.Time, window time.Duration) []orderbook.MidSample {
	cutoff := now.Add(-window)
	i := 0
	for i < len(history) && history[i].At.Before(cutoff) {
		i++
	}
	return history[i:]
}

// appendTradeSample appends a market-trade sample and evicts anything
// older than window, keeping TradeWindow a rolling buffer.
func appendTradeSample(window []orderbook.TradeSample, sample orderbook.TradeSample, dur time.Duration) []orderbook.TradeSample {
	window = append(window, sample)
	cutoff := sample.At.Add(-dur)
	i := 0
	for i < len(window) && window[i].At.Before(cutoff) {
		i++
	}
	return window[i:]
}
