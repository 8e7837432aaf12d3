package quote

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"
)

const historyCapacity = 100

// priceHistory buffers recent mids for the optional smart extension: a
// realized-volatility estimate and a short-horizon momentum signal, both
// grounded on spec §4.2's "smart extension" subclass description.
type priceHistory struct {
	mu   sync.Mutex
	mids []float64
}

func newPriceHistory() *priceHistory {
	return &priceHistory{mids: make([]float64, 0, historyCapacity)}
}

// Observe appends a new mid, evicting the oldest once the buffer is full.
func (h *priceHistory) Observe(mid decimal.Decimal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, _ := mid.Float64()
	h.mids = append(h.mids, f)
	if len(h.mids) > historyCapacity {
		h.mids = h.mids[len(h.mids)-historyCapacity:]
	}
}

// RealizedVolatility returns the std-dev of the 20 log returns across the
// last 21 mids, rescaled into [0.5, 3.0]. Returns 1.0 (neutral) when there is not
// yet enough history.
func (h *priceHistory) RealizedVolatility() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.mids)
	if n < 21 {
		return 1.0
	}
	window := h.mids[n-21:]
	returns := make([]float64, 0, 20)
	for i := 1; i < len(window); i++ {
		if window[i-1] <= 0 || window[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(window[i]/window[i-1]))
	}
	if len(returns) < 2 {
		return 1.0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stddev := math.Sqrt(variance)

	// Rescale: a raw per-tick stddev of binary-market log returns is tiny;
	// the scale factor maps a "typical" stddev to the middle of [0.5, 3.0].
	const scale = 400.0
	rescaled := 0.5 + stddev*scale
	return clamp(rescaled, 0.5, 3.0)
}

// Momentum compares the mean of the last 5 mids to the mean of the prior 5,
// returning the difference. Returns 0 when there is not yet enough history.
func (h *priceHistory) Momentum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.mids)
	if n < 10 {
		return 0
	}
	recent := h.mids[n-5:]
	prior := h.mids[n-10 : n-5]
	return mean(recent) - mean(prior)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
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
