// Package quote implements the Quote Engine (C2): fair-value derivation,
// spread shaping, inventory skew, level generation, and the pre-quote
// admission probe. It is grounded on the teacher's Avellaneda-Stoikov
// `strategy.Maker.computeQuotes` (internal/strategy/maker.go), generalized
// from a single-formula reservation-price model to the spec's additive
// fair-value/spread-shaping pipeline with discrete quote levels.
package quote

import (
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/pkg/orderbook"
)

var (
	oneHalf    = decimal.NewFromFloat(0.5)
	pointTwo   = decimal.NewFromFloat(0.2)
	minSize    = decimal.NewFromFloat(5.0)
	skewUnit   = decimal.NewFromFloat(0.0001) // 1e-4, fair-value skew coefficient
	skewStep   = decimal.NewFromFloat(0.005)
	depthFloor = decimal.NewFromInt(100)
	thinFactor = decimal.NewFromFloat(1.5)
)

// Engine computes QuoteSets for a single instrument at a time; it holds no
// per-asset state of its own beyond the adverse-selection flow tracker and
// (optionally) the smart-extension price history, both of which the caller
// may scope per asset.
type Engine struct {
	cfg     config.QuoteConfig
	flow    *FlowTracker
	history *priceHistory // nil unless cfg.SmartExtension is set
}

// NewEngine builds a quote engine from config. When cfg.SmartExtension is
// set, the engine also tracks a price-history buffer for the realized
// volatility and momentum signals (spec §4.2's "smart extension" subclass).
func NewEngine(cfg config.QuoteConfig) *Engine {
	e := &Engine{
		cfg:  cfg,
		flow: NewFlowTracker(cfg.FlowWindow),
	}
	if cfg.SmartExtension {
		e.history = newPriceHistory()
	}
	return e
}

// ObserveTrade feeds a market trade (not necessarily our own) into the
// adverse-selection flow tracker.
func (e *Engine) ObserveTrade(side orderbook.Side, size decimal.Decimal, at time.Time) {
	e.flow.Observe(side, size, at)
}

// Admission is the result of the pre-quote admission probe.
type Admission struct {
	Allowed     bool
	Reason      string
	BlockedSide orderbook.Side // empty unless inventory blocks one side
}

// ShouldQuote is the admission probe: it rejects quoting outright when the
// mid is absent, near resolution, or the instrument is about to expire.
// When |inventory| >= maxInventory it still allows quoting but reports
// which side the Risk Gate should reject.
func ShouldQuote(book *orderbook.Book, inventoryQty, maxInventory int64, hoursToExpiry *decimal.Decimal) Admission {
	mid, ok := book.Mid()
	if !ok {
		return Admission{Allowed: false, Reason: "no mid price available"}
	}
	if mid.LessThan(decimal.NewFromFloat(0.02)) || mid.GreaterThan(decimal.NewFromFloat(0.98)) {
		return Admission{Allowed: false, Reason: "mid near resolution bound"}
	}
	if hoursToExpiry != nil && hoursToExpiry.LessThan(decimal.NewFromInt(1)) {
		return Admission{Allowed: false, Reason: "instrument expires within the hour"}
	}

	result := Admission{Allowed: true}
	if maxInventory > 0 && abs64(inventoryQty) >= maxInventory {
		if inventoryQty > 0 {
			result.BlockedSide = orderbook.Buy
		} else {
			result.BlockedSide = orderbook.Sell
		}
	}
	return result
}

// CalculateQuotes derives a full QuoteSet for one instrument. It returns a
// nil QuoteSet (and nil error) iff the book's mid is undefined.
func (e *Engine) CalculateQuotes(
	assetID string,
	book *orderbook.Book,
	inventoryQty int64,
	volatilityFactor decimal.Decimal,
	hoursToExpiry *decimal.Decimal,
	sizeOverride *decimal.Decimal,
) (*orderbook.QuoteSet, error) {
	mid, ok := book.Mid()
	if !ok {
		return nil, nil
	}
	if e.cfg.UseWeightedMid {
		if wm, wok := book.WeightedMid(e.cfg.WeightedMidDepth); wok {
			mid = wm
		}
	}
	if e.history != nil {
		e.history.Observe(mid)
	}

	fair := e.fairValue(mid, inventoryQty)
	spread := e.shapeSpread(book, inventoryQty, volatilityFactor, hoursToExpiry)
	skew := e.inventorySkew(inventoryQty)

	if e.history != nil {
		fair = e.applyMomentum(fair)
	}

	baseSize := e.cfg.OrderSize
	if sizeOverride != nil {
		baseSize = *sizeOverride
	}

	qs := &orderbook.QuoteSet{
		AssetID:    assetID,
		FairValue:  fair,
		Spread:     spread,
		Provenance: "quote.Engine",
	}

	numLevels := e.cfg.NumLevels
	if numLevels <= 0 {
		numLevels = 1
	}
	halfSpread := spread.Div(decimal.NewFromInt(2))

	for level := 0; level < numLevels; level++ {
		l := decimal.NewFromInt(int64(level))
		offset := e.cfg.LevelSpacing.Mul(l)

		bidPrice := orderbook.RoundTick(fair.Sub(halfSpread).Sub(offset).Add(skew))
		askPrice := orderbook.RoundTick(fair.Add(halfSpread).Add(offset).Add(skew))

		sizeFactor := decimal.NewFromInt(1).Sub(pointTwo.Mul(l))
		size := baseSize.Mul(sizeFactor)
		if size.LessThan(minSize) {
			size = minSize
		}

		if bidPrice.GreaterThanOrEqual(e.cfg.MinPrice) {
			qs.Bids = append(qs.Bids, orderbook.Quote{Price: bidPrice, Size: size, Side: orderbook.Buy})
		}
		if askPrice.LessThanOrEqual(e.cfg.MaxPrice) {
			qs.Asks = append(qs.Asks, orderbook.Quote{Price: askPrice, Size: size, Side: orderbook.Sell})
		}
	}

	return qs, nil
}

// fairValue derives the reference price: mid (or weighted mid), shifted
// against inventory when the position exceeds the skew threshold, clamped
// to the configured price range.
func (e *Engine) fairValue(mid decimal.Decimal, inventoryQty int64) decimal.Decimal {
	fair := mid
	if e.cfg.InventorySkewThreshold > 0 && abs64(inventoryQty) > e.cfg.InventorySkewThreshold {
		shift := decimal.NewFromInt(inventoryQty).Mul(skewUnit)
		fair = fair.Sub(shift)
	}
	return clampDecimal(fair, e.cfg.MinPrice, e.cfg.MaxPrice)
}

// applyMomentum adds the smart extension's momentum signal to fair value
// when the 5-vs-prior-5 mean difference exceeds 0.01 in magnitude.
func (e *Engine) applyMomentum(fair decimal.Decimal) decimal.Decimal {
	momentum := e.history.Momentum()
	if momentum > 0.01 || momentum < -0.01 {
		fair = fair.Add(decimal.NewFromFloat(momentum * 0.1))
	}
	return fair
}

// shapeSpread multiplies base_spread by the volatility, inventory, expiry,
// thin-book, and adverse-selection factors in turn, clamped to the
// configured spread range.
func (e *Engine) shapeSpread(book *orderbook.Book, inventoryQty int64, volatilityFactor decimal.Decimal, hoursToExpiry *decimal.Decimal) decimal.Decimal {
	spread := e.cfg.BaseSpread

	effectiveVol := volatilityFactor
	if e.history != nil {
		realized := decimal.NewFromFloat(e.history.RealizedVolatility())
		effectiveVol = effectiveVol.Add(realized).Div(decimal.NewFromInt(2))
	}
	spread = spread.Mul(effectiveVol)

	if e.cfg.InventorySkewThreshold > 0 && abs64(inventoryQty) > e.cfg.InventorySkewThreshold {
		ratio := decimal.NewFromInt(abs64(inventoryQty)).Div(decimal.NewFromInt(e.cfg.InventorySkewThreshold))
		invFactor := decimal.NewFromInt(1).Add(ratio.Div(decimal.NewFromInt(4)))
		spread = spread.Mul(invFactor)
	}

	if hoursToExpiry != nil && hoursToExpiry.LessThan(decimal.NewFromInt(48)) {
		denom := hoursToExpiry.Div(decimal.NewFromInt(12))
		if denom.LessThan(decimal.NewFromInt(1)) {
			denom = decimal.NewFromInt(1)
		}
		expiryFactor := decimal.NewFromInt(1).Add(decimal.NewFromInt(1).Div(denom))
		spread = spread.Mul(expiryFactor)
	}

	if e.isThinBook(book) {
		spread = spread.Mul(thinFactor)
	}

	spread = spread.Mul(e.flow.Factor())

	return clampDecimal(spread, e.cfg.MinSpread, e.cfg.MaxSpread)
}

// isThinBook reports whether either side's top-5 cumulative depth is below
// the thin-book floor.
func (e *Engine) isThinBook(book *orderbook.Book) bool {
	bidDepth := orderbook.DepthWithin(book.Bids, 5)
	askDepth := orderbook.DepthWithin(book.Asks, 5)
	return bidDepth.LessThan(depthFloor) || askDepth.LessThan(depthFloor)
}

// inventorySkew is the scalar shift applied to every level's bid and ask
// once fair value and spread are known: it pushes both sides of the quote
// toward reducing inventory.
func (e *Engine) inventorySkew(inventoryQty int64) decimal.Decimal {
	if e.cfg.InventorySkewThreshold <= 0 || abs64(inventoryQty) <= e.cfg.InventorySkewThreshold {
		return decimal.Zero
	}
	ratio := decimal.NewFromInt(abs64(inventoryQty)).Div(decimal.NewFromInt(e.cfg.InventorySkewThreshold))
	shift := ratio.Mul(skewStep)
	if inventoryQty > 0 {
		return shift.Neg()
	}
	return shift
}

func clampDecimal(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
