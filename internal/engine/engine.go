// Package engine is the central orchestrator of the market-making bot.
//
// It wires together every component:
//
//  1. feed.Feed mirrors order books and delivers fills/order events (C1).
//  2. quote.Engine derives fair value, spread, and quote levels (C2).
//  3. inventory.Ledger is the single-writer position/P&L ledger (C3).
//  4. risk.Gate admits or rejects orders and trips the daily-loss halt (C4).
//  5. orders.Manager reconciles desired quotes against live orders (C5),
//     against either the live venue client or the Paper-Trading Simulator
//     (C6) when cfg.DryRun is set — both satisfy orders.VenueClient.
//
// Lifecycle: New() → Start() → [runs until ctx is cancelled] → Stop().
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/exchange"
	"polymarket-mm/internal/feed"
	"polymarket-mm/internal/inventory"
	"polymarket-mm/internal/orders"
	"polymarket-mm/internal/quote"
	"polymarket-mm/internal/risk"
	"polymarket-mm/internal/sim"
	"polymarket-mm/internal/store"
	"polymarket-mm/pkg/orderbook"
	"polymarket-mm/pkg/types"
)

// instrument is the per-asset metadata the control loop needs beyond what
// the Feed/Ledger/Quote pipeline already tracks.
type instrument struct {
	assetID       string
	conditionID   string
	hoursToExpiry *decimal.Decimal
}

// PnLPoint is one sample in the bounded P&L history the read-only API
// surfaces to a dashboard.
type PnLPoint struct {
	At         time.Time
	Realized   decimal.Decimal
	Unrealized decimal.Decimal
}

// historyLimit bounds fillHistory and pnlHistory to the most recent entries.
const historyLimit = 100

// Engine orchestrates feed, quote, inventory, risk, and order management
// into one per-tick pipeline, run in either push or polling mode.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	feed      *feed.Feed
	quoteEng  *quote.Engine
	ledger    *inventory.Ledger
	riskGate  *risk.Gate
	ordersMgr *orders.Manager
	store     *store.Store

	client *exchange.Client // nil in dry-run mode
	auth   *exchange.Auth   // nil in dry-run mode
	simVen *sim.Simulator   // nil in live mode

	mktFeed *exchange.WSFeed // nil unless push mode and not dry-run's own feed
	usrFeed *exchange.WSFeed

	mu          sync.RWMutex
	instruments map[string]*instrument

	dirty   map[string]bool
	dirtyMu sync.Mutex

	stopped bool
	running bool
	stopMu  sync.Mutex

	histMu      sync.Mutex
	fillHistory []orderbook.Trade
	pnlHistory  []PnLPoint

	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	groupCtx context.Context
}

// New wires every component from cfg. In live mode it derives L2 API
// credentials via L1 auth if not already configured; in dry-run mode it
// builds a Paper-Trading Simulator instead of a venue client, and both
// implementations satisfy orders.VenueClient so the Order Manager is built
// identically either way.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	logger = logger.With("component", "engine")

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ledger := inventory.NewLedger()
	restored, err := st.LoadAll()
	if err != nil {
		logger.Warn("failed to restore positions from store", "error", err)
	}
	for assetID, pos := range restored {
		ledger.SetPosition(pos)
		logger.Info("restored position", "asset", assetID, "quantity", pos.Quantity)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:         cfg,
		logger:      logger,
		quoteEng:    quote.NewEngine(cfg.Quote),
		ledger:      ledger,
		riskGate:    risk.NewGate(cfg.Risk),
		store:       st,
		instruments: make(map[string]*instrument),
		dirty:       make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
	}

	var venueClient orders.VenueClient
	var restClient feed.RestClient

	if cfg.DryRun {
		startingBalance := decimal.NewFromInt(10000)
		if cfg.Risk.MaxTotalExposure.Sign() > 0 {
			startingBalance = cfg.Risk.MaxTotalExposure
		}
		e.simVen = sim.NewSimulator(cfg.Simulator, startingBalance, logger)
		venueClient = e.simVen
		// Paper trading still needs real market data; a REST client with no
		// wallet auth is enough to read books and trade history.
		e.client = exchange.NewClient(cfg, &exchange.Auth{}, logger)
		restClient = e.client
	} else {
		auth, err := exchange.NewAuth(cfg)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("build auth: %w", err)
		}
		client := exchange.NewClient(cfg, auth, logger)
		if !auth.HasL2Credentials() {
			logger.Info("no L2 credentials, deriving API key via L1")
			creds, err := client.DeriveAPIKey(context.Background())
			if err != nil {
				cancel()
				return nil, fmt.Errorf("derive API key: %w", err)
			}
			auth.SetCredentials(*creds)
		}
		e.auth = auth
		e.client = client
		venueClient = client
		restClient = client

		if cfg.PushMode {
			e.mktFeed = exchange.NewMarketFeed(cfg.API.WSMarketURL, logger)
			e.usrFeed = exchange.NewUserFeed(cfg.API.WSUserURL, auth, logger)
		}
	}

	e.ordersMgr = orders.NewManager(cfg.Orders, venueClient, logger)
	e.feed = feed.NewFeed(cfg, restClient, e.mktFeed, e.usrFeed, logger)

	return e, nil
}

// Track registers an instrument for quoting: subscribes its feed, and
// (in push mode) its user-fill channel keyed by conditionID.
func (e *Engine) Track(ctx context.Context, tokenID, conditionID string, hoursToExpiry *decimal.Decimal) error {
	if err := e.feed.Track(ctx, tokenID, conditionID); err != nil {
		return err
	}
	e.mu.Lock()
	e.instruments[tokenID] = &instrument{assetID: tokenID, conditionID: conditionID, hoursToExpiry: hoursToExpiry}
	e.mu.Unlock()
	e.markDirty(tokenID)
	return nil
}

// Untrack removes an instrument from quoting and cancels its resting orders.
func (e *Engine) Untrack(ctx context.Context, tokenID string) {
	e.feed.Untrack(ctx, tokenID)
	e.mu.Lock()
	delete(e.instruments, tokenID)
	e.mu.Unlock()
	if err := e.ordersMgr.CancelAllOrders(ctx, tokenID); err != nil {
		e.logger.Error("cancel orders on untrack", "asset", tokenID, "error", err)
	}
}

func (e *Engine) trackedAssets() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.instruments))
	for id := range e.instruments {
		out = append(out, id)
	}
	return out
}

func (e *Engine) markDirty(assetID string) {
	e.dirtyMu.Lock()
	e.dirty[assetID] = true
	e.dirtyMu.Unlock()
}

func (e *Engine) drainDirty() []string {
	e.dirtyMu.Lock()
	defer e.dirtyMu.Unlock()
	if len(e.dirty) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.dirty))
	for id := range e.dirty {
		out = append(out, id)
	}
	e.dirty = make(map[string]bool)
	return out
}

// Start launches every background goroutine — the feed, the simulator (if
// dry-run), the fill/order-event dispatchers, and the tick loop — under an
// errgroup so a fatal startup failure in any one of them surfaces promptly.
// It returns once every goroutine has been launched; use Wait to block
// until the run ends.
func (e *Engine) Start() error {
	g, gctx := errgroup.WithContext(e.ctx)
	e.group = g
	e.groupCtx = gctx
	e.stopMu.Lock()
	e.running = true
	e.stopMu.Unlock()

	g.Go(func() error {
		if err := e.feed.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("feed: %w", err)
		}
		return nil
	})

	if e.simVen != nil {
		g.Go(func() error {
			if err := e.simVen.Run(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("simulator: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error { e.dispatchFills(gctx); return nil })
	g.Go(func() error { e.dispatchOrderUpdates(gctx); return nil })

	if e.cfg.PushMode {
		g.Go(func() error { e.runPush(gctx); return nil })
	} else {
		g.Go(func() error { e.runPolling(gctx); return nil })
	}

	return nil
}

// Wait blocks until every goroutine launched by Start has returned, and
// returns the first non-nil error any of them produced.
func (e *Engine) Wait() error {
	if e.group == nil {
		return nil
	}
	return e.group.Wait()
}

// dispatchFills applies every observed fill (live or simulated) to the
// ledger and the Order Manager's local status, and feeds each fill into the
// quote engine's adverse-selection flow tracker (and, in dry-run mode, the
// simulator's volume tally). Recovers from a
// panicking handler so one malformed event cannot take down the run.
func (e *Engine) dispatchFills(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trade, ok := <-e.fillSource():
			if !ok {
				return
			}
			e.safely("dispatch fill", func() {
				e.ledger.ApplyFill(trade)
				e.ordersMgr.ApplyFillStatus(trade.OrderID, trade.Size)
				e.quoteEng.ObserveTrade(trade.Side, trade.Size, trade.Timestamp)
				if e.simVen != nil {
					e.simVen.RecordMarketTrade(trade.AssetID, trade.Side, trade.Size, trade.Timestamp)
				}
				e.appendFillHistory(trade)
				e.markDirty(trade.AssetID)
			})
		}
	}
}

// fillSource is the channel fills are read from: the feed's fill channel in
// live mode, the simulator's own fill channel in dry-run mode (simulated
// fills never reach the feed).
func (e *Engine) fillSource() <-chan orderbook.Trade {
	if e.simVen != nil {
		return e.simVen.Fills()
	}
	return e.feed.Fills()
}

func (e *Engine) dispatchOrderUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-e.feed.OrderUpdates():
			if !ok {
				return
			}
			e.safely("dispatch order update", func() {
				if u.Kind == feed.Cancellation {
					e.ordersMgr.HandleCancellationEvent(u.OrderID)
				}
			})
		}
	}
}

// safely runs fn, recovering from a panic and logging it rather than
// propagating — a single malformed event should not stop the control loop.
func (e *Engine) safely(label string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("recovered from panic", "during", label, "panic", r)
		}
	}()
	fn()
}

// runPush drives the cooperative 500ms loop: whenever an asset's book
// changes, it's marked dirty; every tick, dirty assets run the full
// C2→C4→C5 pipeline. Housekeeping (stale-order sweep, venue sync) runs on
// its own slower cadence.
func (e *Engine) runPush(ctx context.Context) {
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	housekeeping := time.NewTicker(10 * time.Second)
	defer housekeeping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case assetID := <-e.feed.BookUpdates():
			e.markDirty(assetID)
		case <-tick.C:
			e.safely("push tick", func() {
				for _, assetID := range e.drainDirty() {
					e.processAsset(ctx, assetID)
				}
			})
		case <-housekeeping.C:
			e.safely("housekeeping", func() { e.runHousekeeping(ctx) })
		}
	}
}

// runPolling drives the fixed-period cycle: every tick recomputes quotes
// for all tracked instruments, then runs housekeeping; a separate 60s ticker
// logs a status line — the spec's simpler single-cadence mode for venues
// without a reliable WebSocket feed.
func (e *Engine) runPolling(ctx context.Context) {
	interval := e.cfg.Quote.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	status := time.NewTicker(60 * time.Second)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			e.safely("polling tick", func() {
				for _, assetID := range e.trackedAssets() {
					e.processAsset(ctx, assetID)
				}
				e.runHousekeeping(ctx)
			})
		case <-status.C:
			e.safely("print status", func() { e.printStatus() })
		}
	}
}

// runHousekeeping cancels stale orders, re-syncs with the venue (live mode
// only), checks the daily-loss halt, and persists positions.
func (e *Engine) runHousekeeping(ctx context.Context) {
	if n, err := e.ordersMgr.CancelStaleOrders(ctx); err != nil {
		e.logger.Error("cancel stale orders", "error", err)
	} else if n > 0 {
		e.logger.Info("cancelled stale orders", "count", n)
	}

	if e.simVen == nil {
		for _, assetID := range e.trackedAssets() {
			if err := e.ordersMgr.SyncWithExchange(ctx, assetID); err != nil {
				e.logger.Warn("sync with exchange", "asset", assetID, "error", err)
			}
		}
	}

	e.riskGate.CheckDailyLoss(e.ledger)

	for assetID, pos := range e.ledger.Snapshot() {
		if err := e.store.SavePosition(assetID, pos); err != nil {
			e.logger.Error("save position", "asset", assetID, "error", err)
		}
	}

	e.appendPnLPoint()
}

func (e *Engine) printStatus() {
	snap := e.riskGate.RiskSnapshot(e.ledger)
	e.logger.Info("status",
		"instruments", len(e.trackedAssets()),
		"gross_exposure", snap.TotalExposure,
		"realized_pnl", snap.RealizedPnL,
		"unrealized_pnl", snap.UnrealizedPnL,
		"halted", snap.Halted,
	)
}

// processAsset runs the per-tick C2→C4→C5 pipeline for one instrument:
// refresh the mark, compute the desired QuoteSet, apply the admission
// probe and risk sizing, then reconcile orders against it.
func (e *Engine) processAsset(ctx context.Context, assetID string) {
	book, ok := e.feed.GetBook(assetID)
	if !ok {
		return
	}
	mid, ok := book.Mid()
	if !ok {
		return
	}
	if e.simVen != nil {
		e.simVen.UpdateMarket(assetID, book)
	}
	e.ledger.UpdateUnrealized(assetID, mid)

	pos, _ := e.ledger.Position(assetID)

	e.mu.RLock()
	inst := e.instruments[assetID]
	e.mu.RUnlock()
	var hoursToExpiry *decimal.Decimal
	if inst != nil {
		hoursToExpiry = inst.hoursToExpiry
	}

	halted, reason := e.riskGate.IsHalted()
	if halted {
		if err := e.ordersMgr.CancelAllOrders(ctx, assetID); err != nil {
			e.logger.Error("cancel all orders while halted", "asset", assetID, "error", err)
		}
		e.logger.Warn("quoting suspended: risk gate halted", "reason", reason, "asset", assetID)
		return
	}

	admission := quote.ShouldQuote(book, pos.Quantity, e.cfg.Quote.MaxInventoryForQuoting, hoursToExpiry)
	if !admission.Allowed {
		if err := e.ordersMgr.CancelAllOrders(ctx, assetID); err != nil {
			e.logger.Error("cancel all orders on admission reject", "asset", assetID, "error", err)
		}
		return
	}

	qs, err := e.quoteEng.CalculateQuotes(assetID, book, pos.Quantity, decimal.NewFromInt(1), hoursToExpiry, nil)
	if err != nil {
		e.logger.Error("calculate quotes", "asset", assetID, "error", err)
		return
	}
	if qs == nil {
		return
	}

	qs = e.applyRiskSizing(assetID, *qs, admission)

	if _, err := e.ordersMgr.UpdateQuotes(ctx, assetID, *qs); err != nil {
		e.logger.Error("update quotes", "asset", assetID, "error", err)
	}
}

// applyRiskSizing drops a blocked side entirely and rescales every
// remaining quote's size per the Risk Gate's soft throttle, rejecting
// (dropping) any quote the gate's hard admission check refuses outright.
func (e *Engine) applyRiskSizing(assetID string, qs orderbook.QuoteSet, admission quote.Admission) *orderbook.QuoteSet {
	out := orderbook.QuoteSet{AssetID: qs.AssetID, FairValue: qs.FairValue, Spread: qs.Spread, Provenance: qs.Provenance}

	filterSide := func(quotes []orderbook.Quote, side orderbook.Side) []orderbook.Quote {
		if admission.BlockedSide == side {
			return nil
		}
		kept := make([]orderbook.Quote, 0, len(quotes))
		for _, q := range quotes {
			size := e.riskGate.CalculateSizeAdjustment(e.ledger, assetID, side, q.Size)
			if size.Sign() <= 0 {
				continue
			}
			allowed, _ := e.riskGate.CheckOrderAllowed(e.ledger, assetID, side, size, q.Price)
			if !allowed {
				continue
			}
			q.Size = size
			kept = append(kept, q)
		}
		return kept
	}

	out.Bids = filterSide(qs.Bids, orderbook.Buy)
	out.Asks = filterSide(qs.Asks, orderbook.Sell)
	return &out
}

// Cashout is the emergency-flatten operation: cancel every live order, then
// walk each non-flat position to zero with an aggressive GTC order priced
// to cross the book immediately (sell through the best bid for a long,
// buy through the best ask for a short), and finally stop the loop.
func (e *Engine) Cashout(ctx context.Context) error {
	e.logger.Warn("cashout requested: flattening all positions")

	for _, assetID := range e.trackedAssets() {
		if err := e.ordersMgr.CancelAllOrders(ctx, assetID); err != nil {
			e.logger.Error("cashout: cancel orders", "asset", assetID, "error", err)
		}
	}

	for assetID, pos := range e.ledger.Snapshot() {
		if pos.Quantity == 0 {
			continue
		}
		if err := e.closePosition(ctx, assetID, pos); err != nil {
			e.logger.Error("cashout: close position", "asset", assetID, "error", err)
		}
	}

	e.Stop()
	return nil
}

// closePosition issues one aggressive GTC order sized to flatten pos,
// priced to walk through the opposite side of the book so it fills
// immediately rather than resting.
func (e *Engine) closePosition(ctx context.Context, assetID string, pos orderbook.Position) error {
	book, ok := e.feed.GetBook(assetID)
	if !ok {
		return fmt.Errorf("no book for %s", assetID)
	}

	size := decimal.NewFromInt(pos.Quantity).Abs()
	var side types.Side
	var price decimal.Decimal

	if pos.IsLong() {
		side = types.SELL
		if best, ok := book.BestBid(); ok {
			price = best
		} else {
			return fmt.Errorf("no bid to sell into for %s", assetID)
		}
		price = orderbook.RoundTick(price.Sub(decimal.NewFromFloat(0.05)))
	} else {
		side = types.BUY
		if best, ok := book.BestAsk(); ok {
			price = best
		} else {
			return fmt.Errorf("no ask to buy from for %s", assetID)
		}
		price = orderbook.RoundTick(price.Add(decimal.NewFromFloat(0.05)))
	}
	if price.LessThan(decimal.NewFromFloat(0.01)) {
		price = decimal.NewFromFloat(0.01)
	}
	if price.GreaterThan(decimal.NewFromFloat(0.99)) {
		price = decimal.NewFromFloat(0.99)
	}

	var venue orders.VenueClient = e.client
	if e.simVen != nil {
		venue = e.simVen
	}
	_, err := venue.PostOrders(ctx, []types.UserOrder{{
		TokenID:   assetID,
		Side:      side,
		Price:     price,
		Size:      size,
		OrderType: types.OrderTypeGTC,
		TickSize:  types.Tick001,
	}}, false)
	return err
}

// Stop cancels the run context, sends a cancel-all to the venue as a safety
// net, persists final positions, and waits for every goroutine to return.
func (e *Engine) Stop() {
	e.stopMu.Lock()
	if e.stopped {
		e.stopMu.Unlock()
		return
	}
	e.stopped = true
	e.stopMu.Unlock()

	e.logger.Info("shutting down")
	e.cancel()

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelCancel()
	if err := e.ordersMgr.CancelAllOrders(cancelCtx, ""); err != nil {
		e.logger.Error("cancel all orders on shutdown", "error", err)
	}

	for assetID, pos := range e.ledger.Snapshot() {
		if err := e.store.SavePosition(assetID, pos); err != nil {
			e.logger.Error("save position on shutdown", "asset", assetID, "error", err)
		}
	}

	if err := e.Wait(); err != nil {
		e.logger.Error("goroutine error during shutdown", "error", err)
	}

	if e.mktFeed != nil {
		e.mktFeed.Close()
	}
	if e.usrFeed != nil {
		e.usrFeed.Close()
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error("close store", "error", err)
	}

	e.logger.Info("shutdown complete")
}

// RiskSnapshot exposes the current risk metrics, for the read-only API.
func (e *Engine) RiskSnapshot() risk.Snapshot {
	return e.riskGate.RiskSnapshot(e.ledger)
}

// Config exposes the running configuration, for the read-only API. Reflects
// the latest UpdateConfig call.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Positions exposes a copy of every tracked position, for the read-only API.
func (e *Engine) Positions() map[string]orderbook.Position {
	return e.ledger.Snapshot()
}

// LiveOrders exposes every tracked order, for the read-only API.
func (e *Engine) LiveOrders(filter orders.Filter) []orderbook.ManagedOrder {
	return e.ordersMgr.GetLiveOrders(filter)
}

// Book exposes a tracked instrument's current order book, for the read-only API.
func (e *Engine) Book(assetID string) (*orderbook.Book, bool) {
	return e.feed.GetBook(assetID)
}

// IsDryRun reports whether this run is paper-trading against the Simulator.
func (e *Engine) IsDryRun() bool {
	return e.simVen != nil
}

// SimulatorStats exposes the Paper-Trading Simulator's bookkeeping; the
// second result is false in live mode.
func (e *Engine) SimulatorStats() (sim.Stats, bool) {
	if e.simVen == nil {
		return sim.Stats{}, false
	}
	return e.simVen.Stats(), true
}

// UpdateConfig replaces the quote and risk parameters, rebuilding the Quote
// Engine and Risk Gate against them. Refused while running: quote/risk
// parameters are read without a lock from the hot path, so swapping them live
// would race against an in-flight tick.
func (e *Engine) UpdateConfig(quoteCfg config.QuoteConfig, riskCfg config.RiskConfig) error {
	if e.IsRunning() {
		return fmt.Errorf("update config: engine must be stopped first")
	}
	e.cfg.Quote = quoteCfg
	e.cfg.Risk = riskCfg
	e.quoteEng = quote.NewEngine(quoteCfg)
	e.riskGate = risk.NewGate(riskCfg)
	return nil
}

// IsRunning reports whether Start has been called and Stop has not.
func (e *Engine) IsRunning() bool {
	e.stopMu.Lock()
	defer e.stopMu.Unlock()
	return e.running && !e.stopped
}

// appendFillHistory records a trade in the bounded recent-fills ring,
// dropping the oldest entry once historyLimit is exceeded.
func (e *Engine) appendFillHistory(trade orderbook.Trade) {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	e.fillHistory = append(e.fillHistory, trade)
	if len(e.fillHistory) > historyLimit {
		e.fillHistory = e.fillHistory[len(e.fillHistory)-historyLimit:]
	}
}

// appendPnLPoint samples the current realized/unrealized P&L into the
// bounded history ring, dropping the oldest entry once historyLimit is
// exceeded.
func (e *Engine) appendPnLPoint() {
	snap := e.riskGate.RiskSnapshot(e.ledger)
	e.histMu.Lock()
	defer e.histMu.Unlock()
	e.pnlHistory = append(e.pnlHistory, PnLPoint{
		At:         time.Now(),
		Realized:   snap.RealizedPnL,
		Unrealized: snap.UnrealizedPnL,
	})
	if len(e.pnlHistory) > historyLimit {
		e.pnlHistory = e.pnlHistory[len(e.pnlHistory)-historyLimit:]
	}
}

// RecentFills returns a copy of the last historyLimit fills observed.
func (e *Engine) RecentFills() []orderbook.Trade {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	out := make([]orderbook.Trade, len(e.fillHistory))
	copy(out, e.fillHistory)
	return out
}

// PnLHistory returns a copy of the last historyLimit P&L samples.
func (e *Engine) PnLHistory() []PnLPoint {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	out := make([]PnLPoint, len(e.pnlHistory))
	copy(out, e.pnlHistory)
	return out
}

// TrackedAssets exposes the tracked instrument IDs, for the read-only API.
func (e *Engine) TrackedAssets() []string {
	return e.trackedAssets()
}
