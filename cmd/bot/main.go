// Polymarket Market Maker — an automated market-making bot for Polymarket
// binary prediction markets.
//
// Architecture:
//
//	main.go              — entry point: loads config, starts engine + scanner, waits for SIGINT/SIGTERM
//	engine/engine.go     — control loop: feed → quote → risk → orders per tick, push or polling
//	quote/engine.go      — fair-value + spread shaping, inventory skew, multi-level quotes
//	inventory/ledger.go  — single-writer position/P&L ledger, per asset
//	risk/gate.go         — pre-trade admission, soft size throttle, daily-loss halt
//	orders/manager.go    — reconciles desired quotes against live orders
//	sim/sim.go           — paper-trading fill simulator (queue position, adverse selection)
//	market/scanner.go    — polls Gamma API for wide-spread markets, ranks by opportunity score
//	market/book.go       — local order book mirror fed by WebSocket snapshots + price changes
//	exchange/client.go   — REST client for Polymarket CLOB API (place/cancel orders, fetch book)
//	exchange/auth.go     — L1 (EIP-712) and L2 (HMAC) authentication for the Polymarket API
//	exchange/ws.go       — WebSocket feeds (market data + user fills/orders) with auto-reconnect
//	store/store.go       — JSON file persistence for positions (survives restarts)
//	api/server.go        — read-only dashboard snapshot + limited start/stop/cashout control
//
// How it makes money:
//
//	The bot captures the bid-ask spread on binary prediction markets.
//	It posts a buy (bid) below mid price and a sell (ask) above mid price.
//	When both sides fill, the bot earns the spread difference. Quotes skew
//	with inventory — the more of one side the bot holds, the more it prices
//	to attract offsetting fills.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/api"
	"polymarket-mm/internal/config"
	"polymarket-mm/internal/engine"
	"polymarket-mm/internal/market"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("POLY_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Create and start engine
	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	// Start dashboard API server if enabled
	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("polymarket market maker started",
		"markets_max", cfg.Risk.MaxMarketsActive,
		"order_size", cfg.Quote.OrderSize,
		"max_exposure", cfg.Risk.MaxTotalExposure,
		"dry_run", cfg.DryRun,
	)

	// The scanner is an optional instrument-discovery convenience (see
	// DESIGN.md); it feeds the engine a watchlist instead of requiring one
	// to be hand-configured.
	scanCtx, stopScan := context.WithCancel(context.Background())
	scanner := market.NewScanner(*cfg, logger)
	go scanner.Run(scanCtx)
	go trackScanResults(scanCtx, eng, scanner, logger)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	stopScan()

	// Stop dashboard first
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	eng.Stop()
}

// trackScanResults reads the scanner's selected watchlist and keeps the
// engine's tracked instruments in sync with it: each market contributes two
// independently-tracked assets (its YES and NO tokens), added when first
// selected and dropped once the scanner stops selecting them.
func trackScanResults(ctx context.Context, eng *engine.Engine, scanner *market.Scanner, logger *slog.Logger) {
	tracked := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-scanner.Results():
			if !ok {
				return
			}
			selected := make(map[string]bool, len(result.Markets)*2)
			for _, alloc := range result.Markets {
				m := alloc.Market
				var hours *decimal.Decimal
				if !m.EndDate.IsZero() {
					h := decimal.NewFromFloat(time.Until(m.EndDate).Hours())
					hours = &h
				}
				for _, tokenID := range []string{m.YesTokenID, m.NoTokenID} {
					if tokenID == "" {
						continue
					}
					selected[tokenID] = true
					if tracked[tokenID] {
						continue
					}
					if err := eng.Track(ctx, tokenID, m.ConditionID, hours); err != nil {
						logger.Error("track selected market", "token", tokenID, "slug", m.Slug, "error", err)
						continue
					}
					tracked[tokenID] = true
				}
			}
			for tokenID := range tracked {
				if !selected[tokenID] {
					eng.Untrack(ctx, tokenID)
					delete(tracked, tokenID)
				}
			}
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
