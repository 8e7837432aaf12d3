package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/engine"
)

// Server runs the HTTP/WebSocket API for the dashboard
type Server struct {
	cfg      config.DashboardConfig
	engine   *engine.Engine
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new API server
func NewServer(
	cfg config.DashboardConfig,
	eng *engine.Engine,
	logger *slog.Logger,
) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(eng, cfg, hub, logger)

	mux := http.NewServeMux()

	// Read-only routes
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	// Mutating routes (spec §6): lifecycle and instrument control
	mux.HandleFunc("/api/start", handlers.HandleStart)
	mux.HandleFunc("/api/stop", handlers.HandleStop)
	mux.HandleFunc("/api/cashout", handlers.HandleCashout)
	mux.HandleFunc("/api/track", handlers.HandleTrack)
	mux.HandleFunc("/api/untrack", handlers.HandleUntrack)
	mux.HandleFunc("/api/config", handlers.HandleUpdateConfig)

	// Serve static files (web dashboard)
	mux.Handle("/", http.FileServer(http.Dir("web")))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		engine:   eng,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the API server and hub
func (s *Server) Start() error {
	// Start WebSocket hub
	go s.hub.Run()

	// Start periodic snapshot broadcaster
	go s.broadcastSnapshots()

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// broadcastSnapshots periodically pushes a fresh snapshot to every connected
// WebSocket client, and emits discrete fill/kill events derived from the
// snapshot diff. The engine has no dedicated event-fanout channel of its own
// (it's a synchronous per-tick pipeline, not an async broadcaster like the
// teacher's risk.Manager was), so polling on a short interval stands in for
// push-on-change.
func (s *Server) broadcastSnapshots() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastSeenFill time.Time
	var wasHalted bool

	for range ticker.C {
		snapshot := BuildSnapshot(s.engine)
		now := time.Now()

		s.hub.BroadcastEvent(DashboardEvent{Type: "snapshot", Timestamp: now, Data: snapshot})

		fills := s.engine.RecentFills()
		for _, trade := range fills {
			if !trade.Timestamp.After(lastSeenFill) {
				continue
			}
			s.hub.BroadcastEvent(DashboardEvent{
				Type: "fill", Timestamp: now, AssetID: trade.AssetID, Data: NewFillEvent(trade),
			})
		}
		if len(fills) > 0 {
			lastSeenFill = fills[len(fills)-1].Timestamp
		}

		risk := snapshot.Risk
		if risk.Halted && !wasHalted {
			s.hub.BroadcastEvent(DashboardEvent{Type: "kill", Timestamp: now, Data: NewKillEvent(risk.HaltReason)})
		}
		wasHalted = risk.Halted
	}
}
