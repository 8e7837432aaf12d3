package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/engine"
)

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	engine  *engine.Engine
	dashCfg config.DashboardConfig
	hub     *Hub
	logger  *slog.Logger
}

// NewHandlers creates a new handlers instance. dashCfg is fixed at startup
// (the dashboard's own transport settings are not part of the mutable
// quote/risk config UpdateConfig can change).
func NewHandlers(eng *engine.Engine, dashCfg config.DashboardConfig, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		engine:  eng,
		dashCfg: dashCfg,
		hub:     hub,
		logger:  logger.With("component", "api-handlers"),
	}
}

// HandleHealth returns a simple health check response
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleSnapshot returns the current dashboard state
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot := BuildSnapshot(h.engine)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		h.logger.Error("failed to encode snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
}

// HandleWebSocket upgrades the connection and creates a new WebSocket client
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), h.dashCfg, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	// Create new client
	client := NewClient(h.hub, conn)

	// Send initial snapshot to the client
	snapshot := BuildSnapshot(h.engine)
	evt := DashboardEvent{
		Type: "snapshot",
		Data: snapshot,
	}

	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal initial snapshot", "error", err)
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send initial snapshot to client")
	}
}

// HandleStart starts the control loop. A no-op (200) if already running.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.engine.IsRunning() {
		writeJSON(w, map[string]string{"status": "already_running"})
		return
	}
	if err := h.engine.Start(); err != nil {
		h.logger.Error("start failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "started"})
}

// HandleStop stops the control loop gracefully: cancels the run, persists
// positions, and leaves any open orders cancelled as a safety net.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.engine.Stop()
	writeJSON(w, map[string]string{"status": "stopped"})
}

// HandleCashout triggers the emergency-flatten operation: cancel every live
// order, flatten every position at an aggressive crossing price, then stop.
func (h *Handlers) HandleCashout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.engine.Cashout(r.Context()); err != nil {
		h.logger.Error("cashout failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "cashed_out"})
}

type trackRequest struct {
	TokenID       string  `json:"token_id"`
	ConditionID   string  `json:"condition_id"`
	HoursToExpiry *float64 `json:"hours_to_expiry,omitempty"`
}

// HandleTrack adds an instrument to the quoting set.
func (h *Handlers) HandleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TokenID == "" {
		http.Error(w, "token_id is required", http.StatusBadRequest)
		return
	}
	var hours *decimal.Decimal
	if req.HoursToExpiry != nil {
		v := decimal.NewFromFloat(*req.HoursToExpiry)
		hours = &v
	}
	if err := h.engine.Track(r.Context(), req.TokenID, req.ConditionID, hours); err != nil {
		h.logger.Error("track failed", "asset", req.TokenID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "tracked", "token_id": req.TokenID})
}

// HandleUntrack removes an instrument from the quoting set and cancels its
// resting orders.
func (h *Handlers) HandleUntrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TokenID == "" {
		http.Error(w, "token_id is required", http.StatusBadRequest)
		return
	}
	h.engine.Untrack(r.Context(), req.TokenID)
	writeJSON(w, map[string]string{"status": "untracked", "token_id": req.TokenID})
}

// updateConfigRequest carries the subset of configuration the dashboard may
// change live: quote shaping and risk limits. Anything else (venue
// credentials, transport settings) requires a restart.
type updateConfigRequest struct {
	BaseSpread             *string `json:"base_spread,omitempty"`
	MinSpread              *string `json:"min_spread,omitempty"`
	MaxSpread              *string `json:"max_spread,omitempty"`
	OrderSize              *string `json:"order_size,omitempty"`
	NumLevels              *int    `json:"num_levels,omitempty"`
	MaxInventoryForQuoting *int64  `json:"max_inventory_for_quoting,omitempty"`

	MaxPositionPerMarket *int64  `json:"max_position_per_market,omitempty"`
	MaxTotalExposure     *string `json:"max_total_exposure,omitempty"`
	MaxMarketsActive     *int    `json:"max_markets_active,omitempty"`
	MaxDailyLoss         *string `json:"max_daily_loss,omitempty"`
}

// HandleUpdateConfig updates quote/risk parameters. Refused unless the
// engine is currently stopped, per spec: "update config (only when stopped)".
func (h *Handlers) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.engine.IsRunning() {
		http.Error(w, "engine must be stopped before updating config", http.StatusConflict)
		return
	}

	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	current := h.engine.Config()
	quoteCfg := current.Quote
	riskCfg := current.Risk

	var parseErr error
	applyDecimal := func(dst *decimal.Decimal, src *string) {
		if src == nil || parseErr != nil {
			return
		}
		v, err := decimal.NewFromString(*src)
		if err != nil {
			parseErr = fmt.Errorf("invalid decimal %q: %w", *src, err)
			return
		}
		*dst = v
	}

	applyDecimal(&quoteCfg.BaseSpread, req.BaseSpread)
	applyDecimal(&quoteCfg.MinSpread, req.MinSpread)
	applyDecimal(&quoteCfg.MaxSpread, req.MaxSpread)
	applyDecimal(&quoteCfg.OrderSize, req.OrderSize)
	if req.NumLevels != nil {
		quoteCfg.NumLevels = *req.NumLevels
	}
	if req.MaxInventoryForQuoting != nil {
		quoteCfg.MaxInventoryForQuoting = *req.MaxInventoryForQuoting
	}

	applyDecimal(&riskCfg.MaxTotalExposure, req.MaxTotalExposure)
	applyDecimal(&riskCfg.MaxDailyLoss, req.MaxDailyLoss)
	if req.MaxPositionPerMarket != nil {
		riskCfg.MaxPositionPerMarket = *req.MaxPositionPerMarket
	}
	if req.MaxMarketsActive != nil {
		riskCfg.MaxMarketsActive = *req.MaxMarketsActive
	}

	if parseErr != nil {
		http.Error(w, parseErr.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.UpdateConfig(quoteCfg, riskCfg); err != nil {
		h.logger.Error("update config failed", "error", err)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"status": "config_updated"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func isOriginAllowed(origin string, cfg config.DashboardConfig, reqHost string) bool {
	if origin == "" {
		// Non-browser clients often omit Origin; keep this path functional.
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			u, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	reqHostname := normalizeHost(reqHost)
	return reqHostname != "" && host == reqHostname
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
