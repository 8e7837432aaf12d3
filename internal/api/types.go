package api

import (
	"time"

	"polymarket-mm/internal/config"
)

// DashboardSnapshot is the complete read-only state the dashboard polls or
// receives over the WebSocket stream.
type DashboardSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Instruments []InstrumentStatus `json:"instruments"`

	TotalRealized   float64 `json:"total_realized"`
	TotalUnrealized float64 `json:"total_unrealized"`
	TotalPnL        float64 `json:"total_pnl"`

	Risk RiskSnapshot `json:"risk"`

	Config ConfigSummary `json:"config"`

	DryRun        bool          `json:"dry_run"`
	Running       bool          `json:"running"`
	Simulator     *SimulatorInfo `json:"simulator,omitempty"`
	RecentFills   []FillInfo    `json:"recent_fills"`
	PnLHistory    []PnLPointInfo `json:"pnl_history"`
}

// InstrumentStatus is the per-asset book/position/quote view.
type InstrumentStatus struct {
	AssetID string `json:"asset_id"`

	MidPrice    float64   `json:"mid_price"`
	BestBid     float64   `json:"best_bid"`
	BestAsk     float64   `json:"best_ask"`
	Spread      float64   `json:"spread"`
	LastUpdated time.Time `json:"last_updated"`

	Position PositionSnapshot `json:"position"`

	LiveBids []QuoteInfo `json:"live_bids"`
	LiveAsks []QuoteInfo `json:"live_asks"`
}

// PositionSnapshot is one asset's position and P&L.
type PositionSnapshot struct {
	Quantity      int64     `json:"quantity"` // signed: long > 0, short < 0
	AvgEntryPrice float64   `json:"avg_entry_price"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	ExposureUSD   float64   `json:"exposure_usd"`
	LastUpdated   time.Time `json:"last_updated"`
}

// QuoteInfo is a single resting order.
type QuoteInfo struct {
	OrderID   string    `json:"order_id"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Remaining float64   `json:"remaining"`
	Status    string    `json:"status"`
	PlacedAt  time.Time `json:"placed_at"`
}

// FillInfo is one recent trade, for the dashboard's fill feed.
type FillInfo struct {
	TradeID   string    `json:"trade_id"`
	AssetID   string    `json:"asset_id"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
}

// PnLPointInfo is one sample in the bounded P&L history.
type PnLPointInfo struct {
	At         time.Time `json:"at"`
	Realized   float64   `json:"realized"`
	Unrealized float64   `json:"unrealized"`
}

// SimulatorInfo summarizes the Paper-Trading Simulator's bookkeeping,
// present only when the engine is running dry-run.
type SimulatorInfo struct {
	OrdersPlaced    int64   `json:"orders_placed"`
	OrdersFilled    int64   `json:"orders_filled"`
	OrdersCancelled int64   `json:"orders_cancelled"`
	MakerVolume     float64 `json:"maker_volume"`
	TakerVolume     float64 `json:"taker_volume"`
	TotalFees       float64 `json:"total_fees"`
	AdverseFillRate float64 `json:"adverse_fill_rate"`
}

// RiskSnapshot is the aggregate risk state.
type RiskSnapshot struct {
	TotalExposure           float64 `json:"total_exposure"`
	MaxPositionSize         int64   `json:"max_position_size"`
	CurrentMaxPosition      int64   `json:"current_max_position"`
	DailyPnL                float64 `json:"daily_pnl"`
	RealizedPnL             float64 `json:"realized_pnl"`
	UnrealizedPnL           float64 `json:"unrealized_pnl"`
	NumPositions            int     `json:"num_positions"`
	InventoryImbalanceRatio float64 `json:"inventory_imbalance_ratio"`
	Halted                  bool    `json:"halted"`
	HaltReason              string  `json:"halt_reason,omitempty"`
}

// ConfigSummary is a read-only view of the running configuration.
type ConfigSummary struct {
	// Quote parameters
	BaseSpread             float64 `json:"base_spread"`
	MinSpread              float64 `json:"min_spread"`
	MaxSpread              float64 `json:"max_spread"`
	OrderSize              float64 `json:"order_size"`
	NumLevels              int     `json:"num_levels"`
	RefreshInterval        string  `json:"refresh_interval"`
	StaleBookTimeout       string  `json:"stale_book_timeout"`
	MaxInventoryForQuoting int64   `json:"max_inventory_for_quoting"`

	// Risk parameters
	MaxPositionPerMarket int64   `json:"max_position_per_market"`
	MaxTotalExposure     float64 `json:"max_total_exposure"`
	MaxMarketsActive     int     `json:"max_markets_active"`
	MaxDailyLoss         float64 `json:"max_daily_loss"`
	CooldownAfterKill    string  `json:"cooldown_after_kill"`

	// Scanner parameters
	ScannerPollInterval string  `json:"scanner_poll_interval"`
	MinLiquidity        float64 `json:"min_liquidity"`
	MinVolume24h        float64 `json:"min_volume_24h"`
	ScannerMinSpread    float64 `json:"min_spread_scanner"`
	MaxEndDateDays      int     `json:"max_end_date_days"`

	// Operational
	DryRun   bool `json:"dry_run"`
	PushMode bool `json:"push_mode"`
}

// NewConfigSummary builds a read-only config view from the running config.
func NewConfigSummary(cfg config.Config) ConfigSummary {
	return ConfigSummary{
		BaseSpread:             toFloat(cfg.Quote.BaseSpread),
		MinSpread:              toFloat(cfg.Quote.MinSpread),
		MaxSpread:              toFloat(cfg.Quote.MaxSpread),
		OrderSize:              toFloat(cfg.Quote.OrderSize),
		NumLevels:              cfg.Quote.NumLevels,
		RefreshInterval:        cfg.Quote.RefreshInterval.String(),
		StaleBookTimeout:       cfg.Quote.StaleBookTimeout.String(),
		MaxInventoryForQuoting: cfg.Quote.MaxInventoryForQuoting,

		MaxPositionPerMarket: cfg.Risk.MaxPositionPerMarket,
		MaxTotalExposure:     toFloat(cfg.Risk.MaxTotalExposure),
		MaxMarketsActive:     cfg.Risk.MaxMarketsActive,
		MaxDailyLoss:         toFloat(cfg.Risk.MaxDailyLoss),
		CooldownAfterKill:    cfg.Risk.CooldownAfterKill.String(),

		ScannerPollInterval: cfg.Scanner.PollInterval.String(),
		MinLiquidity:        cfg.Scanner.MinLiquidity,
		MinVolume24h:        cfg.Scanner.MinVolume24h,
		ScannerMinSpread:    cfg.Scanner.MinSpread,
		MaxEndDateDays:      cfg.Scanner.MaxEndDateDays,

		DryRun:   cfg.DryRun,
		PushMode: cfg.PushMode,
	}
}
