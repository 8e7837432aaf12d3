// Package config defines all configuration for the market-making engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via POLY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"` // paper-trading: true = simulator, false = live venue
	PushMode  bool            `mapstructure:"push_mode"` // true = WebSocket push loop, false = polling loop
	Wallet    WalletConfig    `mapstructure:"wallet"`
	API       APIConfig       `mapstructure:"api"`
	Quote     QuoteConfig     `mapstructure:"quote"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Orders    OrdersConfig    `mapstructure:"orders"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// WalletConfig holds the Ethereum wallet used for signing orders.
// PrivateKey signs L1 (EIP-712) auth and derives L2 API keys.
// FunderAddress is the on-chain address that funds orders (may differ from signer if using a proxy).
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       int    `mapstructure:"chain_id"`
}

// APIConfig holds Polymarket API endpoints and optional pre-derived L2 credentials.
// If ApiKey/Secret/Passphrase are empty, the bot derives them via L1 auth on startup.
type APIConfig struct {
	CLOBBaseURL  string `mapstructure:"clob_base_url"`
	GammaBaseURL string `mapstructure:"gamma_base_url"`
	WSMarketURL  string `mapstructure:"ws_market_url"`
	WSUserURL    string `mapstructure:"ws_user_url"`
	ApiKey       string `mapstructure:"api_key"`
	Secret       string `mapstructure:"secret"`
	Passphrase   string `mapstructure:"passphrase"`
}

// QuoteConfig tunes the Quote Engine (C2): fair-value estimation, spread
// shaping, inventory skew, and multi-level synthesis.
type QuoteConfig struct {
	BaseSpread            decimal.Decimal `mapstructure:"base_spread"`             // default 0.02
	MinSpread             decimal.Decimal `mapstructure:"min_spread"`              // default 0.01
	MaxSpread             decimal.Decimal `mapstructure:"max_spread"`              // default 0.10
	MinPrice              decimal.Decimal `mapstructure:"min_price"`               // default 0.05
	MaxPrice              decimal.Decimal `mapstructure:"max_price"`               // default 0.95
	OrderSize             decimal.Decimal `mapstructure:"order_size"`              // base level size
	NumLevels             int             `mapstructure:"num_levels"`              // quote levels per side
	LevelSpacing          decimal.Decimal `mapstructure:"level_spacing"`           // price gap between levels
	InventorySkewThreshold int64          `mapstructure:"inventory_skew_threshold"` // default 100 shares
	UseWeightedMid        bool            `mapstructure:"use_weighted_mid"`
	WeightedMidDepth       int            `mapstructure:"weighted_mid_depth"` // K in top-K weighted mid, default 3
	RefreshInterval       time.Duration   `mapstructure:"refresh_interval"`   // polling-mode tick period, default 5s
	StaleBookTimeout      time.Duration   `mapstructure:"stale_book_timeout"`
	MaxInventoryForQuoting int64          `mapstructure:"max_inventory_for_quoting"` // should_quote's max_inventory

	// Smart extension (optional): volatility + momentum blending into fair value.
	SmartExtension bool `mapstructure:"smart_extension"`

	// Adverse-selection factor window for the spread multiplier. The
	// simulator does not read it; its volume and mid windows are fixed.
	FlowWindow time.Duration `mapstructure:"flow_window"` // default 5m
}

// RiskConfig sets hard limits enforced by the Risk Gate (C4).
//
// Two exposure scales are kept deliberately (see DESIGN.md's Open Question
// resolution): MaxPositionPerMarket is a share count; MaxTotalExposure,
// MaxDailyLoss and MaxInventoryImbalance are currency. The Risk Gate's size
// throttle also compares MaxInventoryImbalance with an asset's share quantity.
type RiskConfig struct {
	MaxPositionPerMarket     int64           `mapstructure:"max_position_per_market"`     // share count
	MaxPositionPerMarketUSD  decimal.Decimal `mapstructure:"max_position_per_market_usd"` // scanner capital allocation, informational
	MaxTotalExposure         decimal.Decimal `mapstructure:"max_total_exposure"`          // currency
	MaxGlobalExposure        decimal.Decimal `mapstructure:"max_global_exposure"`         // currency, across all markets
	MaxInventoryImbalance    int64           `mapstructure:"max_inventory_imbalance"`     // currency, bound on |net exposure|
	MaxMarketsActive         int             `mapstructure:"max_markets_active"`
	MaxDailyLoss             decimal.Decimal `mapstructure:"max_daily_loss"` // currency
	KillSwitchDropPct        float64         `mapstructure:"kill_switch_drop_pct"`
	KillSwitchWindowSec      int             `mapstructure:"kill_switch_window_sec"`
	CooldownAfterKill        time.Duration   `mapstructure:"cooldown_after_kill"`
}

// OrdersConfig tunes the Order Manager (C5).
type OrdersConfig struct {
	OrderTimeout   time.Duration `mapstructure:"order_timeout"`    // default 300s
	SyncInterval   time.Duration `mapstructure:"sync_interval"`    // exchange reconciliation cadence
}

// SimulatorConfig toggles the Paper-Trading Simulator's (C6) realism knobs.
type SimulatorConfig struct {
	LatencyEnabled        bool    `mapstructure:"latency_enabled"`
	AdverseSelectionOn    bool    `mapstructure:"adverse_selection_enabled"`
	PartialFillsEnabled   bool    `mapstructure:"partial_fills_enabled"`
	MakerFeeBps           int     `mapstructure:"maker_fee_bps"`
	TakerFeeBps           int     `mapstructure:"taker_fee_bps"`
	FillCheckInterval     time.Duration `mapstructure:"fill_check_interval"` // default 500ms
}

// ScannerConfig controls how the bot discovers and filters tradeable markets.
// The scanner polls the Gamma API and ranks markets by opportunity score:
// score = spread * sqrt(volume24h) * min(liquidity/10000, 1). Kept as an
// optional convenience — see DESIGN.md — not a required part of the loop.
type ScannerConfig struct {
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	MinLiquidity        float64       `mapstructure:"min_liquidity"`
	MinVolume24h        float64       `mapstructure:"min_volume_24h"`
	MinSpread           float64       `mapstructure:"min_spread"`
	MaxEndDateDays      int           `mapstructure:"max_end_date_days"`
	ExcludeSlugs        []string      `mapstructure:"exclude_slugs"`
	IncludeSlugs        []string      `mapstructure:"include_slugs"`
	IncludeConditionIDs []string      `mapstructure:"include_condition_ids"`
	IncludeKeywords     []string      `mapstructure:"include_keywords"`
	ExcludeKeywords     []string      `mapstructure:"exclude_keywords"`
}

// StoreConfig sets where position data is persisted (JSON files).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the optional read-only snapshot server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: POLY_PRIVATE_KEY, POLY_API_KEY, POLY_API_SECRET, POLY_PASSPHRASE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("POLY_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("POLY_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if secret := os.Getenv("POLY_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
	if pass := os.Getenv("POLY_PASSPHRASE"); pass != "" {
		cfg.API.Passphrase = pass
	}
	if v := os.Getenv("POLY_DRY_RUN"); v == "true" || v == "1" {
		cfg.DryRun = true
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults fills in the spec's documented defaults for any zero-valued
// numeric field viper didn't receive from the file or env.
func applyDefaults(c *Config) {
	zero := decimal.Decimal{}
	set := func(d *decimal.Decimal, v string) {
		if *d == zero {
			*d = decimal.RequireFromString(v)
		}
	}
	set(&c.Quote.BaseSpread, "0.02")
	set(&c.Quote.MinSpread, "0.01")
	set(&c.Quote.MaxSpread, "0.10")
	set(&c.Quote.MinPrice, "0.05")
	set(&c.Quote.MaxPrice, "0.95")
	set(&c.Quote.LevelSpacing, "0.01")
	if c.Quote.NumLevels == 0 {
		c.Quote.NumLevels = 1
	}
	if c.Quote.InventorySkewThreshold == 0 {
		c.Quote.InventorySkewThreshold = 100
	}
	if c.Quote.WeightedMidDepth == 0 {
		c.Quote.WeightedMidDepth = 3
	}
	if c.Quote.RefreshInterval == 0 {
		c.Quote.RefreshInterval = 5 * time.Second
	}
	if c.Quote.StaleBookTimeout == 0 {
		c.Quote.StaleBookTimeout = 30 * time.Second
	}
	if c.Quote.FlowWindow == 0 {
		c.Quote.FlowWindow = 5 * time.Minute
	}
	if c.Orders.OrderTimeout == 0 {
		c.Orders.OrderTimeout = 300 * time.Second
	}
	if c.Orders.SyncInterval == 0 {
		c.Orders.SyncInterval = 30 * time.Second
	}
	if c.Simulator.FillCheckInterval == 0 {
		c.Simulator.FillCheckInterval = 500 * time.Millisecond
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set POLY_PRIVATE_KEY)")
	}
	if !c.DryRun && c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required (137 for mainnet) in live mode")
	}
	switch c.Wallet.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("wallet.signature_type must be one of: 0 (EOA), 1 (POLY_PROXY), 2 (GNOSIS_SAFE)")
	}
	if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
		return fmt.Errorf("wallet.funder_address is required when wallet.signature_type is 1 or 2")
	}
	if !c.DryRun && c.API.CLOBBaseURL == "" {
		return fmt.Errorf("api.clob_base_url is required in live mode")
	}
	if c.Quote.OrderSize.Sign() <= 0 {
		return fmt.Errorf("quote.order_size must be > 0")
	}
	if c.Risk.MaxPositionPerMarket <= 0 {
		return fmt.Errorf("risk.max_position_per_market must be > 0")
	}
	if c.Risk.MaxTotalExposure.Sign() <= 0 {
		return fmt.Errorf("risk.max_total_exposure must be > 0")
	}
	if c.Risk.MaxMarketsActive <= 0 {
		return fmt.Errorf("risk.max_markets_active must be > 0")
	}
	return nil
}
