package config

import "time"

// Config is the root configuration for a traderd instance.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Feed       FeedConfig       `yaml:"feed"`
	Database   DatabaseConfig   `yaml:"database"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Bars       BarsConfig       `yaml:"bars"`
	Writers    WritersConfig    `yaml:"writers"`
	Paper      PaperConfig      `yaml:"paper"`
	Risk       RiskConfig       `yaml:"risk"`
	Session    SessionConfig    `yaml:"session"`
	Compliance ComplianceConfig `yaml:"compliance"`
	API        APIConfig        `yaml:"api"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// InstanceConfig identifies this trading instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds market data feed settings.
type FeedConfig struct {
	// Mode selects the tick source: "live" (WebSocket) or "replay" (catalog).
	Mode string `yaml:"mode"`

	URL       string `yaml:"url"`        // WebSocket endpoint for live mode
	AuthToken string `yaml:"auth_token"` // Bearer token for the feed, if required

	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	BufferSize         int           `yaml:"buffer_size"`

	// Symbols to subscribe on connect.
	Symbols []SymbolConfig `yaml:"symbols"`

	// Replay settings (replay mode only).
	ReplayInterval time.Duration `yaml:"replay_interval"` // Bar interval to replay
	ReplaySpeed    float64       `yaml:"replay_speed"`    // 0 = as fast as possible
}

// SymbolConfig pairs a trading symbol with its exchange token.
type SymbolConfig struct {
	Symbol   string `yaml:"symbol"`
	Token    string `yaml:"token"`
	Exchange string `yaml:"exchange"`
}

// DatabaseConfig holds the optional time-series database.
// When Enabled is false, traderd runs fully in memory.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// CatalogConfig holds the local historical data store.
type CatalogConfig struct {
	Path            string        `yaml:"path"`             // SQLite file path
	ScripMasterURL  string        `yaml:"scrip_master_url"` // Instrument master JSON endpoint
	RefreshInterval time.Duration `yaml:"refresh_interval"` // Instrument master re-sync interval
}

// BarsConfig holds bar aggregation settings.
type BarsConfig struct {
	Intervals []time.Duration `yaml:"intervals"`
}

// WritersConfig holds batch writer settings for the live database.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// PaperConfig holds the simulated portfolio settings.
type PaperConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	CommissionPct  float64 `yaml:"commission_pct"`
	SlippagePct    float64 `yaml:"slippage_pct"`
	AllowShort     bool    `yaml:"allow_short"`
}

// RiskConfig holds position sizing and loss limits.
type RiskConfig struct {
	RiskPerTrade    float64          `yaml:"risk_per_trade"`     // Fraction of capital risked per trade
	MaxOrderValue   float64          `yaml:"max_order_value"`    // Rupee cap per order
	MaxPositionPct  float64          `yaml:"max_position_pct"`   // Fraction of capital per position
	MaxDailyLossPct float64          `yaml:"max_daily_loss_pct"` // Daily loss fraction before halt
	MaxLotsPerOrder int64            `yaml:"max_lots_per_order"` // Exchange freeze limit
	LotSizes        map[string]int64 `yaml:"lot_sizes"`          // Symbol → F&O lot size

	// Margin fraction by product type (1.0 = full value).
	Margins map[string]float64 `yaml:"margins"`
}

// SessionConfig holds market session behaviour.
type SessionConfig struct {
	AutoSquareOff bool     `yaml:"auto_square_off"` // Square off MIS positions at the cutoff
	Holidays      []string `yaml:"holidays"`        // Extra NSE holidays, "YYYY-MM-DD"
}

// ComplianceConfig holds exchange algo order limits.
type ComplianceConfig struct {
	OrdersPerSecond float64 `yaml:"orders_per_second"`
	Burst           int     `yaml:"burst"`
	AlgoID          string  `yaml:"algo_id"` // Exchange-registered algo identifier
}

// APIConfig holds the HTTP server settings.
type APIConfig struct {
	Addr         string        `yaml:"addr"`
	AuthToken    string        `yaml:"auth_token"` // Empty disables auth
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StrategyConfig declares one strategy instance.
type StrategyConfig struct {
	Name      string             `yaml:"name"`     // Unique instance name
	Kind      string             `yaml:"kind"`     // "ema_crossover", "rsi_reversion", "supertrend"
	Symbol    string             `yaml:"symbol"`   // Instrument to trade
	Quantity  int64              `yaml:"quantity"` // Order size in units
	Interval  time.Duration      `yaml:"interval"` // Bar interval the strategy consumes
	Params    map[string]float64 `yaml:"params"`   // Kind-specific tuning
	Autostart bool               `yaml:"autostart"`
}
