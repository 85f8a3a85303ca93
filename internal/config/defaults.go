package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFeedMode           = "replay"
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPingInterval       = 15 * time.Second
	DefaultReadTimeout        = 30 * time.Second
	DefaultFeedBufferSize     = 10000
	DefaultReplayInterval     = time.Minute

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultCatalogPath     = "data/catalog.db"
	DefaultScripMasterURL  = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"
	DefaultRefreshInterval = 24 * time.Hour

	DefaultBatchSize     = 1000
	DefaultFlushInterval = 1 * time.Second
	DefaultBufferSize    = 10000

	DefaultInitialCapital = 100_000.0
	DefaultCommissionPct  = 0.001
	DefaultSlippagePct    = 0.0005

	DefaultRiskPerTrade    = 0.01
	DefaultMaxOrderValue   = 500_000.0
	DefaultMaxPositionPct  = 0.10
	DefaultMaxDailyLossPct = 0.03
	DefaultMaxLotsPerOrder = 36

	DefaultOrdersPerSecond = 10.0
	DefaultOrderBurst      = 10

	DefaultAPIAddr         = ":8080"
	DefaultAPIReadTimeout  = 15 * time.Second
	DefaultAPIWriteTimeout = 15 * time.Second
)

func (c *Config) applyDefaults() {
	// Feed defaults
	if c.Feed.Mode == "" {
		c.Feed.Mode = DefaultFeedMode
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.ReadTimeout == 0 {
		c.Feed.ReadTimeout = DefaultReadTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}
	if c.Feed.ReplayInterval == 0 {
		c.Feed.ReplayInterval = DefaultReplayInterval
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Catalog defaults
	if c.Catalog.Path == "" {
		c.Catalog.Path = DefaultCatalogPath
	}
	if c.Catalog.ScripMasterURL == "" {
		c.Catalog.ScripMasterURL = DefaultScripMasterURL
	}
	if c.Catalog.RefreshInterval == 0 {
		c.Catalog.RefreshInterval = DefaultRefreshInterval
	}

	// Bars defaults
	if len(c.Bars.Intervals) == 0 {
		c.Bars.Intervals = []time.Duration{time.Minute}
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	// Paper defaults
	if c.Paper.InitialCapital == 0 {
		c.Paper.InitialCapital = DefaultInitialCapital
	}
	if c.Paper.CommissionPct == 0 {
		c.Paper.CommissionPct = DefaultCommissionPct
	}
	if c.Paper.SlippagePct == 0 {
		c.Paper.SlippagePct = DefaultSlippagePct
	}

	// Risk defaults
	if c.Risk.RiskPerTrade == 0 {
		c.Risk.RiskPerTrade = DefaultRiskPerTrade
	}
	if c.Risk.MaxOrderValue == 0 {
		c.Risk.MaxOrderValue = DefaultMaxOrderValue
	}
	if c.Risk.MaxPositionPct == 0 {
		c.Risk.MaxPositionPct = DefaultMaxPositionPct
	}
	if c.Risk.MaxDailyLossPct == 0 {
		c.Risk.MaxDailyLossPct = DefaultMaxDailyLossPct
	}
	if c.Risk.MaxLotsPerOrder == 0 {
		c.Risk.MaxLotsPerOrder = DefaultMaxLotsPerOrder
	}
	if c.Risk.Margins == nil {
		c.Risk.Margins = map[string]float64{
			"INTRADAY":     0.2,
			"DELIVERY":     1.0,
			"CARRYFORWARD": 0.5,
		}
	}

	// Strategy defaults
	for i := range c.Strategies {
		if c.Strategies[i].Interval == 0 {
			c.Strategies[i].Interval = time.Minute
		}
	}

	// Compliance defaults
	if c.Compliance.OrdersPerSecond == 0 {
		c.Compliance.OrdersPerSecond = DefaultOrdersPerSecond
	}
	if c.Compliance.Burst == 0 {
		c.Compliance.Burst = DefaultOrderBurst
	}

	// API defaults
	if c.API.Addr == "" {
		c.API.Addr = DefaultAPIAddr
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = DefaultAPIReadTimeout
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = DefaultAPIWriteTimeout
	}
}
