package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Feed.Mode {
	case "live":
		if c.Feed.URL == "" {
			return errors.New("feed.url is required in live mode")
		}
	case "replay":
		// Catalog path covers the data source.
	default:
		return fmt.Errorf("feed.mode must be \"live\" or \"replay\", got %q", c.Feed.Mode)
	}

	if len(c.Feed.Symbols) == 0 {
		return errors.New("feed.symbols must list at least one instrument")
	}
	for i, s := range c.Feed.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("feed.symbols[%d].symbol is required", i)
		}
	}

	if c.Database.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	for _, iv := range c.Bars.Intervals {
		if iv < time.Second {
			return fmt.Errorf("bars.intervals must be >= 1s, got %s", iv)
		}
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}

	if c.Paper.InitialCapital <= 0 {
		return errors.New("paper.initial_capital must be positive")
	}

	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 0.5 {
		return fmt.Errorf("risk.risk_per_trade must be in (0, 0.5], got %v", c.Risk.RiskPerTrade)
	}
	if c.Risk.MaxPositionPct <= 0 || c.Risk.MaxPositionPct > 1 {
		return fmt.Errorf("risk.max_position_pct must be in (0, 1], got %v", c.Risk.MaxPositionPct)
	}
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct > 1 {
		return fmt.Errorf("risk.max_daily_loss_pct must be in (0, 1], got %v", c.Risk.MaxDailyLossPct)
	}

	if c.Compliance.OrdersPerSecond <= 0 {
		return errors.New("compliance.orders_per_second must be positive")
	}

	names := make(map[string]struct{}, len(c.Strategies))
	for i, s := range c.Strategies {
		if s.Name == "" {
			return fmt.Errorf("strategies[%d].name is required", i)
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("strategies[%d].name %q is duplicated", i, s.Name)
		}
		names[s.Name] = struct{}{}
		if s.Kind == "" {
			return fmt.Errorf("strategies[%d].kind is required", i)
		}
		if s.Symbol == "" {
			return fmt.Errorf("strategies[%d].symbol is required", i)
		}
		if s.Quantity < 1 {
			return fmt.Errorf("strategies[%d].quantity must be >= 1", i)
		}
	}

	return nil
}

func (db *DatabaseConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
