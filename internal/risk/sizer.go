// Package risk implements position sizing, loss limits, and circuit
// breaker gates for order flow.
package risk

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/model"
)

// Sizing errors.
var (
	ErrDailyLossExceeded = errors.New("daily loss limit exceeded, trading halted")
	ErrZeroStopDistance  = errors.New("stop-loss distance is zero")
)

// Sizer calculates safe position sizes from risk parameters.
//
// Supports the fixed-percentage risk model, F&O lot-size rounding, product
// type margin rules and daily loss tracking.
type Sizer struct {
	cfg    config.RiskConfig
	logger *slog.Logger

	mu       sync.RWMutex
	capital  float64
	dailyPnL float64
}

// NewSizer creates a sizer for the given account equity.
func NewSizer(capital float64, cfg config.RiskConfig, logger *slog.Logger) *Sizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sizer{
		cfg:     cfg,
		logger:  logger,
		capital: capital,
	}
}

// Quantity sizes a trade from entry and stop prices:
//
//	qty = (capital * riskPerTrade) / |entry - stop|
//
// rounded down to lotSize, then capped by max order value and max position
// percentage. Returns 0 when inputs are unusable.
func (s *Sizer) Quantity(entry, stop float64, lotSize int64) int64 {
	if entry <= 0 || stop <= 0 {
		return 0
	}

	stopDistance := math.Abs(entry - stop)
	if stopDistance == 0 {
		s.logger.Warn("stop-loss distance is zero, cannot size position")
		return 0
	}

	s.mu.RLock()
	capital := s.capital
	s.mu.RUnlock()

	raw := capital * s.cfg.RiskPerTrade / stopDistance

	qty := RoundToLot(int64(raw), lotSize)

	// Cap by order value
	if maxByValue := int64(s.cfg.MaxOrderValue / entry); qty > maxByValue {
		qty = RoundToLot(maxByValue, lotSize)
	}

	// Cap by position percentage of capital
	if maxByPct := int64(capital * s.cfg.MaxPositionPct / entry); qty > maxByPct {
		qty = RoundToLot(maxByPct, lotSize)
	}

	if qty < 0 {
		return 0
	}
	return qty
}

// QuantityForAllocation sizes a trade from a fixed rupee allocation.
func (s *Sizer) QuantityForAllocation(entry, allocation float64, lotSize int64) int64 {
	if entry <= 0 || allocation <= 0 {
		return 0
	}
	return RoundToLot(int64(allocation/entry), lotSize)
}

// LotSize returns the configured F&O lot size for a symbol (1 for equity).
func (s *Sizer) LotSize(symbol string) int64 {
	if n, ok := s.cfg.LotSizes[symbol]; ok && n > 0 {
		return n
	}
	return 1
}

// RoundToLot rounds a quantity down to the nearest lot multiple.
func RoundToLot(qty, lotSize int64) int64 {
	if lotSize <= 1 {
		return qty
	}
	return qty / lotSize * lotSize
}

// CheckFreezeLimit verifies the quantity stays under the exchange freeze
// limit (max lots per order).
func (s *Sizer) CheckFreezeLimit(symbol string, qty int64) error {
	lotSize := s.LotSize(symbol)
	maxQty := s.cfg.MaxLotsPerOrder * lotSize
	if qty > maxQty {
		return fmt.Errorf("quantity %d exceeds freeze limit %d (%d lots x %d)",
			qty, maxQty, s.cfg.MaxLotsPerOrder, lotSize)
	}
	return nil
}

// RequiredMargin returns the margin needed for a position under the given
// product type.
func (s *Sizer) RequiredMargin(qty int64, price float64, product model.ProductType) float64 {
	gross := float64(qty) * price
	if pct, ok := s.cfg.Margins[product.String()]; ok {
		return gross * pct
	}
	return gross
}

// CanAfford reports whether current equity covers the required margin, and
// returns that margin.
func (s *Sizer) CanAfford(qty int64, price float64, product model.ProductType) (bool, float64) {
	required := s.RequiredMargin(qty, price, product)

	s.mu.RLock()
	available := s.capital + s.dailyPnL
	s.mu.RUnlock()

	return available >= required, required
}

// RecordPnL adds realized P&L to the daily tracker.
func (s *Sizer) RecordPnL(pnl float64) {
	s.mu.Lock()
	s.dailyPnL += pnl
	s.mu.Unlock()
}

// DailyPnL returns the realized P&L recorded today.
func (s *Sizer) DailyPnL() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dailyPnL
}

// DailyLossExceeded reports whether today's realized loss breaches the
// configured limit.
func (s *Sizer) DailyLossExceeded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dailyPnL <= -s.capital*s.cfg.MaxDailyLossPct
}

// ResetDaily clears the daily tracker. newCapital > 0 also re-bases equity.
// Call at the start of each trading day.
func (s *Sizer) ResetDaily(newCapital float64) {
	s.mu.Lock()
	s.dailyPnL = 0
	if newCapital > 0 {
		s.capital = newCapital
	}
	s.mu.Unlock()
}

// ValidateOrder runs the full pre-trade check: daily loss halt, order value
// cap, freeze limit, and margin affordability.
func (s *Sizer) ValidateOrder(symbol string, qty int64, price float64, product model.ProductType) error {
	if s.DailyLossExceeded() {
		return ErrDailyLossExceeded
	}

	if value := float64(qty) * price; value > s.cfg.MaxOrderValue {
		return fmt.Errorf("order value %.0f exceeds limit %.0f", value, s.cfg.MaxOrderValue)
	}

	if err := s.CheckFreezeLimit(symbol, qty); err != nil {
		return err
	}

	if ok, required := s.CanAfford(qty, price, product); !ok {
		return fmt.Errorf("insufficient margin: required %.0f", required)
	}

	return nil
}
