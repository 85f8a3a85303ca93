package strategy

import (
	"fmt"
	"time"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/model"
)

// maxHistory bounds per-strategy bar retention. Enough for any sane
// indicator period on intraday intervals.
const maxHistory = 500

// Strategy consumes closed bars and raw ticks and emits signals.
// Implementations are single-goroutine: the manager serializes hook calls
// per instance.
type Strategy interface {
	Name() string
	Kind() string
	Symbol() string
	Interval() time.Duration

	// Warmup is the number of bars needed before signals can fire.
	Warmup() int

	// OnStart runs once when the instance transitions from stopped to
	// running.
	OnStart()

	// OnBar processes one closed bar. The second return is false while
	// warming up or when the strategy holds.
	OnBar(bar model.Bar) (model.Signal, bool)

	// OnTick reacts to raw ticks between bar closes. Bar-driven
	// strategies always return false.
	OnTick(tick model.Tick) (model.Signal, bool)

	// OnStop runs when the instance is stopped.
	OnStop()
}

// Base provides no-op lifecycle and tick hooks for strategies that trade
// on closed bars only. Embed it and override what the strategy needs.
type Base struct{}

func (Base) OnStart() {}

func (Base) OnTick(model.Tick) (model.Signal, bool) { return model.Signal{}, false }

func (Base) OnStop() {}

// New builds a strategy instance from config.
func New(cfg config.StrategyConfig) (Strategy, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("strategy: name is required")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("strategy %q: symbol is required", cfg.Name)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("strategy %q: interval is required", cfg.Name)
	}

	switch cfg.Kind {
	case "ema_crossover":
		return newEMACrossover(cfg), nil
	case "rsi_reversion":
		return newRSIReversion(cfg), nil
	case "supertrend":
		return newSupertrend(cfg), nil
	}
	return nil, fmt.Errorf("strategy %q: unknown kind %q", cfg.Name, cfg.Kind)
}

// param reads a tuning parameter with a default.
func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// history is a bounded bar buffer shared by the strategy kinds.
type history struct {
	bars []model.Bar
}

func (h *history) add(bar model.Bar) {
	h.bars = append(h.bars, bar)
	if len(h.bars) > maxHistory {
		h.bars = h.bars[len(h.bars)-maxHistory:]
	}
}

func (h *history) closes() []float64 {
	out := make([]float64, len(h.bars))
	for i, b := range h.bars {
		out[i] = b.Close
	}
	return out
}

func (h *history) len() int { return len(h.bars) }
