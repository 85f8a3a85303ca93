// Package backtest replays catalog bars through a strategy and reports
// trade and equity statistics.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arjunkv/paperdesk/internal/feed"
	"github.com/arjunkv/paperdesk/internal/model"
	"github.com/arjunkv/paperdesk/internal/strategy"
)

// ErrNoData is returned when the catalog has no bars for the window.
var ErrNoData = errors.New("backtest: no bars in window")

// Config controls one backtest run.
type Config struct {
	Symbol         string
	Interval       time.Duration
	From, To       time.Time
	InitialCapital float64
	Quantity       int64 // Units per trade
	CommissionPct  float64
	SlippagePct    float64
}

// Trade is one completed round trip.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   int64     `json:"quantity"`
	PnL        float64   `json:"pnl"` // Net of commission
	Reason     string    `json:"reason"`
}

// EquityPoint is the account value after one bar.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Engine runs strategies over historical bars.
type Engine struct {
	loader feed.BarLoader
	logger *slog.Logger
}

// NewEngine creates a backtest engine reading bars from loader.
func NewEngine(loader feed.BarLoader, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{loader: loader, logger: logger}
}

// Run replays the configured window through strat. Any position still
// open at the end is closed at the last bar's close.
func (e *Engine) Run(ctx context.Context, strat strategy.Strategy, cfg Config) (*Result, error) {
	if cfg.Quantity <= 0 {
		return nil, fmt.Errorf("backtest: quantity must be positive, got %d", cfg.Quantity)
	}
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("backtest: initial capital must be positive")
	}

	bars, err := e.loader.LoadBars(ctx, cfg.Symbol, cfg.Interval, cfg.From, cfg.To)
	if err != nil {
		return nil, fmt.Errorf("backtest: loading bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}

	e.logger.Info("backtest started",
		"strategy", strat.Name(),
		"symbol", cfg.Symbol,
		"bars", len(bars),
		"from", cfg.From,
		"to", cfg.To,
	)
	start := time.Now()

	run := &runState{cfg: cfg, cash: cfg.InitialCapital}
	strat.OnStart()
	defer strat.OnStop()
	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if sig, ok := strat.OnBar(bar); ok {
			run.apply(sig, bar)
		}
		run.mark(bar)
	}

	// Close any open position at the final bar.
	last := bars[len(bars)-1]
	if run.openQty > 0 {
		run.exit(last.Close, last.End(), "end of window")
		run.equity[len(run.equity)-1] = EquityPoint{Time: last.End(), Equity: run.cash}
	}

	result := buildResult(strat, cfg, run, len(bars))
	e.logger.Info("backtest finished",
		"strategy", strat.Name(),
		"trades", len(run.trades),
		"final_equity", result.FinalEquity,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

// runState tracks cash and the single open position during a run.
type runState struct {
	cfg Config

	cash       float64
	openQty    int64
	entryPrice float64
	entryTime  time.Time
	entryFees  float64

	trades []Trade
	equity []EquityPoint
}

func (r *runState) apply(sig model.Signal, bar model.Bar) {
	switch sig.Action {
	case model.ActionBuy:
		if r.openQty > 0 {
			return
		}
		price := bar.Close * (1 + r.cfg.SlippagePct)
		cost := float64(r.cfg.Quantity) * price
		fees := cost * r.cfg.CommissionPct
		if r.cash < cost+fees {
			return // cannot afford, skip the signal
		}
		r.cash -= cost + fees
		r.openQty = r.cfg.Quantity
		r.entryPrice = price
		r.entryTime = bar.End()
		r.entryFees = fees

	case model.ActionSell:
		if r.openQty == 0 {
			return
		}
		r.exit(bar.Close, bar.End(), sig.Reason)
	}
}

func (r *runState) exit(price float64, at time.Time, reason string) {
	exitPrice := price * (1 - r.cfg.SlippagePct)
	proceeds := float64(r.openQty) * exitPrice
	fees := proceeds * r.cfg.CommissionPct
	r.cash += proceeds - fees

	r.trades = append(r.trades, Trade{
		EntryTime:  r.entryTime,
		ExitTime:   at,
		EntryPrice: r.entryPrice,
		ExitPrice:  exitPrice,
		Quantity:   r.openQty,
		PnL:        (exitPrice-r.entryPrice)*float64(r.openQty) - fees - r.entryFees,
		Reason:     reason,
	})
	r.openQty = 0
}

// mark records equity at the bar close.
func (r *runState) mark(bar model.Bar) {
	equity := r.cash + float64(r.openQty)*bar.Close
	r.equity = append(r.equity, EquityPoint{Time: bar.End(), Equity: equity})
}
