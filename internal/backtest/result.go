package backtest

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/arjunkv/paperdesk/internal/strategy"
)

// tradingMinutesPerDay is the NSE cash session length (09:15-15:30).
const tradingMinutesPerDay = 375

// Result summarizes a backtest run.
type Result struct {
	Strategy string        `json:"strategy"`
	Kind     string        `json:"kind"`
	Symbol   string        `json:"symbol"`
	Interval time.Duration `json:"interval"`
	Bars     int           `json:"bars"`

	InitialCapital float64 `json:"initial_capital"`
	FinalEquity    float64 `json:"final_equity"`
	TotalReturnPct float64 `json:"total_return_pct"`
	NetPnL         float64 `json:"net_pnl"`

	Trades     int     `json:"trades"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	WinRatePct float64 `json:"win_rate_pct"`
	// ProfitFactor is gross profit / gross loss. Nil (omitted in JSON)
	// when there are no losing trades: +Inf is not JSON-encodable.
	ProfitFactor *float64 `json:"profit_factor,omitempty"`
	AvgTradePnL  float64  `json:"avg_trade_pnl"`
	BestTrade    float64  `json:"best_trade"`
	WorstTrade   float64  `json:"worst_trade"`

	Sharpe         float64       `json:"sharpe"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
	MaxDrawdownDur time.Duration `json:"max_drawdown_duration"`

	TradeLog    []Trade       `json:"trade_log"`
	EquityCurve []EquityPoint `json:"equity_curve"`
}

func buildResult(strat strategy.Strategy, cfg Config, run *runState, bars int) *Result {
	r := &Result{
		Strategy:       strat.Name(),
		Kind:           strat.Kind(),
		Symbol:         cfg.Symbol,
		Interval:       cfg.Interval,
		Bars:           bars,
		InitialCapital: cfg.InitialCapital,
		TradeLog:       run.trades,
		EquityCurve:    run.equity,
		Trades:         len(run.trades),
	}

	if n := len(run.equity); n > 0 {
		r.FinalEquity = run.equity[n-1].Equity
	} else {
		r.FinalEquity = cfg.InitialCapital
	}
	r.NetPnL = r.FinalEquity - cfg.InitialCapital
	r.TotalReturnPct = r.NetPnL / cfg.InitialCapital * 100

	var grossProfit, grossLoss float64
	r.BestTrade = math.Inf(-1)
	r.WorstTrade = math.Inf(1)
	for _, tr := range run.trades {
		if tr.PnL >= 0 {
			r.Wins++
			grossProfit += tr.PnL
		} else {
			r.Losses++
			grossLoss += -tr.PnL
		}
		r.AvgTradePnL += tr.PnL
		if tr.PnL > r.BestTrade {
			r.BestTrade = tr.PnL
		}
		if tr.PnL < r.WorstTrade {
			r.WorstTrade = tr.PnL
		}
	}
	if r.Trades > 0 {
		r.WinRatePct = float64(r.Wins) / float64(r.Trades) * 100
		r.AvgTradePnL /= float64(r.Trades)
	} else {
		r.BestTrade, r.WorstTrade = 0, 0
	}
	if grossLoss > 0 {
		pf := grossProfit / grossLoss
		r.ProfitFactor = &pf
	}

	r.Sharpe = sharpe(run.equity, cfg.Interval)
	r.MaxDrawdownPct, r.MaxDrawdownDur = maxDrawdown(run.equity)
	return r
}

// sharpe annualizes the mean/stddev of per-bar returns assuming 252
// trading days of 375 minutes.
func sharpe(equity []EquityPoint, interval time.Duration) float64 {
	if len(equity) < 3 || interval <= 0 {
		return 0
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			return 0
		}
		returns = append(returns, equity[i].Equity/prev-1)
	}

	var mean float64
	for _, ret := range returns {
		mean += ret
	}
	mean /= float64(len(returns))

	var variance float64
	for _, ret := range returns {
		variance += (ret - mean) * (ret - mean)
	}
	variance /= float64(len(returns))
	if variance == 0 {
		return 0
	}

	barsPerDay := tradingMinutesPerDay / interval.Minutes()
	annualize := math.Sqrt(252 * barsPerDay)
	return mean / math.Sqrt(variance) * annualize
}

// maxDrawdown returns the deepest peak-to-trough decline and the longest
// time spent below a prior peak.
func maxDrawdown(equity []EquityPoint) (float64, time.Duration) {
	if len(equity) == 0 {
		return 0, 0
	}

	peak := equity[0].Equity
	peakAt := equity[0].Time
	var worst float64
	var longest time.Duration

	for _, pt := range equity[1:] {
		if pt.Equity >= peak {
			peak = pt.Equity
			peakAt = pt.Time
			continue
		}
		if dd := (peak - pt.Equity) / peak * 100; dd > worst {
			worst = dd
		}
		if under := pt.Time.Sub(peakAt); under > longest {
			longest = under
		}
	}
	return worst, longest
}

// Summary renders a plain-text report.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Strategy:       %s (%s) on %s @ %s\n", r.Strategy, r.Kind, r.Symbol, r.Interval)
	fmt.Fprintf(&b, "Bars:           %d\n", r.Bars)
	fmt.Fprintf(&b, "Net P&L:        %.2f (%.2f%%)\n", r.NetPnL, r.TotalReturnPct)
	fmt.Fprintf(&b, "Final equity:   %.2f\n", r.FinalEquity)
	fmt.Fprintf(&b, "Trades:         %d (%d wins, %d losses, %.1f%% win rate)\n",
		r.Trades, r.Wins, r.Losses, r.WinRatePct)
	if r.ProfitFactor != nil {
		fmt.Fprintf(&b, "Profit factor:  %.2f\n", *r.ProfitFactor)
	} else {
		fmt.Fprintf(&b, "Profit factor:  n/a (no losing trades)\n")
	}
	fmt.Fprintf(&b, "Avg trade:      %.2f (best %.2f, worst %.2f)\n", r.AvgTradePnL, r.BestTrade, r.WorstTrade)
	fmt.Fprintf(&b, "Sharpe:         %.2f\n", r.Sharpe)
	fmt.Fprintf(&b, "Max drawdown:   %.2f%% over %s\n", r.MaxDrawdownPct, r.MaxDrawdownDur)
	return b.String()
}
