package backtest

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunkv/paperdesk/internal/model"
	"github.com/arjunkv/paperdesk/internal/strategy"
)

type stubLoader struct {
	bars []model.Bar
	err  error
}

func (s stubLoader) LoadBars(_ context.Context, _ string, _ time.Duration, _, _ time.Time) ([]model.Bar, error) {
	return s.bars, s.err
}

// scripted replays a fixed action sequence, one per bar.
type scripted struct {
	strategy.Base
	actions []model.SignalAction
	i       int
}

func (s *scripted) Name() string            { return "scripted" }
func (s *scripted) Kind() string            { return "scripted" }
func (s *scripted) Symbol() string          { return "SBIN-EQ" }
func (s *scripted) Interval() time.Duration { return time.Minute }
func (s *scripted) Warmup() int             { return 0 }

func (s *scripted) OnBar(bar model.Bar) (model.Signal, bool) {
	if s.i >= len(s.actions) {
		return model.Signal{}, false
	}
	action := s.actions[s.i]
	s.i++
	if action == model.ActionHold {
		return model.Signal{}, false
	}
	return model.Signal{
		StrategyID: "scripted",
		Symbol:     "SBIN-EQ",
		Action:     action,
		Price:      bar.Close,
		Reason:     "scripted",
		At:         bar.End(),
	}, true
}

func minuteBars(closes ...float64) []model.Bar {
	start := time.Date(2025, 5, 20, 9, 15, 0, 0, time.UTC)
	out := make([]model.Bar, len(closes))
	for i, c := range closes {
		out[i] = model.Bar{
			Symbol:   "SBIN-EQ",
			Interval: time.Minute,
			Start:    start.Add(time.Duration(i) * time.Minute),
			Open:     c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		Symbol:         "SBIN-EQ",
		Interval:       time.Minute,
		InitialCapital: 100_000,
		Quantity:       10,
	}
}

func TestRunRoundTrip(t *testing.T) {
	e := NewEngine(stubLoader{bars: minuteBars(100, 110, 120)}, nil)
	strat := &scripted{actions: []model.SignalAction{model.ActionBuy, model.ActionHold, model.ActionSell}}

	res, err := e.Run(context.Background(), strat, testConfig())
	require.NoError(t, err)

	require.Len(t, res.TradeLog, 1)
	tr := res.TradeLog[0]
	assert.Equal(t, float64(100), tr.EntryPrice)
	assert.Equal(t, float64(120), tr.ExitPrice)
	assert.Equal(t, float64(200), tr.PnL)

	assert.Equal(t, float64(100_200), res.FinalEquity)
	assert.InDelta(t, 0.2, res.TotalReturnPct, 1e-9)
	assert.Equal(t, 1, res.Wins)
	assert.Equal(t, 0, res.Losses)
	assert.Equal(t, float64(100), res.WinRatePct)
	assert.Len(t, res.EquityCurve, 3)

	// No losing trades: the profit factor is undefined and must be
	// omitted so the result stays JSON-encodable.
	assert.Nil(t, res.ProfitFactor)
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "profit_factor")
}

func TestRunForcedExitAtEnd(t *testing.T) {
	e := NewEngine(stubLoader{bars: minuteBars(100, 110)}, nil)
	strat := &scripted{actions: []model.SignalAction{model.ActionBuy}}

	res, err := e.Run(context.Background(), strat, testConfig())
	require.NoError(t, err)

	require.Len(t, res.TradeLog, 1)
	assert.Equal(t, "end of window", res.TradeLog[0].Reason)
	assert.Equal(t, float64(100), res.TradeLog[0].PnL)
	assert.Equal(t, float64(100_100), res.FinalEquity)
	assert.Len(t, res.EquityCurve, 2)
}

func TestRunCommissionAndSlippage(t *testing.T) {
	cfg := testConfig()
	cfg.CommissionPct = 0.01
	cfg.SlippagePct = 0.01

	e := NewEngine(stubLoader{bars: minuteBars(100, 120)}, nil)
	strat := &scripted{actions: []model.SignalAction{model.ActionBuy, model.ActionSell}}

	res, err := e.Run(context.Background(), strat, cfg)
	require.NoError(t, err)

	require.Len(t, res.TradeLog, 1)
	tr := res.TradeLog[0]
	assert.InDelta(t, 101, tr.EntryPrice, 1e-9)  // 100 * 1.01
	assert.InDelta(t, 118.8, tr.ExitPrice, 1e-9) // 120 * 0.99
	assert.InDelta(t, 156.02, tr.PnL, 1e-9)      // gross 178 - fees 10.10 - 11.88
}

func TestRunSkipsUnaffordableBuy(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCapital = 500 // 10 * 100 costs 1000

	e := NewEngine(stubLoader{bars: minuteBars(100, 110, 120)}, nil)
	strat := &scripted{actions: []model.SignalAction{model.ActionBuy}}

	res, err := e.Run(context.Background(), strat, cfg)
	require.NoError(t, err)
	assert.Empty(t, res.TradeLog)
	assert.Equal(t, float64(500), res.FinalEquity)
}

func TestRunLosingTrade(t *testing.T) {
	e := NewEngine(stubLoader{bars: minuteBars(100, 90, 80)}, nil)
	strat := &scripted{actions: []model.SignalAction{model.ActionBuy, model.ActionHold, model.ActionSell}}

	res, err := e.Run(context.Background(), strat, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Losses)
	assert.Equal(t, float64(0), res.WinRatePct)
	require.NotNil(t, res.ProfitFactor)
	assert.Equal(t, float64(0), *res.ProfitFactor)
	assert.Equal(t, float64(-200), res.NetPnL)
	assert.Negative(t, res.Sharpe)
}

func TestRunNoData(t *testing.T) {
	e := NewEngine(stubLoader{}, nil)
	_, err := e.Run(context.Background(), &scripted{}, testConfig())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRunValidation(t *testing.T) {
	e := NewEngine(stubLoader{bars: minuteBars(100)}, nil)

	cfg := testConfig()
	cfg.Quantity = 0
	_, err := e.Run(context.Background(), &scripted{}, cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.InitialCapital = 0
	_, err = e.Run(context.Background(), &scripted{}, cfg)
	assert.Error(t, err)
}

func TestMaxDrawdown(t *testing.T) {
	start := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	at := func(m int) time.Time { return start.Add(time.Duration(m) * time.Minute) }

	equity := []EquityPoint{
		{at(0), 100}, {at(1), 120}, {at(2), 90}, {at(3), 130}, {at(4), 110},
	}
	dd, dur := maxDrawdown(equity)
	assert.InDelta(t, 25, dd, 1e-9) // 120 → 90
	assert.Equal(t, time.Minute, dur)

	dd, dur = maxDrawdown([]EquityPoint{{at(0), 100}, {at(1), 110}, {at(2), 120}})
	assert.Zero(t, dd)
	assert.Zero(t, dur)
}

func TestSharpe(t *testing.T) {
	start := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	curve := func(values ...float64) []EquityPoint {
		out := make([]EquityPoint, len(values))
		for i, v := range values {
			out[i] = EquityPoint{start.Add(time.Duration(i) * time.Minute), v}
		}
		return out
	}

	assert.Positive(t, sharpe(curve(100, 101, 103, 104), time.Minute))
	assert.Negative(t, sharpe(curve(100, 99, 97, 96), time.Minute))
	assert.Zero(t, sharpe(curve(100, 100, 100, 100), time.Minute))
	assert.Zero(t, sharpe(curve(100, 101), time.Minute))
}

func TestSummaryOutput(t *testing.T) {
	e := NewEngine(stubLoader{bars: minuteBars(100, 110, 120)}, nil)
	strat := &scripted{actions: []model.SignalAction{model.ActionBuy, model.ActionHold, model.ActionSell}}

	res, err := e.Run(context.Background(), strat, testConfig())
	require.NoError(t, err)

	summary := res.Summary()
	// A winning-only run renders the undefined profit factor as n/a.
	for _, want := range []string{"scripted", "SBIN-EQ", "Net P&L", "Sharpe", "Max drawdown", "n/a (no losing trades)"} {
		assert.True(t, strings.Contains(summary, want), "summary missing %q:\n%s", want, summary)
	}
}
