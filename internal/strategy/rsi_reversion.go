package strategy

import (
	"fmt"
	"time"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/indicator"
	"github.com/arjunkv/paperdesk/internal/model"
)

// rsiReversion buys when RSI recovers up through the oversold level and
// exits when RSI reaches the overbought level.
//
// Params: period (14), oversold (30), overbought (70).
type rsiReversion struct {
	Base
	name     string
	symbol   string
	interval time.Duration

	period     int
	oversold   float64
	overbought float64

	hist       history
	inPosition bool
}

func newRSIReversion(cfg config.StrategyConfig) *rsiReversion {
	return &rsiReversion{
		name:       cfg.Name,
		symbol:     cfg.Symbol,
		interval:   cfg.Interval,
		period:     int(param(cfg.Params, "period", 14)),
		oversold:   param(cfg.Params, "oversold", 30),
		overbought: param(cfg.Params, "overbought", 70),
	}
}

func (s *rsiReversion) Name() string            { return s.name }
func (s *rsiReversion) Kind() string            { return "rsi_reversion" }
func (s *rsiReversion) Symbol() string          { return s.symbol }
func (s *rsiReversion) Interval() time.Duration { return s.interval }
func (s *rsiReversion) Warmup() int             { return s.period + 2 }

func (s *rsiReversion) OnBar(bar model.Bar) (model.Signal, bool) {
	s.hist.add(bar)
	if s.hist.len() < s.Warmup() {
		return model.Signal{}, false
	}

	rsi, err := indicator.RSI(s.hist.closes(), s.period)
	if err != nil {
		return model.Signal{}, false
	}
	last := len(rsi) - 1
	prev, curr := rsi[last-1], rsi[last]

	if !s.inPosition {
		// Recovery cross: was oversold, now back above the level.
		if prev < s.oversold && curr >= s.oversold {
			s.inPosition = true
			return s.signal(model.ActionBuy, bar,
				fmt.Sprintf("rsi recovered %.1f -> %.1f through %.0f", prev, curr, s.oversold)), true
		}
		return model.Signal{}, false
	}

	if curr >= s.overbought {
		s.inPosition = false
		return s.signal(model.ActionSell, bar,
			fmt.Sprintf("rsi %.1f reached overbought %.0f", curr, s.overbought)), true
	}
	return model.Signal{}, false
}

func (s *rsiReversion) signal(action model.SignalAction, bar model.Bar, reason string) model.Signal {
	return model.Signal{
		StrategyID: s.name,
		Symbol:     s.symbol,
		Action:     action,
		Price:      bar.Close,
		Reason:     reason,
		At:         bar.End(),
	}
}
