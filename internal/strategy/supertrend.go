package strategy

import (
	"fmt"
	"time"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/indicator"
	"github.com/arjunkv/paperdesk/internal/model"
)

// supertrend follows the supertrend line: long while price holds above
// it, flat otherwise. Signals fire on direction flips.
//
// Params: period (10), multiplier (3).
type supertrend struct {
	Base
	name     string
	symbol   string
	interval time.Duration

	period     int
	multiplier float64

	hist       history
	inPosition bool
}

func newSupertrend(cfg config.StrategyConfig) *supertrend {
	return &supertrend{
		name:       cfg.Name,
		symbol:     cfg.Symbol,
		interval:   cfg.Interval,
		period:     int(param(cfg.Params, "period", 10)),
		multiplier: param(cfg.Params, "multiplier", 3),
	}
}

func (s *supertrend) Name() string            { return s.name }
func (s *supertrend) Kind() string            { return "supertrend" }
func (s *supertrend) Symbol() string          { return s.symbol }
func (s *supertrend) Interval() time.Duration { return s.interval }
func (s *supertrend) Warmup() int             { return s.period + 2 }

func (s *supertrend) OnBar(bar model.Bar) (model.Signal, bool) {
	s.hist.add(bar)
	if s.hist.len() < s.Warmup() {
		return model.Signal{}, false
	}

	line, direction, err := indicator.Supertrend(s.hist.bars, s.period, s.multiplier)
	if err != nil {
		return model.Signal{}, false
	}
	last := len(direction) - 1
	flippedUp := direction[last] > 0 && direction[last-1] <= 0
	flippedDown := direction[last] < 0 && direction[last-1] >= 0

	if !s.inPosition && flippedUp {
		s.inPosition = true
		return s.signal(model.ActionBuy, bar,
			fmt.Sprintf("supertrend flipped bullish at %.2f", line[last])), true
	}
	if s.inPosition && flippedDown {
		s.inPosition = false
		return s.signal(model.ActionSell, bar,
			fmt.Sprintf("supertrend flipped bearish at %.2f", line[last])), true
	}
	return model.Signal{}, false
}

func (s *supertrend) signal(action model.SignalAction, bar model.Bar, reason string) model.Signal {
	return model.Signal{
		StrategyID: s.name,
		Symbol:     s.symbol,
		Action:     action,
		Price:      bar.Close,
		Reason:     reason,
		At:         bar.End(),
	}
}
