package strategy

import (
	"fmt"
	"time"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/indicator"
	"github.com/arjunkv/paperdesk/internal/model"
)

// emaCrossover goes long when the fast EMA crosses above the slow EMA
// with RSI confirmation, and exits on the reverse cross or an ATR
// trailing stop.
//
// Params: fast (9), slow (21), rsi_period (14), rsi_max (70),
// atr_period (14), atr_mult (1.5).
type emaCrossover struct {
	Base
	name     string
	symbol   string
	interval time.Duration

	fast      int
	slow      int
	rsiPeriod int
	rsiMax    float64
	atrPeriod int
	atrMult   float64

	hist       history
	inPosition bool
	stop       float64
}

func newEMACrossover(cfg config.StrategyConfig) *emaCrossover {
	return &emaCrossover{
		name:      cfg.Name,
		symbol:    cfg.Symbol,
		interval:  cfg.Interval,
		fast:      int(param(cfg.Params, "fast", 9)),
		slow:      int(param(cfg.Params, "slow", 21)),
		rsiPeriod: int(param(cfg.Params, "rsi_period", 14)),
		rsiMax:    param(cfg.Params, "rsi_max", 70),
		atrPeriod: int(param(cfg.Params, "atr_period", 14)),
		atrMult:   param(cfg.Params, "atr_mult", 1.5),
	}
}

func (s *emaCrossover) Name() string            { return s.name }
func (s *emaCrossover) Kind() string            { return "ema_crossover" }
func (s *emaCrossover) Symbol() string          { return s.symbol }
func (s *emaCrossover) Interval() time.Duration { return s.interval }

func (s *emaCrossover) Warmup() int {
	w := s.slow
	if s.rsiPeriod > w {
		w = s.rsiPeriod
	}
	if s.atrPeriod > w {
		w = s.atrPeriod
	}
	return w + 2 // One extra bar for the cross comparison.
}

func (s *emaCrossover) OnBar(bar model.Bar) (model.Signal, bool) {
	s.hist.add(bar)
	if s.hist.len() < s.Warmup() {
		return model.Signal{}, false
	}

	closes := s.hist.closes()
	fastEMA, err := indicator.EMA(closes, s.fast)
	if err != nil {
		return model.Signal{}, false
	}
	slowEMA, err := indicator.EMA(closes, s.slow)
	if err != nil {
		return model.Signal{}, false
	}
	rsi, err := indicator.RSI(closes, s.rsiPeriod)
	if err != nil {
		return model.Signal{}, false
	}
	atr, err := indicator.ATR(s.hist.bars, s.atrPeriod)
	if err != nil {
		return model.Signal{}, false
	}

	last := len(closes) - 1
	crossUp := fastEMA[last-1] <= slowEMA[last-1] && fastEMA[last] > slowEMA[last]
	crossDown := fastEMA[last-1] >= slowEMA[last-1] && fastEMA[last] < slowEMA[last]

	if !s.inPosition {
		if crossUp && rsi[last] < s.rsiMax {
			s.inPosition = true
			s.stop = bar.Close - atr[last]*s.atrMult
			return s.signal(model.ActionBuy, bar,
				fmt.Sprintf("ema %d/%d cross up, rsi %.1f", s.fast, s.slow, rsi[last])), true
		}
		return model.Signal{}, false
	}

	// Ratchet the trailing stop up, never down.
	if trail := bar.Close - atr[last]*s.atrMult; trail > s.stop {
		s.stop = trail
	}

	if bar.Close <= s.stop {
		s.inPosition = false
		return s.signal(model.ActionSell, bar,
			fmt.Sprintf("trailing stop %.2f hit", s.stop)), true
	}
	if crossDown {
		s.inPosition = false
		return s.signal(model.ActionSell, bar,
			fmt.Sprintf("ema %d/%d cross down", s.fast, s.slow)), true
	}
	return model.Signal{}, false
}

func (s *emaCrossover) signal(action model.SignalAction, bar model.Bar, reason string) model.Signal {
	return model.Signal{
		StrategyID: s.name,
		Symbol:     s.symbol,
		Action:     action,
		Price:      bar.Close,
		Reason:     reason,
		At:         bar.End(),
	}
}
