package strategy

import (
	"testing"
	"time"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/model"
)

// barsFromCloses builds a 1-minute bar series with a small range around
// each close.
func barsFromCloses(closes ...float64) []model.Bar {
	start := time.Date(2025, 5, 20, 9, 15, 0, 0, time.UTC)
	out := make([]model.Bar, len(closes))
	for i, c := range closes {
		out[i] = model.Bar{
			Symbol:   "SBIN-EQ",
			Interval: time.Minute,
			Start:    start.Add(time.Duration(i) * time.Minute),
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   1000,
		}
	}
	return out
}

func collectSignals(s Strategy, bars []model.Bar) []model.Signal {
	var out []model.Signal
	for _, b := range bars {
		if sig, ok := s.OnBar(b); ok {
			out = append(out, sig)
		}
	}
	return out
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.StrategyConfig
	}{
		{"missing name", config.StrategyConfig{Kind: "supertrend", Symbol: "SBIN-EQ", Interval: time.Minute}},
		{"missing symbol", config.StrategyConfig{Name: "st", Kind: "supertrend", Interval: time.Minute}},
		{"missing interval", config.StrategyConfig{Name: "st", Kind: "supertrend", Symbol: "SBIN-EQ"}},
		{"unknown kind", config.StrategyConfig{Name: "st", Kind: "momentum", Symbol: "SBIN-EQ", Interval: time.Minute}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewKinds(t *testing.T) {
	for _, kind := range []string{"ema_crossover", "rsi_reversion", "supertrend"} {
		s, err := New(config.StrategyConfig{Name: "s1", Kind: kind, Symbol: "SBIN-EQ", Interval: time.Minute})
		if err != nil {
			t.Fatalf("New(%s): %v", kind, err)
		}
		if s.Kind() != kind || s.Name() != "s1" || s.Warmup() <= 0 {
			t.Errorf("%s: kind=%s warmup=%d", kind, s.Kind(), s.Warmup())
		}
	}
}

func TestEMACrossoverSignals(t *testing.T) {
	s, err := New(config.StrategyConfig{
		Name: "ema", Kind: "ema_crossover", Symbol: "SBIN-EQ", Interval: time.Minute,
		Params: map[string]float64{
			"fast": 3, "slow": 5,
			"rsi_period": 3, "rsi_max": 100,
			"atr_period": 3, "atr_mult": 100, // stop far away, exit on cross only
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Downtrend through warmup, rally to force the cross up, then a
	// crash to force the cross down.
	closes := []float64{100, 99, 98, 97, 96, 95, 94, 93}
	closes = append(closes, 100, 106, 112, 118, 124)
	closes = append(closes, 110, 96, 82, 68, 54)

	signals := collectSignals(s, barsFromCloses(closes...))
	if len(signals) < 2 {
		t.Fatalf("signals = %d, want at least buy and sell", len(signals))
	}
	if signals[0].Action != model.ActionBuy {
		t.Errorf("first signal = %s, want BUY", signals[0].Action)
	}
	if signals[1].Action != model.ActionSell {
		t.Errorf("second signal = %s, want SELL", signals[1].Action)
	}
	if signals[0].StrategyID != "ema" || signals[0].Symbol != "SBIN-EQ" || signals[0].Reason == "" {
		t.Errorf("signal metadata = %+v", signals[0])
	}
}

func TestEMACrossoverTrailingStop(t *testing.T) {
	s, err := New(config.StrategyConfig{
		Name: "ema", Kind: "ema_crossover", Symbol: "SBIN-EQ", Interval: time.Minute,
		Params: map[string]float64{
			"fast": 3, "slow": 5,
			"rsi_period": 3, "rsi_max": 100,
			"atr_period": 3, "atr_mult": 1,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Rally into a long, then a single sharp drop through the ATR stop
	// while the fast EMA is still above the slow.
	closes := []float64{100, 99, 98, 97, 96, 95, 94, 93}
	closes = append(closes, 100, 106, 112, 118, 124, 130)
	closes = append(closes, 100)

	signals := collectSignals(s, barsFromCloses(closes...))
	if len(signals) != 2 {
		t.Fatalf("signals = %+v, want buy then stop-out", signals)
	}
	if signals[1].Action != model.ActionSell {
		t.Errorf("second signal = %s, want SELL", signals[1].Action)
	}
}

func TestRSIReversionSignals(t *testing.T) {
	s, err := New(config.StrategyConfig{
		Name: "rsi", Kind: "rsi_reversion", Symbol: "SBIN-EQ", Interval: time.Minute,
		Params: map[string]float64{"period": 3, "oversold": 30, "overbought": 70},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Straight decline pins RSI at 0, one strong up bar recovers it
	// through 30 for the entry, and the continued rally drives it to
	// overbought for the exit.
	closes := []float64{100, 98, 96, 94, 92, 90}
	closes = append(closes, 95, 100, 105, 110, 115)

	signals := collectSignals(s, barsFromCloses(closes...))
	if len(signals) != 2 {
		t.Fatalf("signals = %+v, want buy then sell", signals)
	}
	if signals[0].Action != model.ActionBuy || signals[1].Action != model.ActionSell {
		t.Errorf("actions = %s, %s", signals[0].Action, signals[1].Action)
	}
	if signals[0].Price >= signals[1].Price {
		t.Errorf("exit %v should be above entry %v in a rally", signals[1].Price, signals[0].Price)
	}
}

func TestRSIReversionNoReentry(t *testing.T) {
	s, _ := New(config.StrategyConfig{
		Name: "rsi", Kind: "rsi_reversion", Symbol: "SBIN-EQ", Interval: time.Minute,
		Params: map[string]float64{"period": 3, "oversold": 30, "overbought": 70},
	})

	// Only a decline: RSI stays pinned low with no recovery cross.
	closes := []float64{100, 98, 96, 94, 92, 90, 88, 86, 84}
	if signals := collectSignals(s, barsFromCloses(closes...)); len(signals) != 0 {
		t.Errorf("signals in pure decline = %+v", signals)
	}
}

func TestSupertrendSignals(t *testing.T) {
	s, err := New(config.StrategyConfig{
		Name: "st", Kind: "supertrend", Symbol: "SBIN-EQ", Interval: time.Minute,
		Params: map[string]float64{"period": 2, "multiplier": 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Flat warmup, strong rally to flip bullish, then a crash to flip
	// bearish.
	closes := []float64{100, 100, 100, 100}
	closes = append(closes, 110, 120, 130, 140)
	closes = append(closes, 120, 100, 80)

	signals := collectSignals(s, barsFromCloses(closes...))
	if len(signals) != 2 {
		t.Fatalf("signals = %+v, want flip up then flip down", signals)
	}
	if signals[0].Action != model.ActionBuy || signals[1].Action != model.ActionSell {
		t.Errorf("actions = %s, %s", signals[0].Action, signals[1].Action)
	}
}

func TestWarmupSuppressesSignals(t *testing.T) {
	s, _ := New(config.StrategyConfig{
		Name: "st", Kind: "supertrend", Symbol: "SBIN-EQ", Interval: time.Minute,
	})

	bars := barsFromCloses(100, 110, 120)
	for _, b := range bars {
		if _, ok := s.OnBar(b); ok {
			t.Fatal("signal during warmup")
		}
	}
}
