package feed

import (
	"context"
	"testing"
	"time"

	"github.com/arjunkv/paperdesk/internal/calendar"
	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/model"
)

type stubLoader struct {
	bars map[string][]model.Bar
}

func (s *stubLoader) LoadBars(_ context.Context, symbol string, _ time.Duration, _, _ time.Time) ([]model.Bar, error) {
	return s.bars[symbol], nil
}

func replayConfig() config.FeedConfig {
	return config.FeedConfig{
		Mode:           "replay",
		BufferSize:     100,
		ReplayInterval: time.Minute,
		ReplaySpeed:    0, // flat out
		Symbols: []config.SymbolConfig{
			{Symbol: "SBIN-EQ", Token: "3045", Exchange: "NSE"},
		},
	}
}

func minuteBar(hour, min int, o, h, l, c float64, vol int64) model.Bar {
	return model.Bar{
		Symbol:   "SBIN-EQ",
		Interval: time.Minute,
		Start:    time.Date(2025, 7, 15, hour, min, 0, 0, calendar.IST),
		Open:     o, High: h, Low: l, Close: c,
		Volume: vol,
	}
}

func TestReplayEmitsBarTicks(t *testing.T) {
	loader := &stubLoader{bars: map[string][]model.Bar{
		"SBIN-EQ": {
			minuteBar(9, 15, 800, 805, 798, 803, 400),
			minuteBar(9, 16, 803, 804, 801, 802, 200),
		},
	}}

	from := time.Date(2025, 7, 15, 0, 0, 0, 0, calendar.IST)
	to := from.Add(24 * time.Hour)
	f := NewReplayFeed(replayConfig(), loader, from, to, nil)

	if err := f.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var ticks []model.Tick
	timeout := time.After(2 * time.Second)
	for {
		select {
		case tick, ok := <-f.Ticks():
			if !ok {
				goto done
			}
			ticks = append(ticks, tick)
		case <-timeout:
			t.Fatal("replay did not finish")
		}
	}
done:

	if len(ticks) != 8 {
		t.Fatalf("got %d ticks, want 8 (4 per bar)", len(ticks))
	}

	// First bar expands to O, H, L, C in order.
	wantPrices := []float64{800, 805, 798, 803}
	for i, w := range wantPrices {
		if ticks[i].LTP != w {
			t.Errorf("tick %d LTP = %v, want %v", i, ticks[i].LTP, w)
		}
	}

	// Volume is spread across the four ticks.
	if ticks[0].LastQty != 100 {
		t.Errorf("LastQty = %d, want 100", ticks[0].LastQty)
	}

	// Timestamps are ordered.
	for i := 1; i < len(ticks); i++ {
		if ticks[i].ExchangeTS.Before(ticks[i-1].ExchangeTS) {
			t.Fatalf("ticks out of order at %d", i)
		}
	}

	if st := f.Stats(); st.TicksEmitted != 8 {
		t.Errorf("TicksEmitted = %d, want 8", st.TicksEmitted)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f.Stop(ctx)
}

func TestReplayEmptyWindow(t *testing.T) {
	loader := &stubLoader{bars: map[string][]model.Bar{}}
	from := time.Date(2025, 7, 15, 0, 0, 0, 0, calendar.IST)
	f := NewReplayFeed(replayConfig(), loader, from, from.Add(24*time.Hour), nil)

	if err := f.Start(context.Background()); err == nil {
		t.Error("expected error for empty replay window")
	}
}
