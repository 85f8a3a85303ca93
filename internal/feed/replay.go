package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/model"
)

// BarLoader loads historical bars, implemented by the catalog store.
type BarLoader interface {
	LoadBars(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]model.Bar, error)
}

// ReplayFeed re-plays recorded bars as synthetic ticks. Each bar becomes
// four ticks (open, high, low, close) spread across the bar's interval, so
// strategies and aggregation behave as they would live.
type ReplayFeed struct {
	cfg    config.FeedConfig
	loader BarLoader
	from   time.Time
	to     time.Time
	logger *slog.Logger

	out chan model.Tick

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	emitted int64
	running bool
}

// NewReplayFeed creates a replay feed over the [from, to) window.
func NewReplayFeed(cfg config.FeedConfig, loader BarLoader, from, to time.Time, logger *slog.Logger) *ReplayFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayFeed{
		cfg:    cfg,
		loader: loader,
		from:   from,
		to:     to,
		logger: logger,
		out:    make(chan model.Tick, cfg.BufferSize),
	}
}

// Start loads the window and begins emitting ticks in timestamp order.
func (f *ReplayFeed) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	ticks, err := f.loadTicks()
	if err != nil {
		return fmt.Errorf("load replay window: %w", err)
	}
	if len(ticks) == 0 {
		return fmt.Errorf("no bars in replay window %s to %s", f.from.Format("2006-01-02"), f.to.Format("2006-01-02"))
	}

	f.mu.Lock()
	f.running = true
	f.mu.Unlock()

	f.wg.Add(1)
	go f.emitLoop(ticks)

	f.logger.Info("replay feed started",
		"symbols", len(f.cfg.Symbols),
		"ticks", len(ticks),
		"speed", f.cfg.ReplaySpeed,
	)
	return nil
}

// Stop shuts the replay down.
func (f *ReplayFeed) Stop(ctx context.Context) error {
	if f.cancel != nil {
		f.cancel()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		f.logger.Warn("replay feed stop timed out")
	}

	f.logger.Info("replay feed stopped")
	return nil
}

// Ticks returns the output tick channel. The channel closes when the
// window is exhausted.
func (f *ReplayFeed) Ticks() <-chan model.Tick {
	return f.out
}

// Stats returns feed counters.
func (f *ReplayFeed) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Stats{TicksEmitted: f.emitted, Connected: f.running}
}

// loadTicks loads every symbol's bars concurrently and flattens them into
// one timestamp-ordered tick sequence.
func (f *ReplayFeed) loadTicks() ([]model.Tick, error) {
	perSymbol := make([][]model.Tick, len(f.cfg.Symbols))

	g, ctx := errgroup.WithContext(f.ctx)
	g.SetLimit(4)
	for i, sym := range f.cfg.Symbols {
		g.Go(func() error {
			bars, err := f.loader.LoadBars(ctx, sym.Symbol, f.cfg.ReplayInterval, f.from, f.to)
			if err != nil {
				return fmt.Errorf("load bars for %s: %w", sym.Symbol, err)
			}
			ticks := make([]model.Tick, 0, len(bars)*4)
			for _, bar := range bars {
				ticks = append(ticks, barTicks(sym, bar)...)
			}
			perSymbol[i] = ticks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ticks []model.Tick
	for _, ts := range perSymbol {
		ticks = append(ticks, ts...)
	}
	sort.Slice(ticks, func(i, j int) bool {
		return ticks[i].ExchangeTS.Before(ticks[j].ExchangeTS)
	})
	return ticks, nil
}

// barTicks expands a bar into open, high, low and close ticks.
func barTicks(sym config.SymbolConfig, bar model.Bar) []model.Tick {
	quarter := bar.Interval / 4
	qty := bar.Volume / 4
	if qty < 1 {
		qty = 1
	}

	prices := [4]float64{bar.Open, bar.High, bar.Low, bar.Close}
	out := make([]model.Tick, 4)
	for i, price := range prices {
		out[i] = model.Tick{
			Symbol:     sym.Symbol,
			Token:      sym.Token,
			LTP:        price,
			LastQty:    qty,
			ExchangeTS: bar.Start.Add(time.Duration(i) * quarter),
		}
	}
	return out
}

func (f *ReplayFeed) emitLoop(ticks []model.Tick) {
	defer f.wg.Done()
	defer close(f.out)
	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	var prev time.Time
	for _, tick := range ticks {
		// Pace by scaled wall-clock gaps; speed 0 replays flat out.
		if f.cfg.ReplaySpeed > 0 && !prev.IsZero() {
			gap := tick.ExchangeTS.Sub(prev)
			if gap > 0 {
				select {
				case <-f.ctx.Done():
					return
				case <-time.After(time.Duration(float64(gap) / f.cfg.ReplaySpeed)):
				}
			}
		}
		prev = tick.ExchangeTS

		tick.ReceivedAt = time.Now()
		select {
		case f.out <- tick:
			f.mu.Lock()
			f.emitted++
			f.mu.Unlock()
		case <-f.ctx.Done():
			return
		}
	}

	f.logger.Info("replay window exhausted", "ticks", len(ticks))
}
