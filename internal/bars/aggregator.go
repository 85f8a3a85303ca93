// Package bars aggregates ticks into OHLCV bars across multiple intervals.
package bars

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arjunkv/paperdesk/internal/calendar"
	"github.com/arjunkv/paperdesk/internal/model"
)

// Aggregator builds OHLCV bars from a tick stream for every configured
// interval. A bar closes when a tick arrives in the next bucket; partial
// bars are emitted by Flush, typically at session end.
type Aggregator struct {
	intervals []time.Duration
	out       chan model.Bar
	logger    *slog.Logger

	mu      sync.Mutex
	working map[barKey]*model.Bar
	built   uint64
	dropped uint64
}

type barKey struct {
	symbol   string
	interval time.Duration
}

// NewAggregator creates an aggregator for the given intervals. Intervals
// must evenly divide a day.
func NewAggregator(intervals []time.Duration, bufferSize int, logger *slog.Logger) (*Aggregator, error) {
	if len(intervals) == 0 {
		return nil, fmt.Errorf("at least one interval is required")
	}
	for _, iv := range intervals {
		if iv < time.Second {
			return nil, fmt.Errorf("interval %v is below one second", iv)
		}
		if (24*time.Hour)%iv != 0 {
			return nil, fmt.Errorf("interval %v does not evenly divide a day", iv)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}

	ivs := append([]time.Duration(nil), intervals...)
	sort.Slice(ivs, func(i, j int) bool { return ivs[i] < ivs[j] })

	return &Aggregator{
		intervals: ivs,
		out:       make(chan model.Bar, bufferSize),
		logger:    logger,
		working:   make(map[barKey]*model.Bar),
	}, nil
}

// Bars returns the channel completed bars are emitted on.
func (a *Aggregator) Bars() <-chan model.Bar {
	return a.out
}

// Process folds a tick into the working bar of every interval, emitting
// any bars the tick closes.
func (a *Aggregator) Process(tick model.Tick) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, iv := range a.intervals {
		key := barKey{symbol: tick.Symbol, interval: iv}
		bucket := bucketStart(tick.ExchangeTS, iv)

		cur := a.working[key]
		if cur != nil && !cur.Start.Equal(bucket) {
			a.emit(*cur)
			cur = nil
		}

		if cur == nil {
			a.working[key] = &model.Bar{
				Symbol:    tick.Symbol,
				Interval:  iv,
				Start:     bucket,
				Open:      tick.LTP,
				High:      tick.LTP,
				Low:       tick.LTP,
				Close:     tick.LTP,
				Volume:    tick.LastQty,
				TickCount: 1,
			}
			continue
		}

		if tick.LTP > cur.High {
			cur.High = tick.LTP
		}
		if tick.LTP < cur.Low {
			cur.Low = tick.LTP
		}
		cur.Close = tick.LTP
		cur.Volume += tick.LastQty
		cur.TickCount++
	}
}

// Flush emits all working bars as partial bars and clears state. Called at
// session close or shutdown.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, bar := range a.working {
		a.emit(*bar)
		delete(a.working, key)
	}
}

// emit sends a completed bar, dropping when the consumer is behind.
// Caller holds a.mu.
func (a *Aggregator) emit(bar model.Bar) {
	select {
	case a.out <- bar:
		a.built++
	default:
		a.dropped++
		a.logger.Warn("bar channel full, dropping bar",
			"symbol", bar.Symbol,
			"interval", bar.Interval.String(),
			"start", bar.Start,
		)
	}
}

// Stats reports aggregation counters.
type Stats struct {
	Built   uint64 `json:"built"`
	Dropped uint64 `json:"dropped"`
	Working int    `json:"working"`
}

// Stats returns a snapshot of aggregation counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{Built: a.built, Dropped: a.dropped, Working: len(a.working)}
}

// bucketStart aligns t to the start of its interval bucket, measured from
// IST midnight so intraday bars line up with exchange timestamps.
func bucketStart(t time.Time, interval time.Duration) time.Time {
	local := t.In(calendar.IST)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, calendar.IST)
	offset := local.Sub(midnight)
	return midnight.Add(offset - offset%interval)
}
