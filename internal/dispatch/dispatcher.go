// Package dispatch fans the tick stream out to consumers.
//
// Live consumers (strategies, bar aggregation, the stream hub) get bounded
// channels with drop-on-full semantics so a slow consumer cannot stall the
// feed. The persistence path uses Queue, which grows instead of dropping.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/arjunkv/paperdesk/internal/metrics"
	"github.com/arjunkv/paperdesk/internal/model"
)

// Dispatcher reads ticks from the feed and fans them out to subscribers.
type Dispatcher struct {
	input  <-chan model.Tick
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	subs      map[string]chan model.Tick
	lastTicks map[string]model.Tick
	received  int64
	dropped   int64
}

// NewDispatcher creates a dispatcher over the feed's tick channel.
func NewDispatcher(input <-chan model.Tick, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		input:     input,
		logger:    logger,
		subs:      make(map[string]chan model.Tick),
		lastTicks: make(map[string]model.Tick),
	}
}

// Subscribe registers a named consumer with its own bounded queue. Ticks
// are dropped for this consumer when the queue is full.
func (d *Dispatcher) Subscribe(name string, size int) <-chan model.Tick {
	if size < 1 {
		size = 1
	}
	ch := make(chan model.Tick, size)

	d.mu.Lock()
	d.subs[name] = ch
	d.mu.Unlock()

	d.logger.Info("tick consumer subscribed", "consumer", name, "queue_size", size)
	return ch
}

// Unsubscribe removes a consumer and closes its channel.
func (d *Dispatcher) Unsubscribe(name string) {
	d.mu.Lock()
	ch, ok := d.subs[name]
	if ok {
		delete(d.subs, name)
	}
	d.mu.Unlock()

	if ok {
		close(ch)
	}
}

// Start begins fanning out ticks.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.fanoutLoop()

	d.logger.Info("tick dispatcher started")
	return nil
}

// Stop shuts the dispatcher down and closes all subscriber channels.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.logger.Info("stopping tick dispatcher")

	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("tick dispatcher stop timed out")
	}

	d.mu.Lock()
	for name, ch := range d.subs {
		close(ch)
		delete(d.subs, name)
	}
	d.mu.Unlock()

	d.logger.Info("tick dispatcher stopped")
	return nil
}

// LastTick returns the most recent tick seen for a symbol.
func (d *Dispatcher) LastTick(symbol string) (model.Tick, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.lastTicks[symbol]
	return t, ok
}

// LastPrices returns the last traded price of every symbol seen so far.
func (d *Dispatcher) LastPrices() map[string]float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]float64, len(d.lastTicks))
	for sym, t := range d.lastTicks {
		out[sym] = t.LTP
	}
	return out
}

// DispatcherStats reports fanout counters.
type DispatcherStats struct {
	Received    int64 `json:"received"`
	Dropped     int64 `json:"dropped"`
	Subscribers int   `json:"subscribers"`
}

// Stats returns a snapshot of fanout counters.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return DispatcherStats{Received: d.received, Dropped: d.dropped, Subscribers: len(d.subs)}
}

func (d *Dispatcher) fanoutLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case tick, ok := <-d.input:
			if !ok {
				d.logger.Info("tick input channel closed")
				return
			}
			d.fanout(tick)
		}
	}
}

func (d *Dispatcher) fanout(tick model.Tick) {
	metrics.TicksReceived.Inc()

	d.mu.Lock()
	d.received++
	d.lastTicks[tick.Symbol] = tick

	for name, ch := range d.subs {
		select {
		case ch <- tick:
		default:
			d.dropped++
			metrics.TicksDropped.WithLabelValues(name).Inc()
		}
	}
	d.mu.Unlock()
}
