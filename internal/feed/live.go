package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/metrics"
	"github.com/arjunkv/paperdesk/internal/model"
)

// LiveFeed connects to the upstream tick stream over WebSocket, parses
// frames into ticks and reconnects with backoff when the connection dies.
type LiveFeed struct {
	cfg    config.FeedConfig
	logger *slog.Logger

	// newClient is swappable for tests.
	newClient func(ClientConfig, *slog.Logger) Client

	out chan model.Tick

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	client      Client
	emitted     int64
	parseErrors int64
	reconnects  int64
}

// NewLiveFeed creates a live feed from config.
func NewLiveFeed(cfg config.FeedConfig, logger *slog.Logger) *LiveFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveFeed{
		cfg:       cfg,
		logger:    logger,
		newClient: NewClient,
		out:       make(chan model.Tick, cfg.BufferSize),
	}
}

// Start connects and begins emitting ticks.
func (f *LiveFeed) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	client, err := f.connect()
	if err != nil {
		// First connect may fail (market closed, upstream down). The run
		// loop keeps retrying.
		f.logger.Warn("initial feed connect failed, will retry", "error", err)
	}

	f.wg.Add(1)
	go f.runLoop(client)

	f.logger.Info("live feed started", "url", f.cfg.URL, "symbols", len(f.cfg.Symbols))
	return nil
}

// Stop shuts the feed down.
func (f *LiveFeed) Stop(ctx context.Context) error {
	f.logger.Info("stopping live feed")

	if f.cancel != nil {
		f.cancel()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	drained := false
	select {
	case <-done:
		drained = true
	case <-ctx.Done():
		f.logger.Warn("live feed stop timed out")
	}

	f.mu.Lock()
	if f.client != nil {
		f.client.Close()
	}
	f.mu.Unlock()

	// Only close the output once the run loop has actually exited. On a
	// timed-out stop it may still be sending.
	if drained {
		close(f.out)
	}
	f.logger.Info("live feed stopped")
	return nil
}

// Ticks returns the output tick channel.
func (f *LiveFeed) Ticks() <-chan model.Tick {
	return f.out
}

// Stats returns feed counters.
func (f *LiveFeed) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	connected := f.client != nil && f.client.IsConnected()
	return Stats{
		TicksEmitted: f.emitted,
		ParseErrors:  f.parseErrors,
		Reconnects:   f.reconnects,
		Connected:    connected,
	}
}

// connect dials the upstream and subscribes the configured tokens.
func (f *LiveFeed) connect() (Client, error) {
	client := f.newClient(ClientConfig{
		URL:          f.cfg.URL,
		AuthToken:    f.cfg.AuthToken,
		PingTimeout:  f.cfg.ReadTimeout,
		WriteTimeout: 5 * time.Second,
		BufferSize:   f.cfg.BufferSize,
	}, f.logger)

	if err := client.Connect(f.ctx); err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(f.cfg.Symbols))
	for _, s := range f.cfg.Symbols {
		tokens = append(tokens, s.Token)
	}
	if len(tokens) > 0 {
		if err := client.Send(marshalSubscribe("subscribe", tokens)); err != nil {
			client.Close()
			return nil, err
		}
	}

	f.mu.Lock()
	f.client = client
	f.mu.Unlock()
	return client, nil
}

// runLoop reads frames until the connection errors, then reconnects with
// exponential backoff and jitter.
func (f *LiveFeed) runLoop(client Client) {
	defer f.wg.Done()

	for {
		if client == nil {
			var err error
			client, err = f.reconnect()
			if err != nil {
				return // context cancelled
			}
		}

		if !f.readUntilError(client) {
			return
		}
		client.Close()
		client = nil
	}
}

// readUntilError consumes frames from one connection. Returns false when
// the feed is shutting down.
func (f *LiveFeed) readUntilError(client Client) bool {
	for {
		select {
		case <-f.ctx.Done():
			return false

		case err := <-client.Errors():
			f.logger.Warn("feed connection error", "error", err)
			return true

		case msg, ok := <-client.Messages():
			if !ok {
				return true
			}
			f.handleFrame(msg)
		}
	}
}

func (f *LiveFeed) handleFrame(msg TimestampedMessage) {
	var wire tickWire
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		f.mu.Lock()
		f.parseErrors++
		f.mu.Unlock()
		f.logger.Warn("failed to parse feed frame", "error", err)
		return
	}
	if wire.Type != "tick" {
		return // subscription acks, heartbeats
	}

	tick := model.Tick{
		Symbol:     wire.Symbol,
		Token:      wire.Token,
		LTP:        wire.LTP,
		Bid:        wire.Bid,
		Ask:        wire.Ask,
		LastQty:    wire.LastQty,
		Volume:     wire.Volume,
		ExchangeTS: time.UnixMilli(wire.TS),
		ReceivedAt: msg.ReceivedAt,
	}
	if tick.LastQty == 0 {
		tick.LastQty = 1
	}

	select {
	case f.out <- tick:
		f.mu.Lock()
		f.emitted++
		f.mu.Unlock()
	case <-f.ctx.Done():
	default:
		f.logger.Warn("tick channel full, dropping tick", "symbol", tick.Symbol)
	}
}

// reconnect retries the connection with exponential backoff plus jitter.
// Returns an error only when the context is cancelled.
func (f *LiveFeed) reconnect() (Client, error) {
	wait := f.cfg.ReconnectBaseDelay

	for {
		select {
		case <-f.ctx.Done():
			return nil, f.ctx.Err()
		case <-time.After(withJitter(wait)):
		}

		f.mu.Lock()
		f.reconnects++
		f.mu.Unlock()
		metrics.FeedReconnects.Inc()

		f.logger.Info("attempting feed reconnection")
		client, err := f.connect()
		if err == nil {
			f.logger.Info("feed reconnected")
			return client, nil
		}

		f.logger.Warn("feed reconnection failed", "error", err, "next_wait", wait)
		wait *= 2
		if wait > f.cfg.ReconnectMaxDelay {
			wait = f.cfg.ReconnectMaxDelay
		}
	}
}

// withJitter spreads reconnect attempts by ±25%.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	delta := time.Duration(rand.Int63n(int64(d) / 2))
	return d*3/4 + delta
}
