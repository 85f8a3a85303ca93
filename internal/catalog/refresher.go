package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Refresher periodically re-downloads the scrip master into the store so
// symbol resolution and lot sizes stay current across expiries.
type Refresher struct {
	interval  time.Duration
	exchanges []string
	client    *ScripClient
	store     *Store
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	lastRefresh time.Time
	lastErr     error
}

// NewRefresher creates a refresher for the given exchanges.
func NewRefresher(interval time.Duration, exchanges []string, client *ScripClient, store *Store, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Refresher{
		interval:  interval,
		exchanges: exchanges,
		client:    client,
		store:     store,
		logger:    logger,
	}
}

// Start begins the refresh loop. The first refresh runs immediately when
// the store holds no instruments.
func (r *Refresher) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("scrip master refresher started", "interval", r.interval)
	return nil
}

// Stop shuts the refresher down.
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("scrip master refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastRefresh reports the time of the last successful refresh and the
// last error, for the health endpoint.
func (r *Refresher) LastRefresh() (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh, r.lastErr
}

func (r *Refresher) run() {
	defer r.wg.Done()

	if count, err := r.store.InstrumentCount(r.ctx); err == nil && count == 0 {
		r.refresh()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.refresh()
		}
	}
}

func (r *Refresher) refresh() {
	start := time.Now()
	instruments, err := r.client.Fetch(r.ctx, r.exchanges...)
	if err == nil {
		err = r.store.SaveInstruments(r.ctx, instruments)
	}

	r.mu.Lock()
	r.lastErr = err
	if err == nil {
		r.lastRefresh = time.Now()
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("scrip master refresh failed", "error", err)
		return
	}
	r.logger.Info("scrip master refreshed",
		"instruments", len(instruments),
		"took", time.Since(start).Round(time.Millisecond),
	)
}
