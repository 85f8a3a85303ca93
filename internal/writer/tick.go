package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arjunkv/paperdesk/internal/dispatch"
	"github.com/arjunkv/paperdesk/internal/metrics"
	"github.com/arjunkv/paperdesk/internal/model"
)

// TickWriter consumes ticks from its queue and appends them to the ticks
// table in batches.
type TickWriter struct {
	cfg    Config
	logger *slog.Logger

	input *dispatch.Queue[model.Tick]
	db    *pgxpool.Pool

	// insert is swappable for tests.
	insert func(ctx context.Context, rows []model.Tick) (int, error)

	batch       []model.Tick
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewTickWriter creates a tick writer.
func NewTickWriter(cfg Config, input *dispatch.Queue[model.Tick], db *pgxpool.Pool, logger *slog.Logger) *TickWriter {
	if logger == nil {
		logger = slog.Default()
	}
	w := &TickWriter{
		cfg:    cfg,
		logger: logger,
		input:  input,
		db:     db,
		batch:  make([]model.Tick, 0, cfg.BatchSize),
	}
	w.insert = w.batchInsert
	return w
}

// Start begins consuming and writing.
func (w *TickWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("tick writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains goroutines and performs a final flush.
func (w *TickWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping tick writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("tick writer stopped")
	case <-ctx.Done():
		w.logger.Warn("tick writer stop timed out")
	}

	// Drain whatever is still queued, then flush.
	for _, tick := range w.input.Drain(0) {
		w.batchMu.Lock()
		w.batch = append(w.batch, tick)
		w.batchMu.Unlock()
	}
	// Final flush runs on the caller's context: w.ctx is already
	// cancelled at this point.
	w.flush(ctx)
	return nil
}

// Stats returns writer counters.
func (w *TickWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *TickWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			drained := w.input.Drain(w.cfg.BatchSize)
			if len(drained) == 0 {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			w.batchMu.Lock()
			w.batch = append(w.batch, drained...)
			shouldFlush := len(w.batch) >= w.cfg.BatchSize
			w.batchMu.Unlock()

			if shouldFlush {
				w.flush(w.ctx)
			}
		}
	}
}

func (w *TickWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *TickWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]model.Tick, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	conflicts, err := w.insert(ctx, batch)
	if err != nil {
		w.logger.Error("tick batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	metrics.WriteBatchSize.WithLabelValues("ticks").Observe(float64(len(batch)))

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed ticks", "count", len(batch), "duration", time.Since(start))
}

func (w *TickWriter) batchInsert(ctx context.Context, rows []model.Tick) (int, error) {
	batch := &pgx.Batch{}
	for _, t := range rows {
		batch.Queue(`
			INSERT INTO ticks (symbol, token, ltp, bid, ask, last_qty, volume, exchange_ts, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, t.Symbol, t.Token, t.LTP, t.Bid, t.Ask, t.LastQty, t.Volume, t.ExchangeTS, t.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return 0, err
		}
	}
	return 0, nil
}
