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

// BarWriter consumes completed bars and appends them to the bars table.
// Re-emitted partial bars upsert over their earlier row.
type BarWriter struct {
	cfg    Config
	logger *slog.Logger

	input *dispatch.Queue[model.Bar]
	db    *pgxpool.Pool

	insert func(ctx context.Context, rows []model.Bar) (int, error)

	batch       []model.Bar
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewBarWriter creates a bar writer.
func NewBarWriter(cfg Config, input *dispatch.Queue[model.Bar], db *pgxpool.Pool, logger *slog.Logger) *BarWriter {
	if logger == nil {
		logger = slog.Default()
	}
	w := &BarWriter{
		cfg:    cfg,
		logger: logger,
		input:  input,
		db:     db,
		batch:  make([]model.Bar, 0, cfg.BatchSize),
	}
	w.insert = w.batchInsert
	return w
}

// Start begins consuming and writing.
func (w *BarWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("bar writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains goroutines and performs a final flush.
func (w *BarWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping bar writer")

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
		w.logger.Info("bar writer stopped")
	case <-ctx.Done():
		w.logger.Warn("bar writer stop timed out")
	}

	for _, bar := range w.input.Drain(0) {
		w.batchMu.Lock()
		w.batch = append(w.batch, bar)
		w.batchMu.Unlock()
	}
	// Final flush runs on the caller's context: w.ctx is already
	// cancelled at this point.
	w.flush(ctx)
	return nil
}

// Stats returns writer counters.
func (w *BarWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *BarWriter) consumeLoop() {
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

			for _, bar := range drained {
				metrics.BarsBuilt.WithLabelValues(bar.Interval.String()).Inc()
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

func (w *BarWriter) flushLoop() {
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

func (w *BarWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]model.Bar, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	conflicts, err := w.insert(ctx, batch)
	if err != nil {
		w.logger.Error("bar batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	metrics.WriteBatchSize.WithLabelValues("bars").Observe(float64(len(batch)))

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed bars", "count", len(batch), "duration", time.Since(start))
}

func (w *BarWriter) batchInsert(ctx context.Context, rows []model.Bar) (int, error) {
	batch := &pgx.Batch{}
	for _, b := range rows {
		batch.Queue(`
			INSERT INTO bars (symbol, interval_sec, start_ts, open, high, low, close, volume, tick_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (symbol, interval_sec, start_ts) DO UPDATE SET
				open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
				close = EXCLUDED.close, volume = EXCLUDED.volume, tick_count = EXCLUDED.tick_count
		`, b.Symbol, int64(b.Interval.Seconds()), b.Start,
			b.Open, b.High, b.Low, b.Close, b.Volume, b.TickCount)
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
