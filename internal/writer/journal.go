package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arjunkv/paperdesk/internal/dispatch"
	"github.com/arjunkv/paperdesk/internal/model"
)

// JournalWriter appends executed paper fills to the fills table. The
// paper engine pushes fills via Record, so execution never waits on the
// database.
type JournalWriter struct {
	cfg    Config
	logger *slog.Logger

	input *dispatch.Queue[model.Fill]
	db    *pgxpool.Pool

	insert func(ctx context.Context, rows []model.Fill) (int, error)

	batch       []model.Fill
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewJournalWriter creates a fill journal writer.
func NewJournalWriter(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *JournalWriter {
	if logger == nil {
		logger = slog.Default()
	}
	w := &JournalWriter{
		cfg:    cfg,
		logger: logger,
		input:  dispatch.NewQueue[model.Fill](256),
		db:     db,
		batch:  make([]model.Fill, 0, cfg.BatchSize),
	}
	w.insert = w.batchInsert
	return w
}

// Record queues a fill for persistence. Safe from any goroutine.
func (w *JournalWriter) Record(fill model.Fill) {
	w.input.Push(fill)
}

// Start begins consuming and writing.
func (w *JournalWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started", "batch_size", w.cfg.BatchSize)
	return nil
}

// Stop drains goroutines and performs a final flush.
func (w *JournalWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

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
		w.logger.Info("journal writer stopped")
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
	}

	for _, fill := range w.input.Drain(0) {
		w.batchMu.Lock()
		w.batch = append(w.batch, fill)
		w.batchMu.Unlock()
	}
	// Final flush runs on the caller's context: w.ctx is already
	// cancelled at this point.
	w.flush(ctx)
	return nil
}

// Stats returns writer counters.
func (w *JournalWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *JournalWriter) consumeLoop() {
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

func (w *JournalWriter) flushLoop() {
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

func (w *JournalWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]model.Fill, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	conflicts, err := w.insert(ctx, batch)
	if err != nil {
		w.logger.Error("journal batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()
}

func (w *JournalWriter) batchInsert(ctx context.Context, rows []model.Fill) (int, error) {
	batch := &pgx.Batch{}
	for _, f := range rows {
		batch.Queue(`
			INSERT INTO fills (order_id, symbol, side, quantity, price, commission, pnl, filled_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (order_id, filled_at) DO NOTHING
		`, f.OrderID, f.Symbol, f.Side.String(), f.Quantity, f.Price, f.Commission, f.PnL, f.FilledAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	conflicts := 0
	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
