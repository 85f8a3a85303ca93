package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arjunkv/paperdesk/internal/calendar"
	"github.com/arjunkv/paperdesk/internal/model"
)

// Store is the SQLite-backed catalog.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and migrates) the catalog at path. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("catalog opened", "path", path)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol       TEXT    NOT NULL,
	interval_sec INTEGER NOT NULL,
	start_ts     INTEGER NOT NULL,
	open         REAL    NOT NULL,
	high         REAL    NOT NULL,
	low          REAL    NOT NULL,
	close        REAL    NOT NULL,
	volume       INTEGER NOT NULL,
	tick_count   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, interval_sec, start_ts)
);

CREATE TABLE IF NOT EXISTS instruments (
	token      TEXT NOT NULL PRIMARY KEY,
	symbol     TEXT NOT NULL,
	name       TEXT NOT NULL,
	exchange   TEXT NOT NULL,
	lot_size   INTEGER NOT NULL DEFAULT 1,
	tick_size  REAL NOT NULL DEFAULT 0.05,
	expiry_ts  INTEGER NOT NULL DEFAULT 0,
	inst_type  TEXT NOT NULL DEFAULT '',
	strike     REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_instruments_symbol ON instruments (symbol);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	return nil
}

// SaveBars upserts a batch of bars in one transaction.
func (s *Store) SaveBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO bars (symbol, interval_sec, start_ts, open, high, low, close, volume, tick_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (symbol, interval_sec, start_ts) DO UPDATE SET
	open = excluded.open, high = excluded.high, low = excluded.low,
	close = excluded.close, volume = excluded.volume, tick_count = excluded.tick_count`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			b.Symbol, int64(b.Interval.Seconds()), b.Start.Unix(),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.TickCount,
		); err != nil {
			return fmt.Errorf("insert bar %s @ %s: %w", b.Symbol, b.Start, err)
		}
	}

	return tx.Commit()
}

// LoadBars returns bars for a symbol and interval within [from, to), in
// time order. Satisfies the replay feed's loader interface.
func (s *Store) LoadBars(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]model.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT start_ts, open, high, low, close, volume, tick_count
FROM bars
WHERE symbol = ? AND interval_sec = ? AND start_ts >= ? AND start_ts < ?
ORDER BY start_ts`,
		symbol, int64(interval.Seconds()), from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var startTS int64
		b := model.Bar{Symbol: symbol, Interval: interval}
		if err := rows.Scan(&startTS, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.TickCount); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Start = time.Unix(startTS, 0)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Coverage summarizes stored data for one symbol and interval.
type Coverage struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Bars     int64     `json:"bars"`
	First    time.Time `json:"first"`
	Last     time.Time `json:"last"`
}

// ListCoverage reports what the catalog holds, per symbol and interval.
func (s *Store) ListCoverage(ctx context.Context) ([]Coverage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, interval_sec, COUNT(*), MIN(start_ts), MAX(start_ts)
FROM bars
GROUP BY symbol, interval_sec
ORDER BY symbol, interval_sec`)
	if err != nil {
		return nil, fmt.Errorf("query coverage: %w", err)
	}
	defer rows.Close()

	var out []Coverage
	for rows.Next() {
		var c Coverage
		var intervalSec, first, last int64
		if err := rows.Scan(&c.Symbol, &intervalSec, &c.Bars, &first, &last); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		c.Interval = (time.Duration(intervalSec) * time.Second).String()
		c.First = time.Unix(first, 0)
		c.Last = time.Unix(last, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ValidateBars checks stored bars for OHLC sanity and alignment, returning
// one message per defect.
func (s *Store) ValidateBars(ctx context.Context, symbol string, interval time.Duration) ([]string, error) {
	bars, err := s.LoadBars(ctx, symbol, interval, time.Unix(0, 0), time.Now().Add(24*time.Hour))
	if err != nil {
		return nil, err
	}

	var problems []string
	for _, b := range bars {
		if b.High < b.Low {
			problems = append(problems, fmt.Sprintf("%s %s: high %.2f below low %.2f", symbol, b.Start, b.High, b.Low))
		}
		if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
			problems = append(problems, fmt.Sprintf("%s %s: open/close outside range", symbol, b.Start))
		}
		if !alignedToInterval(b.Start, interval) {
			problems = append(problems, fmt.Sprintf("%s %s: start not aligned to %s", symbol, b.Start, interval))
		}
		if b.Volume < 0 {
			problems = append(problems, fmt.Sprintf("%s %s: negative volume", symbol, b.Start))
		}
	}
	return problems, nil
}

// alignedToInterval reports whether start sits on an interval boundary
// measured from IST midnight, matching how the aggregator buckets bars.
// A UTC-epoch modulus would reject valid hourly bars: the +05:30 offset
// does not divide an hour.
func alignedToInterval(start time.Time, interval time.Duration) bool {
	local := start.In(calendar.IST)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, calendar.IST)
	return local.Sub(midnight)%interval == 0
}

// SaveInstruments replaces the instrument master in one transaction.
func (s *Store) SaveInstruments(ctx context.Context, instruments []model.Instrument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM instruments`); err != nil {
		return fmt.Errorf("clear instruments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO instruments (token, symbol, name, exchange, lot_size, tick_size, expiry_ts, inst_type, strike)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, in := range instruments {
		var expiry int64
		if !in.Expiry.IsZero() {
			expiry = in.Expiry.Unix()
		}
		if _, err := stmt.ExecContext(ctx,
			in.Token, in.Symbol, in.Name, string(in.Exchange),
			in.LotSize, in.TickSize, expiry, in.InstType, in.StrikePrice,
		); err != nil {
			return fmt.Errorf("insert instrument %s: %w", in.Token, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("instrument master saved", "count", len(instruments))
	return nil
}

// InstrumentBySymbol resolves a trading symbol on an exchange.
func (s *Store) InstrumentBySymbol(ctx context.Context, exchange, symbol string) (model.Instrument, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT token, symbol, name, exchange, lot_size, tick_size, expiry_ts, inst_type, strike
FROM instruments WHERE exchange = ? AND symbol = ?`, exchange, symbol)
	return scanInstrument(row)
}

// InstrumentByToken resolves an exchange token.
func (s *Store) InstrumentByToken(ctx context.Context, token string) (model.Instrument, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT token, symbol, name, exchange, lot_size, tick_size, expiry_ts, inst_type, strike
FROM instruments WHERE token = ?`, token)
	return scanInstrument(row)
}

// SearchInstruments returns instruments whose symbol or name contains the
// query, capped at limit.
func (s *Store) SearchInstruments(ctx context.Context, query string, limit int) ([]model.Instrument, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
SELECT token, symbol, name, exchange, lot_size, tick_size, expiry_ts, inst_type, strike
FROM instruments WHERE symbol LIKE ? OR name LIKE ? ORDER BY symbol LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search instruments: %w", err)
	}
	defer rows.Close()

	var out []model.Instrument
	for rows.Next() {
		in, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// InstrumentCount returns the number of stored instruments.
func (s *Store) InstrumentCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM instruments`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstrument(row rowScanner) (model.Instrument, error) {
	var in model.Instrument
	var exchange string
	var expiry int64
	err := row.Scan(&in.Token, &in.Symbol, &in.Name, &exchange,
		&in.LotSize, &in.TickSize, &expiry, &in.InstType, &in.StrikePrice)
	if err == sql.ErrNoRows {
		return model.Instrument{}, fmt.Errorf("instrument not found")
	}
	if err != nil {
		return model.Instrument{}, fmt.Errorf("scan instrument: %w", err)
	}
	in.Exchange = model.Exchange(exchange)
	if expiry > 0 {
		in.Expiry = time.Unix(expiry, 0)
	}
	return in, nil
}
