// Package catalog is the local historical data store: OHLCV bars and the
// exchange instrument master, kept in a single SQLite file. The replay
// feed and the backtester read from it; the bar writer and the scrip
// master refresher write into it.
package catalog
