// Package writer implements batch writers for the live archive.
//
// Writers:
//   - Tick writer (raw feed ticks)
//   - Bar writer (aggregated OHLCV)
//   - Journal writer (executed paper fills)
//
// All writers are append-only. Each consumes a growable queue so bursts
// never block the hot path, batches rows, and flushes on a size threshold
// or a timer, with a final flush on Stop.
package writer
