package writer

import "time"

// Config holds batching behaviour shared by all writers.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// Metrics counts writer activity.
type Metrics struct {
	Inserts   int64 `json:"inserts"`
	Conflicts int64 `json:"conflicts"`
	Flushes   int64 `json:"flushes"`
	Errors    int64 `json:"errors"`
}
