// Package compliance enforces exchange algo-trading rules on outgoing
// order flow: a registered algo identifier on every order, an order
// rate throttle, and an audit trail of approvals and rejections.
package compliance

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/model"
)

// ErrThrottled is returned when order flow exceeds the configured rate.
var ErrThrottled = errors.New("compliance: order rate limit exceeded")

// Defaults for unconfigured guards. NSE caps unregistered retail algo
// flow at 10 orders per second per user.
const (
	defaultOrdersPerSecond = 10
	defaultBurst           = 10
	auditCapacity          = 1000
)

// AuditEntry records one order-flow decision.
type AuditEntry struct {
	At       time.Time `json:"at"`
	AlgoID   string    `json:"algo_id"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	Quantity int64     `json:"quantity"`
	Price    float64   `json:"price"`
	Decision string    `json:"decision"` // "approved" or "throttled"
}

// Stats are cumulative guard counters.
type Stats struct {
	Approved  int64 `json:"approved"`
	Throttled int64 `json:"throttled"`
}

// Guard rate-limits order flow and keeps the audit trail.
type Guard struct {
	algoID  string
	limiter *rate.Limiter
	logger  *slog.Logger

	mu    sync.Mutex
	audit []AuditEntry
	stats Stats
	now   func() time.Time
}

// NewGuard creates a guard from config, applying defaults for zero
// values.
func NewGuard(cfg config.ComplianceConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}

	ops := cfg.OrdersPerSecond
	if ops <= 0 {
		ops = defaultOrdersPerSecond
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	algoID := cfg.AlgoID
	if algoID == "" {
		algoID = "UNREGISTERED"
	}

	return &Guard{
		algoID:  algoID,
		limiter: rate.NewLimiter(rate.Limit(ops), burst),
		logger:  logger,
		now:     time.Now,
	}
}

// AlgoID returns the identifier stamped on audited order flow.
func (g *Guard) AlgoID() string { return g.algoID }

// Approve admits one order through the throttle. Implements the
// strategy manager's gate signature.
func (g *Guard) Approve(symbol string, side model.Side, qty int64, price float64) error {
	allowed := g.limiter.Allow()

	entry := AuditEntry{
		At:       g.now(),
		AlgoID:   g.algoID,
		Symbol:   symbol,
		Side:     side.String(),
		Quantity: qty,
		Price:    price,
		Decision: "approved",
	}
	if !allowed {
		entry.Decision = "throttled"
	}

	g.mu.Lock()
	g.audit = append(g.audit, entry)
	if len(g.audit) > auditCapacity {
		g.audit = g.audit[len(g.audit)-auditCapacity:]
	}
	if allowed {
		g.stats.Approved++
	} else {
		g.stats.Throttled++
	}
	g.mu.Unlock()

	if !allowed {
		g.logger.Warn("order throttled", "symbol", symbol, "side", side.String())
		return ErrThrottled
	}
	return nil
}

// Audit returns up to limit most recent entries, newest last. limit <= 0
// returns everything retained.
func (g *Guard) Audit(limit int) []AuditEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	entries := g.audit
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]AuditEntry(nil), entries...)
}

// Stats returns cumulative counters.
func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}
