package calendar

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ChangeBufferSize is the capacity of the transition and square-off channels.
const ChangeBufferSize = 16

// Transition is a session phase change.
type Transition struct {
	From Session
	To   Session
	At   time.Time
}

// Monitor watches the session clock and emits transitions plus a one-shot
// daily MIS square-off trigger.
type Monitor struct {
	cal    *Calendar
	logger *slog.Logger

	interval time.Duration

	transitions chan Transition
	squareOff   chan time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	current   Session
	triggered bool // Square-off fired for the current trading day
}

// NewMonitor creates a session monitor polling every interval.
func NewMonitor(cal *Calendar, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		cal:         cal,
		logger:      logger,
		interval:    interval,
		transitions: make(chan Transition, ChangeBufferSize),
		squareOff:   make(chan time.Time, 1),
	}
}

// Transitions returns the channel of session changes.
func (m *Monitor) Transitions() <-chan Transition {
	return m.transitions
}

// SquareOff returns the channel that fires once per day at the MIS cutoff.
func (m *Monitor) SquareOff() <-chan time.Time {
	return m.squareOff
}

// Current returns the last observed session.
func (m *Monitor) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Start begins the monitor loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.mu.Lock()
	m.current = m.cal.CurrentSession()
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()

	m.logger.Info("session monitor started",
		"session", m.Current(),
		"interval", m.interval,
	)
	return nil
}

// Stop gracefully shuts down the monitor.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("session monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

// poll is a single observation of the session clock.
func (m *Monitor) poll() {
	now := m.cal.Now()
	next := m.cal.SessionAt(now)

	m.mu.Lock()
	prev := m.current
	if next != prev {
		m.current = next
		// New trading day re-arms the square-off trigger.
		if next == SessionPreOpen {
			m.triggered = false
		}
	}
	fireSquareOff := !m.triggered && m.cal.ShouldSquareOff(now)
	if fireSquareOff {
		m.triggered = true
	}
	m.mu.Unlock()

	if next != prev {
		m.logger.Info("session change", "from", prev, "to", next)
		select {
		case m.transitions <- Transition{From: prev, To: next, At: now}:
		default:
			m.logger.Warn("transition channel full, dropping", "to", next)
		}
	}

	if fireSquareOff {
		m.logger.Warn("MIS auto square-off triggered", "at", now)
		select {
		case m.squareOff <- now:
		default:
		}
	}
}
