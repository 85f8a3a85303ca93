package risk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/arjunkv/paperdesk/internal/calendar"
)

// Market-wide circuit breaker decline levels (index vs previous close).
const (
	MWCBLevel1 = 0.10
	MWCBLevel2 = 0.15
	MWCBLevel3 = 0.20
)

// Stock price bands. A band of 0 means no limit (F&O eligible).
const (
	BandDefault = 0.10
)

// MWCBStatus is the market-wide halt state.
type MWCBStatus string

const (
	MWCBNormal MWCBStatus = "NORMAL"
	MWCBHalted MWCBStatus = "HALTED"
)

// CircuitEvent describes a breaker trip for logging and the API.
type CircuitEvent struct {
	Status      string    `json:"status"` // "UPPER_CIRCUIT", "LOWER_CIRCUIT", "HALTED"
	Symbol      string    `json:"symbol,omitempty"`
	Index       string    `json:"index,omitempty"`
	Level       string    `json:"level,omitempty"` // "LEVEL_1".."LEVEL_3" for MWCB
	ChangePct   float64   `json:"change_pct"`
	LimitPrice  float64   `json:"limit_price,omitempty"`
	HaltMinutes int       `json:"halt_minutes,omitempty"` // -1 = closed for the day
	At          time.Time `json:"at"`
}

// Breakers tracks market-wide and stock-specific circuit limits and gates
// order execution while anything is halted.
type Breakers struct {
	cal    *calendar.Calendar
	logger *slog.Logger

	mu         sync.RWMutex
	mwcbStatus MWCBStatus
	mwcbLevel  string
	mwcbAt     time.Time
	halted     map[string]struct{}
	bands      map[string]float64 // Symbol → band fraction; 0 = no limit
	history    []CircuitEvent
}

// NewBreakers creates a breaker tracker.
func NewBreakers(cal *calendar.Calendar, logger *slog.Logger) *Breakers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Breakers{
		cal:        cal,
		logger:     logger,
		mwcbStatus: MWCBNormal,
		halted:     make(map[string]struct{}),
		bands:      make(map[string]float64),
	}
}

// SetBand sets the price band for a symbol. Zero means no limit.
func (b *Breakers) SetBand(symbol string, band float64) {
	b.mu.Lock()
	b.bands[symbol] = band
	b.mu.Unlock()
}

// SetBands bulk-loads price bands (from daily exchange data).
func (b *Breakers) SetBands(bands map[string]float64) {
	b.mu.Lock()
	for sym, band := range bands {
		b.bands[sym] = band
	}
	b.mu.Unlock()
}

// CheckIndex evaluates a market-wide circuit breaker from an index level.
// Returns a non-nil event when a halt is triggered.
func (b *Breakers) CheckIndex(index string, level, previousClose float64) *CircuitEvent {
	if previousClose <= 0 {
		return nil
	}

	decline := (previousClose - level) / previousClose

	var name string
	switch {
	case decline >= MWCBLevel3:
		name = "LEVEL_3"
	case decline >= MWCBLevel2:
		name = "LEVEL_2"
	case decline >= MWCBLevel1:
		name = "LEVEL_1"
	default:
		b.mu.Lock()
		if b.mwcbStatus != MWCBNormal {
			b.mwcbStatus = MWCBNormal
			b.mwcbLevel = ""
			b.logger.Info("market-wide circuit breaker restored to normal")
		}
		b.mu.Unlock()
		return nil
	}

	now := b.cal.Now()
	ev := &CircuitEvent{
		Status:      string(MWCBHalted),
		Index:       index,
		Level:       name,
		ChangePct:   -decline * 100,
		HaltMinutes: haltDuration(name, now),
		At:          now,
	}

	b.mu.Lock()
	b.mwcbStatus = MWCBHalted
	b.mwcbLevel = name
	b.mwcbAt = now
	b.history = append(b.history, *ev)
	b.mu.Unlock()

	b.logger.Error("market-wide circuit breaker triggered",
		"level", name,
		"index", index,
		"decline_pct", decline*100,
		"halt_minutes", ev.HaltMinutes,
	)
	return ev
}

// haltDuration returns the SEBI halt duration in minutes for a MWCB level at
// the given time of day. -1 means the market closes for the day.
func haltDuration(level string, now time.Time) int {
	if level == "LEVEL_3" {
		return -1
	}

	m := now.In(calendar.IST).Hour()*60 + now.In(calendar.IST).Minute()
	before1pm := m < 13*60
	before230pm := m < 14*60+30

	switch level {
	case "LEVEL_1":
		switch {
		case before1pm:
			return 45
		case before230pm:
			return 15
		default:
			return 0
		}
	case "LEVEL_2":
		switch {
		case before1pm:
			return 105
		case before230pm:
			return 45
		default:
			return -1
		}
	}
	return 0
}

// CheckStock evaluates a stock's price against its band. Returns a non-nil
// event on an upper or lower circuit. Recovery inside the band clears the
// halt.
func (b *Breakers) CheckStock(symbol string, price, previousClose float64) *CircuitEvent {
	if previousClose <= 0 {
		return nil
	}

	b.mu.RLock()
	band, ok := b.bands[symbol]
	b.mu.RUnlock()
	if !ok {
		band = BandDefault
	}
	if band == 0 {
		return nil // F&O eligible, no band
	}

	change := (price - previousClose) / previousClose

	var status string
	var limitPrice float64
	switch {
	case change >= band:
		status = "UPPER_CIRCUIT"
		limitPrice = previousClose * (1 + band)
	case change <= -band:
		status = "LOWER_CIRCUIT"
		limitPrice = previousClose * (1 - band)
	default:
		b.mu.Lock()
		delete(b.halted, symbol)
		b.mu.Unlock()
		return nil
	}

	ev := &CircuitEvent{
		Status:     status,
		Symbol:     symbol,
		ChangePct:  change * 100,
		LimitPrice: limitPrice,
		At:         b.cal.Now(),
	}

	b.mu.Lock()
	b.halted[symbol] = struct{}{}
	b.history = append(b.history, *ev)
	b.mu.Unlock()

	b.logger.Warn("stock circuit limit hit",
		"symbol", symbol,
		"status", status,
		"change_pct", change*100,
	)
	return ev
}

// Allowed reports whether execution is permitted for a symbol.
func (b *Breakers) Allowed(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.mwcbStatus != MWCBNormal {
		return false
	}
	_, halted := b.halted[symbol]
	return !halted
}

// Status summarizes breaker state for the API.
type Status struct {
	MWCBStatus   MWCBStatus     `json:"mwcb_status"`
	MWCBLevel    string         `json:"mwcb_level,omitempty"`
	HaltedStocks []string       `json:"halted_stocks"`
	Recent       []CircuitEvent `json:"recent"`
}

// Status returns a snapshot of breaker state.
func (b *Breakers) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	halted := make([]string, 0, len(b.halted))
	for sym := range b.halted {
		halted = append(halted, sym)
	}

	recent := b.history
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}

	return Status{
		MWCBStatus:   b.mwcbStatus,
		MWCBLevel:    b.mwcbLevel,
		HaltedStocks: halted,
		Recent:       append([]CircuitEvent(nil), recent...),
	}
}
