package calendar

import (
	"time"
)

// IST is the exchange timezone. NSE publishes no sub-zone variations, so a
// fixed offset is safe even where tzdata is unavailable.
var IST = time.FixedZone("IST", 5*3600+1800)

// Session identifies a market session phase.
type Session string

const (
	SessionPreOpen    Session = "PRE_OPEN"    // 09:00 - 09:15
	SessionRegular    Session = "REGULAR"     // 09:15 - 15:30
	SessionPostMarket Session = "POST_MARKET" // 15:30 - 16:00
	SessionClosed     Session = "CLOSED"
)

// Intraday boundaries, minutes since midnight IST.
const (
	preOpenStartMin  = 9 * 60
	marketOpenMin    = 9*60 + 15
	squareOffMin     = 15*60 + 15 // MIS square-off cutoff
	marketCloseMin   = 15*60 + 30
	postMarketEndMin = 16 * 60
)

// defaultHolidays is the built-in NSE holiday fallback. Extra holidays come
// from session config.
var defaultHolidays = map[string]struct{}{
	"2025-01-26": {}, "2025-02-26": {}, "2025-03-14": {}, "2025-03-31": {},
	"2025-04-10": {}, "2025-04-14": {}, "2025-04-18": {}, "2025-05-01": {},
	"2025-08-15": {}, "2025-08-27": {}, "2025-10-02": {}, "2025-10-21": {},
	"2025-10-22": {}, "2025-11-05": {}, "2025-12-25": {},
	"2026-01-26": {},
}

// Calendar answers trading-day and session questions for the NSE.
type Calendar struct {
	holidays map[string]struct{}
	now      func() time.Time
}

// New builds a calendar. extraHolidays are "YYYY-MM-DD" strings merged with
// the built-in set.
func New(extraHolidays []string) *Calendar {
	h := make(map[string]struct{}, len(defaultHolidays)+len(extraHolidays))
	for d := range defaultHolidays {
		h[d] = struct{}{}
	}
	for _, d := range extraHolidays {
		h[d] = struct{}{}
	}
	return &Calendar{holidays: h, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	c.now = now
	return c
}

// Now returns the current time in IST.
func (c *Calendar) Now() time.Time {
	return c.now().In(IST)
}

// IsTradingDay reports whether t falls on a trading day (not a weekend or
// exchange holiday).
func (c *Calendar) IsTradingDay(t time.Time) bool {
	t = t.In(IST)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.holidays[t.Format("2006-01-02")]
	return !holiday
}

// SessionAt resolves the session phase for t.
func (c *Calendar) SessionAt(t time.Time) Session {
	t = t.In(IST)
	if !c.IsTradingDay(t) {
		return SessionClosed
	}

	m := t.Hour()*60 + t.Minute()
	switch {
	case m >= preOpenStartMin && m < marketOpenMin:
		return SessionPreOpen
	case m >= marketOpenMin && m < marketCloseMin:
		return SessionRegular
	case m >= marketCloseMin && m < postMarketEndMin:
		return SessionPostMarket
	default:
		return SessionClosed
	}
}

// CurrentSession resolves the session phase for the current time.
func (c *Calendar) CurrentSession() Session {
	return c.SessionAt(c.Now())
}

// IsMarketOpen reports whether the regular session is in progress.
func (c *Calendar) IsMarketOpen() bool {
	return c.CurrentSession() == SessionRegular
}

// ShouldSquareOff reports whether the MIS square-off cutoff (15:15 IST) has
// passed inside the regular session.
func (c *Calendar) ShouldSquareOff(t time.Time) bool {
	t = t.In(IST)
	if c.SessionAt(t) != SessionRegular {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	return m >= squareOffMin
}

// TimeToOpen returns the duration until the next regular session opens, or 0
// if the market is open now.
func (c *Calendar) TimeToOpen() time.Duration {
	now := c.Now()
	if c.SessionAt(now) == SessionRegular {
		return 0
	}

	day := now
	for i := 0; i < 14; i++ { // Bounded scan past long holiday runs
		open := time.Date(day.Year(), day.Month(), day.Day(), 9, 15, 0, 0, IST)
		if c.IsTradingDay(day) && open.After(now) {
			return open.Sub(now)
		}
		day = day.AddDate(0, 0, 1)
	}
	return 0
}

// TimeToClose returns the duration until the regular session closes, or 0 if
// the market is not open.
func (c *Calendar) TimeToClose() time.Duration {
	now := c.Now()
	if c.SessionAt(now) != SessionRegular {
		return 0
	}
	closeAt := time.Date(now.Year(), now.Month(), now.Day(), 15, 30, 0, 0, IST)
	return closeAt.Sub(now)
}
