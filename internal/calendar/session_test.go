package calendar

import (
	"testing"
	"time"
)

// istTime builds an IST timestamp on a known trading Tuesday (2025-07-15).
func istTime(t *testing.T, hour, min int) time.Time {
	t.Helper()
	return time.Date(2025, 7, 15, hour, min, 0, 0, IST)
}

func TestSessionAt(t *testing.T) {
	cal := New(nil)

	tests := []struct {
		hour, min int
		want      Session
	}{
		{8, 59, SessionClosed},
		{9, 0, SessionPreOpen},
		{9, 14, SessionPreOpen},
		{9, 15, SessionRegular},
		{12, 30, SessionRegular},
		{15, 29, SessionRegular},
		{15, 30, SessionPostMarket},
		{15, 59, SessionPostMarket},
		{16, 0, SessionClosed},
		{22, 0, SessionClosed},
	}

	for _, tt := range tests {
		got := cal.SessionAt(istTime(t, tt.hour, tt.min))
		if got != tt.want {
			t.Errorf("SessionAt(%02d:%02d) = %v, want %v", tt.hour, tt.min, got, tt.want)
		}
	}
}

func TestSessionOnWeekend(t *testing.T) {
	cal := New(nil)
	saturday := time.Date(2025, 7, 19, 11, 0, 0, 0, IST)
	if got := cal.SessionAt(saturday); got != SessionClosed {
		t.Errorf("SessionAt(saturday) = %v, want CLOSED", got)
	}
}

func TestIsTradingDay(t *testing.T) {
	cal := New([]string{"2025-07-16"})

	tests := []struct {
		date string
		want bool
	}{
		{"2025-07-15", true},  // Tuesday
		{"2025-07-16", false}, // Configured holiday
		{"2025-07-19", false}, // Saturday
		{"2025-07-20", false}, // Sunday
		{"2025-08-15", false}, // Built-in holiday (Independence Day)
	}

	for _, tt := range tests {
		d, err := time.ParseInLocation("2006-01-02", tt.date, IST)
		if err != nil {
			t.Fatalf("parse %s: %v", tt.date, err)
		}
		if got := cal.IsTradingDay(d); got != tt.want {
			t.Errorf("IsTradingDay(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
}

func TestShouldSquareOff(t *testing.T) {
	cal := New(nil)

	if cal.ShouldSquareOff(istTime(t, 15, 14)) {
		t.Error("should not square off before 15:15")
	}
	if !cal.ShouldSquareOff(istTime(t, 15, 15)) {
		t.Error("should square off at 15:15")
	}
	if !cal.ShouldSquareOff(istTime(t, 15, 29)) {
		t.Error("should square off at 15:29")
	}
	// Post-market is past the regular session; square-off window is over.
	if cal.ShouldSquareOff(istTime(t, 15, 45)) {
		t.Error("should not square off after close")
	}
}

func TestTimeToClose(t *testing.T) {
	cal := New(nil).WithClock(func() time.Time {
		return istTime(t, 15, 0)
	})

	if got := cal.TimeToClose(); got != 30*time.Minute {
		t.Errorf("TimeToClose = %v, want 30m", got)
	}
}

func TestTimeToOpenSkipsWeekend(t *testing.T) {
	// Friday 16:30 → next open is Monday 09:15.
	friday := time.Date(2025, 7, 18, 16, 30, 0, 0, IST)
	cal := New(nil).WithClock(func() time.Time { return friday })

	want := time.Date(2025, 7, 21, 9, 15, 0, 0, IST).Sub(friday)
	if got := cal.TimeToOpen(); got != want {
		t.Errorf("TimeToOpen = %v, want %v", got, want)
	}
}
