package calendar

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock is a mutable time source shared with the calendar under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

func TestMonitorEmitsTransition(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 7, 15, 9, 10, 0, 0, IST)}
	cal := New(nil).WithClock(clock.now)

	m := NewMonitor(cal, 5*time.Millisecond, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopMonitor(t, m)

	if got := m.Current(); got != SessionPreOpen {
		t.Fatalf("initial session = %v, want PRE_OPEN", got)
	}

	clock.set(time.Date(2025, 7, 15, 9, 20, 0, 0, IST))

	select {
	case tr := <-m.Transitions():
		if tr.From != SessionPreOpen || tr.To != SessionRegular {
			t.Errorf("transition = %v → %v, want PRE_OPEN → REGULAR", tr.From, tr.To)
		}
	case <-time.After(time.Second):
		t.Fatal("no transition observed")
	}
}

func TestMonitorSquareOffFiresOnce(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 7, 15, 15, 10, 0, 0, IST)}
	cal := New(nil).WithClock(clock.now)

	m := NewMonitor(cal, 5*time.Millisecond, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopMonitor(t, m)

	clock.set(time.Date(2025, 7, 15, 15, 16, 0, 0, IST))

	select {
	case <-m.SquareOff():
	case <-time.After(time.Second):
		t.Fatal("square-off did not fire")
	}

	// Advancing further inside the window must not fire again.
	clock.set(time.Date(2025, 7, 15, 15, 20, 0, 0, IST))
	select {
	case <-m.SquareOff():
		t.Error("square-off fired twice in one day")
	case <-time.After(50 * time.Millisecond):
	}
}

func stopMonitor(t *testing.T, m *Monitor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
