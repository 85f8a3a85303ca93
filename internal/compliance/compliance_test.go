package compliance

import (
	"errors"
	"testing"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/model"
)

func TestApproveWithinRate(t *testing.T) {
	g := NewGuard(config.ComplianceConfig{
		OrdersPerSecond: 100, Burst: 10, AlgoID: "ALGO-123",
	}, nil)

	if err := g.Approve("SBIN-EQ", model.SideBuy, 10, 800); err != nil {
		t.Fatal(err)
	}

	audit := g.Audit(0)
	if len(audit) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit))
	}
	e := audit[0]
	if e.AlgoID != "ALGO-123" || e.Symbol != "SBIN-EQ" || e.Side != "BUY" || e.Decision != "approved" {
		t.Errorf("entry = %+v", e)
	}
	if st := g.Stats(); st.Approved != 1 || st.Throttled != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestThrottleAfterBurst(t *testing.T) {
	// 1/s refill with burst 2: the third immediate order must fail.
	g := NewGuard(config.ComplianceConfig{OrdersPerSecond: 1, Burst: 2}, nil)

	if err := g.Approve("SBIN-EQ", model.SideBuy, 10, 800); err != nil {
		t.Fatal(err)
	}
	if err := g.Approve("SBIN-EQ", model.SideBuy, 10, 800); err != nil {
		t.Fatal(err)
	}
	if err := g.Approve("SBIN-EQ", model.SideBuy, 10, 800); !errors.Is(err, ErrThrottled) {
		t.Fatalf("err = %v, want ErrThrottled", err)
	}

	if st := g.Stats(); st.Approved != 2 || st.Throttled != 1 {
		t.Errorf("stats = %+v", st)
	}

	audit := g.Audit(0)
	if len(audit) != 3 || audit[2].Decision != "throttled" {
		t.Errorf("audit = %+v", audit)
	}
}

func TestDefaults(t *testing.T) {
	g := NewGuard(config.ComplianceConfig{}, nil)
	if g.AlgoID() != "UNREGISTERED" {
		t.Errorf("algo id = %q", g.AlgoID())
	}
	// Default burst of 10 admits ten immediate orders.
	for i := 0; i < 10; i++ {
		if err := g.Approve("SBIN-EQ", model.SideBuy, 1, 800); err != nil {
			t.Fatalf("order %d: %v", i, err)
		}
	}
}

func TestAuditLimit(t *testing.T) {
	g := NewGuard(config.ComplianceConfig{OrdersPerSecond: 10000, Burst: 10000}, nil)
	for i := 0; i < 5; i++ {
		g.Approve("SBIN-EQ", model.SideBuy, 1, 800)
	}

	if got := g.Audit(2); len(got) != 2 {
		t.Errorf("Audit(2) = %d entries", len(got))
	}
	if got := g.Audit(0); len(got) != 5 {
		t.Errorf("Audit(0) = %d entries", len(got))
	}
}
