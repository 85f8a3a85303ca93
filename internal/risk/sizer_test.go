package risk

import (
	"testing"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/model"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		RiskPerTrade:    0.01,
		MaxOrderValue:   500_000,
		MaxPositionPct:  0.10,
		MaxDailyLossPct: 0.03,
		MaxLotsPerOrder: 36,
		LotSizes:        map[string]int64{"NIFTY": 75},
		Margins: map[string]float64{
			"INTRADAY":     0.2,
			"DELIVERY":     1.0,
			"CARRYFORWARD": 0.5,
		},
	}
}

func TestQuantityRiskModel(t *testing.T) {
	s := NewSizer(1_000_000, testRiskConfig(), nil)

	// Risk amount = 10,000. Stop distance = 10 → 1000 shares, but
	// position cap = 100,000/500 = 200 shares.
	if got := s.Quantity(500, 490, 1); got != 200 {
		t.Errorf("Quantity = %d, want 200 (position pct cap)", got)
	}

	// Wide stop: risk 10,000 / 100 = 100 shares, under every cap.
	if got := s.Quantity(500, 400, 1); got != 100 {
		t.Errorf("Quantity = %d, want 100", got)
	}
}

func TestQuantityLotRounding(t *testing.T) {
	s := NewSizer(10_000_000, testRiskConfig(), nil)

	// Risk amount = 100,000, stop distance = 80 → 1250 raw, lot 75 → 1200.
	// Order value cap: 500,000 / 250 = 2000. Position cap: 1,000,000/250 = 4000.
	got := s.Quantity(250, 170, 75)
	if got != 1200 {
		t.Errorf("Quantity = %d, want 1200", got)
	}
	if got%75 != 0 {
		t.Errorf("Quantity %d is not a lot multiple", got)
	}
}

func TestQuantityBadInputs(t *testing.T) {
	s := NewSizer(1_000_000, testRiskConfig(), nil)

	if got := s.Quantity(0, 100, 1); got != 0 {
		t.Errorf("Quantity with zero entry = %d, want 0", got)
	}
	if got := s.Quantity(100, 100, 1); got != 0 {
		t.Errorf("Quantity with zero stop distance = %d, want 0", got)
	}
}

func TestQuantityForAllocation(t *testing.T) {
	s := NewSizer(1_000_000, testRiskConfig(), nil)

	if got := s.QuantityForAllocation(500, 50_000, 1); got != 100 {
		t.Errorf("QuantityForAllocation = %d, want 100", got)
	}
	if got := s.QuantityForAllocation(500, 50_000, 75); got != 75 {
		t.Errorf("QuantityForAllocation with lots = %d, want 75", got)
	}
}

func TestCheckFreezeLimit(t *testing.T) {
	s := NewSizer(1_000_000, testRiskConfig(), nil)

	// NIFTY lot 75, max 36 lots → 2700.
	if err := s.CheckFreezeLimit("NIFTY", 2700); err != nil {
		t.Errorf("2700 within freeze limit, got error: %v", err)
	}
	if err := s.CheckFreezeLimit("NIFTY", 2775); err == nil {
		t.Error("2775 should exceed freeze limit")
	}
}

func TestMarginAndAffordability(t *testing.T) {
	s := NewSizer(100_000, testRiskConfig(), nil)

	// Intraday margin 20%: 1000 * 400 * 0.2 = 80,000, affordable.
	ok, required := s.CanAfford(1000, 400, model.ProductIntraday)
	if !ok || required != 80_000 {
		t.Errorf("CanAfford intraday = (%v, %v), want (true, 80000)", ok, required)
	}

	// Delivery needs full value 400,000, not affordable.
	if ok, _ := s.CanAfford(1000, 400, model.ProductDelivery); ok {
		t.Error("delivery position should not be affordable")
	}
}

func TestDailyLossHalt(t *testing.T) {
	s := NewSizer(100_000, testRiskConfig(), nil)

	s.RecordPnL(-2000)
	if s.DailyLossExceeded() {
		t.Error("loss of 2% should not trip a 3% limit")
	}

	s.RecordPnL(-1500)
	if !s.DailyLossExceeded() {
		t.Error("loss of 3.5% should trip the limit")
	}

	if err := s.ValidateOrder("SBIN-EQ", 10, 100, model.ProductIntraday); err != ErrDailyLossExceeded {
		t.Errorf("ValidateOrder error = %v, want ErrDailyLossExceeded", err)
	}

	s.ResetDaily(0)
	if s.DailyLossExceeded() {
		t.Error("reset should clear the halt")
	}
}

func TestValidateOrder(t *testing.T) {
	s := NewSizer(1_000_000, testRiskConfig(), nil)

	if err := s.ValidateOrder("SBIN-EQ", 100, 500, model.ProductIntraday); err != nil {
		t.Errorf("valid order rejected: %v", err)
	}

	// Order value 600,000 > 500,000 cap.
	if err := s.ValidateOrder("SBIN-EQ", 1200, 500, model.ProductIntraday); err == nil {
		t.Error("expected order value cap rejection")
	}
}

func TestRoundToLot(t *testing.T) {
	tests := []struct {
		qty, lot, want int64
	}{
		{100, 1, 100},
		{100, 75, 75},
		{74, 75, 0},
		{150, 75, 150},
	}
	for _, tt := range tests {
		if got := RoundToLot(tt.qty, tt.lot); got != tt.want {
			t.Errorf("RoundToLot(%d, %d) = %d, want %d", tt.qty, tt.lot, got, tt.want)
		}
	}
}
