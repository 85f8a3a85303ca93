package model

import (
	"encoding/json"
	"testing"
)

func TestSideRoundTrip(t *testing.T) {
	tests := []struct {
		side Side
		want string
	}{
		{SideBuy, `"BUY"`},
		{SideSell, `"SELL"`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.side)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.side, err)
		}
		if string(data) != tt.want {
			t.Errorf("Marshal(%v) = %s, want %s", tt.side, data, tt.want)
		}

		var got Side
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got != tt.side {
			t.Errorf("round trip %v → %v", tt.side, got)
		}
	}
}

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell {
		t.Error("BUY opposite should be SELL")
	}
	if SideSell.Opposite() != SideBuy {
		t.Error("SELL opposite should be BUY")
	}
}

func TestParseSideInvalid(t *testing.T) {
	if _, err := ParseSide("SHORT"); err == nil {
		t.Error("expected error for invalid side")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusOpen, false},
		{StatusTriggerPending, false},
		{StatusComplete, true},
		{StatusCancelled, true},
		{StatusRejected, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%v.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestProductTypeParse(t *testing.T) {
	for _, p := range []ProductType{ProductIntraday, ProductDelivery, ProductCarryForward} {
		got, err := ParseProductType(p.String())
		if err != nil {
			t.Fatalf("parse %v: %v", p, err)
		}
		if got != p {
			t.Errorf("parse(%v.String()) = %v", p, got)
		}
	}
}

func TestExchangeValid(t *testing.T) {
	if !ExchangeNSE.Valid() {
		t.Error("NSE should be valid")
	}
	if Exchange("NYSE").Valid() {
		t.Error("NYSE should not be valid")
	}
}

func TestPositionUnrealizedPnL(t *testing.T) {
	long := Position{Symbol: "SBIN-EQ", Side: PositionLong, Quantity: 10, AvgPrice: 600}
	if got := long.UnrealizedPnL(615); got != 150 {
		t.Errorf("long pnl = %v, want 150", got)
	}

	short := Position{Symbol: "SBIN-EQ", Side: PositionShort, Quantity: 10, AvgPrice: 600}
	if got := short.UnrealizedPnL(615); got != -150 {
		t.Errorf("short pnl = %v, want -150", got)
	}
}

func TestBarEnd(t *testing.T) {
	b := Bar{Interval: 300000000000} // 5m in ns
	if b.End().Sub(b.Start) != b.Interval {
		t.Error("End should be Start + Interval")
	}
}
