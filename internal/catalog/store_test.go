package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/arjunkv/paperdesk/internal/calendar"
	"github.com/arjunkv/paperdesk/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleBars(n int) []model.Bar {
	start := time.Date(2025, 7, 15, 9, 15, 0, 0, calendar.IST)
	bars := make([]model.Bar, n)
	for i := range bars {
		price := 800 + float64(i)
		bars[i] = model.Bar{
			Symbol:    "SBIN-EQ",
			Interval:  time.Minute,
			Start:     start.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price + 2,
			Low:       price - 1,
			Close:     price + 1,
			Volume:    int64(100 * (i + 1)),
			TickCount: int64(i + 1),
		}
	}
	return bars
}

func TestSaveAndLoadBars(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveBars(ctx, sampleBars(5)); err != nil {
		t.Fatal(err)
	}

	from := time.Date(2025, 7, 15, 0, 0, 0, 0, calendar.IST)
	got, err := s.LoadBars(ctx, "SBIN-EQ", time.Minute, from, from.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("loaded %d bars, want 5", len(got))
	}
	if got[0].Open != 800 || got[0].Close != 801 || got[0].Volume != 100 {
		t.Errorf("first bar = %+v", got[0])
	}

	// Window filtering.
	mid := from.Add(9*time.Hour + 17*time.Minute)
	got, err = s.LoadBars(ctx, "SBIN-EQ", time.Minute, mid, from.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("windowed load = %d bars, want 3", len(got))
	}
}

func TestSaveBarsUpsert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	bars := sampleBars(1)
	if err := s.SaveBars(ctx, bars); err != nil {
		t.Fatal(err)
	}

	bars[0].Close = 999
	if err := s.SaveBars(ctx, bars); err != nil {
		t.Fatal(err)
	}

	from := time.Date(2025, 7, 15, 0, 0, 0, 0, calendar.IST)
	got, err := s.LoadBars(ctx, "SBIN-EQ", time.Minute, from, from.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Close != 999 {
		t.Errorf("after upsert got %+v", got)
	}
}

func TestListCoverage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveBars(ctx, sampleBars(10)); err != nil {
		t.Fatal(err)
	}

	cov, err := s.ListCoverage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cov) != 1 {
		t.Fatalf("coverage rows = %d, want 1", len(cov))
	}
	if cov[0].Symbol != "SBIN-EQ" || cov[0].Bars != 10 || cov[0].Interval != "1m0s" {
		t.Errorf("coverage = %+v", cov[0])
	}
	if !cov[0].Last.After(cov[0].First) {
		t.Errorf("Last %v not after First %v", cov[0].Last, cov[0].First)
	}
}

func TestValidateBars(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	bad := sampleBars(1)
	bad[0].High = bad[0].Low - 1 // inverted range
	if err := s.SaveBars(ctx, bad); err != nil {
		t.Fatal(err)
	}

	problems, err := s.ValidateBars(ctx, "SBIN-EQ", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) == 0 {
		t.Error("expected validation problems for inverted range")
	}
}

func TestValidateBarsIntervalAlignment(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// An hourly bar opening at 09:00 IST is aligned from IST midnight
	// even though 09:00 IST is 03:30 UTC, which a UTC-epoch modulus
	// would reject.
	start := time.Date(2025, 7, 15, 9, 0, 0, 0, calendar.IST)
	aligned := model.Bar{
		Symbol: "SBIN-EQ", Interval: time.Hour, Start: start,
		Open: 800, High: 802, Low: 799, Close: 801, Volume: 100,
	}
	if err := s.SaveBars(ctx, []model.Bar{aligned}); err != nil {
		t.Fatal(err)
	}

	problems, err := s.ValidateBars(ctx, "SBIN-EQ", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 0 {
		t.Errorf("aligned hourly bar flagged: %v", problems)
	}

	misaligned := aligned
	misaligned.Start = start.Add(10 * time.Minute)
	if err := s.SaveBars(ctx, []model.Bar{misaligned}); err != nil {
		t.Fatal(err)
	}

	problems, err = s.ValidateBars(ctx, "SBIN-EQ", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 1 {
		t.Errorf("problems = %v, want one alignment defect", problems)
	}
}

func TestInstrumentRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	instruments := []model.Instrument{
		{Token: "3045", Symbol: "SBIN-EQ", Name: "STATE BANK OF INDIA", Exchange: model.ExchangeNSE, LotSize: 1, TickSize: 0.05},
		{Token: "53001", Symbol: "NIFTY29MAY25FUT", Name: "NIFTY", Exchange: model.ExchangeNFO, LotSize: 75, TickSize: 0.05,
			InstType: "FUTIDX", Expiry: time.Date(2025, 5, 29, 0, 0, 0, 0, time.UTC)},
	}
	if err := s.SaveInstruments(ctx, instruments); err != nil {
		t.Fatal(err)
	}

	if n, err := s.InstrumentCount(ctx); err != nil || n != 2 {
		t.Fatalf("count = (%d, %v), want 2", n, err)
	}

	in, err := s.InstrumentBySymbol(ctx, "NSE", "SBIN-EQ")
	if err != nil {
		t.Fatal(err)
	}
	if in.Token != "3045" || in.IsDerivative() {
		t.Errorf("resolved %+v", in)
	}

	in, err = s.InstrumentByToken(ctx, "53001")
	if err != nil {
		t.Fatal(err)
	}
	if in.Symbol != "NIFTY29MAY25FUT" || !in.IsDerivative() || in.LotSize != 75 {
		t.Errorf("resolved %+v", in)
	}
	if in.Expiry.IsZero() {
		t.Error("expiry should survive the round trip")
	}

	if _, err := s.InstrumentByToken(ctx, "nope"); err == nil {
		t.Error("expected not-found error")
	}

	results, err := s.SearchInstruments(ctx, "NIFTY", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("search results = %d, want 1", len(results))
	}
}

func TestSaveInstrumentsReplaces(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := []model.Instrument{{Token: "1", Symbol: "A-EQ", Name: "A", Exchange: model.ExchangeNSE, LotSize: 1}}
	second := []model.Instrument{{Token: "2", Symbol: "B-EQ", Name: "B", Exchange: model.ExchangeNSE, LotSize: 1}}

	if err := s.SaveInstruments(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveInstruments(ctx, second); err != nil {
		t.Fatal(err)
	}

	if _, err := s.InstrumentByToken(ctx, "1"); err == nil {
		t.Error("old master should be gone")
	}
	if _, err := s.InstrumentByToken(ctx, "2"); err != nil {
		t.Errorf("new master missing: %v", err)
	}
}
