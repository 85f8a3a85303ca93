package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const scripJSON = `[
	{"token":"3045","symbol":"SBIN-EQ","name":"STATE BANK OF INDIA","expiry":"","strike":"-1.000000","lotsize":"1","instrumenttype":"","exch_seg":"NSE","tick_size":"5.000000"},
	{"token":"53001","symbol":"NIFTY29MAY25FUT","name":"NIFTY","expiry":"29MAY2025","strike":"-1.000000","lotsize":"75","instrumenttype":"FUTIDX","exch_seg":"NFO","tick_size":"5.000000"},
	{"token":"99999","symbol":"GOLD-FUT","name":"GOLD","expiry":"05JUN2025","strike":"-1.000000","lotsize":"100","instrumenttype":"FUTCOM","exch_seg":"MCX","tick_size":"100.000000"}
]`

func TestScripFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(scripJSON))
	}))
	defer server.Close()

	client := NewScripClient(server.URL)
	instruments, err := client.Fetch(context.Background(), "NSE", "NFO")
	if err != nil {
		t.Fatal(err)
	}

	// MCX row filtered out.
	if len(instruments) != 2 {
		t.Fatalf("got %d instruments, want 2", len(instruments))
	}

	eq := instruments[0]
	if eq.Symbol != "SBIN-EQ" || eq.LotSize != 1 || eq.TickSize != 0.05 {
		t.Errorf("equity = %+v", eq)
	}
	if !eq.Expiry.IsZero() || eq.IsDerivative() {
		t.Error("equity row should have no expiry or instrument type")
	}

	fut := instruments[1]
	if fut.LotSize != 75 || !fut.IsDerivative() {
		t.Errorf("future = %+v", fut)
	}
	if fut.Expiry.Year() != 2025 || fut.Expiry.Month() != time.May || fut.Expiry.Day() != 29 {
		t.Errorf("expiry = %v, want 2025-05-29", fut.Expiry)
	}
}

func TestScripFetchRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewScripClient(server.URL, WithRetries(3, time.Millisecond))
	if _, err := client.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch after retries failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestScripFetchNonRetryable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewScripClient(server.URL, WithRetries(3, time.Millisecond))
	if _, err := client.Fetch(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (404 is not retryable)", calls.Load())
	}
}

func TestParseExpiry(t *testing.T) {
	if got := parseExpiry(""); !got.IsZero() {
		t.Errorf("empty expiry = %v, want zero", got)
	}
	if got := parseExpiry("garbage!!"); !got.IsZero() {
		t.Errorf("bad expiry = %v, want zero", got)
	}
	got := parseExpiry("05JUN2025")
	if got.Day() != 5 || got.Month() != time.June || got.Year() != 2025 {
		t.Errorf("parseExpiry = %v", got)
	}
}

func TestRefresherLoadsOnStart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(scripJSON))
	}))
	defer server.Close()

	store := testStore(t)
	client := NewScripClient(server.URL)
	ref := NewRefresher(time.Hour, []string{"NSE"}, client, store, nil)

	if err := ref.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if last, err := ref.LastRefresh(); err == nil && !last.IsZero() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("refresher never completed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ref.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	n, err := store.InstrumentCount(context.Background())
	if err != nil || n != 1 {
		t.Errorf("instruments = (%d, %v), want 1 NSE row", n, err)
	}
}
