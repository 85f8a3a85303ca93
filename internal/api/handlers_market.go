package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arjunkv/paperdesk/internal/calendar"
)

func (s *Server) handleLTP(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "market data unavailable")
		return
	}

	prices := s.deps.Dispatcher.LastPrices()
	if param := r.URL.Query().Get("symbols"); param != "" {
		filtered := make(map[string]float64)
		for _, sym := range strings.Split(param, ",") {
			if price, ok := prices[sym]; ok {
				filtered[sym] = price
			}
		}
		prices = filtered
	}
	writeJSON(w, http.StatusOK, prices)
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}

	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	interval, err := time.ParseDuration(q.Get("interval"))
	if err != nil || interval <= 0 {
		writeError(w, http.StatusBadRequest, "interval must be a positive duration, e.g. 1m")
		return
	}

	from, err := parseTimeParam(q.Get("from"), time.Time{})
	if err != nil {
		badRequest(w, err)
		return
	}
	to, err := parseTimeParam(q.Get("to"), time.Now())
	if err != nil {
		badRequest(w, err)
		return
	}

	bars, err := s.deps.Catalog.LoadBars(r.Context(), symbol, interval, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bars)
}

// parseTimeParam accepts RFC 3339 timestamps or unix seconds.
func parseTimeParam(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}
	coverage, err := s.deps.Catalog.ListCoverage(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, coverage)
}

func (s *Server) handleInstrumentSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	instruments, err := s.deps.Catalog.SearchInstruments(r.Context(), query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, instruments)
}

func (s *Server) handleRiskStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{}
	if s.deps.Sizer != nil {
		status["daily_pnl"] = s.deps.Sizer.DailyPnL()
		status["daily_loss_exceeded"] = s.deps.Sizer.DailyLossExceeded()
	}
	if s.deps.Breakers != nil {
		status["circuits"] = s.deps.Breakers.Status()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	cal := s.deps.Calendar
	if cal == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar unavailable")
		return
	}

	now := cal.Now()
	resp := map[string]any{
		"now":         now.In(calendar.IST).Format(time.RFC3339),
		"session":     string(cal.CurrentSession()),
		"trading_day": cal.IsTradingDay(now),
		"market_open": cal.IsMarketOpen(),
	}
	if d := cal.TimeToOpen(); d > 0 {
		resp["time_to_open"] = d.Round(time.Second).String()
	}
	if d := cal.TimeToClose(); d > 0 {
		resp["time_to_close"] = d.Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Guard == nil {
		writeError(w, http.StatusServiceUnavailable, "compliance guard unavailable")
		return
	}

	limit := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"algo_id": s.deps.Guard.AlgoID(),
		"stats":   s.deps.Guard.Stats(),
		"entries": s.deps.Guard.Audit(limit),
	})
}
