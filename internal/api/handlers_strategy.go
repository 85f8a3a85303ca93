package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arjunkv/paperdesk/internal/strategy"
)

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Strategies.List())
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Strategies.Status(chi.URLParam(r, "name"))
	if err != nil {
		notFound(w, "strategy not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStrategySignals(w http.ResponseWriter, r *http.Request) {
	signals, err := s.deps.Strategies.Signals(chi.URLParam(r, "name"))
	if err != nil {
		notFound(w, "strategy not found")
		return
	}
	writeJSON(w, http.StatusOK, signals)
}

// strategyAction builds a handler for one lifecycle transition.
func (s *Server) strategyAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var err error
		switch action {
		case "start":
			err = s.deps.Strategies.StartInstance(name)
		case "pause":
			err = s.deps.Strategies.PauseInstance(name)
		case "resume":
			err = s.deps.Strategies.ResumeInstance(name)
		case "stop":
			err = s.deps.Strategies.StopInstance(name)
		}

		if errors.Is(err, strategy.ErrUnknownStrategy) {
			notFound(w, "strategy not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		status, _ := s.deps.Strategies.Status(name)
		writeJSON(w, http.StatusOK, status)
	}
}
