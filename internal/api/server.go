package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arjunkv/paperdesk/internal/calendar"
	"github.com/arjunkv/paperdesk/internal/catalog"
	"github.com/arjunkv/paperdesk/internal/compliance"
	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/dispatch"
	"github.com/arjunkv/paperdesk/internal/paper"
	"github.com/arjunkv/paperdesk/internal/risk"
	"github.com/arjunkv/paperdesk/internal/strategy"
	"github.com/arjunkv/paperdesk/internal/version"
)

// Deps are the service components the API exposes. Catalog, breakers,
// sizer, guard and hub may be nil; their routes then return 503.
type Deps struct {
	Portfolio  *paper.Portfolio
	GTTs       *paper.GTTBook
	Brackets   *paper.BracketBook
	Strategies *strategy.Manager
	Dispatcher *dispatch.Dispatcher
	Catalog    *catalog.Store
	Sizer      *risk.Sizer
	Breakers   *risk.Breakers
	Calendar   *calendar.Calendar
	Guard      *compliance.Guard
	Hub        *Hub
}

// Server is the HTTP control plane.
type Server struct {
	cfg    config.APIConfig
	deps   Deps
	logger *slog.Logger

	httpServer *http.Server
	startedAt  time.Time
}

// NewServer creates the API server and builds its routes.
func NewServer(cfg config.APIConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	// Unauthenticated probes.
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/portfolio", s.handlePortfolio)
		r.Post("/portfolio/reset", s.handlePortfolioReset)
		r.Post("/portfolio/square-off", s.handleSquareOff)
		r.Get("/positions", s.handlePositions)
		r.Get("/fills", s.handleFills)

		r.Get("/orders", s.handleListOrders)
		r.Post("/orders", s.handlePlaceOrder)
		r.Get("/orders/{id}", s.handleGetOrder)
		r.Delete("/orders/{id}", s.handleCancelOrder)

		r.Get("/gtt", s.handleListGTT)
		r.Post("/gtt", s.handlePlaceGTT)
		r.Post("/gtt/oco", s.handlePlaceOCO)
		r.Delete("/gtt/{id}", s.handleCancelGTT)

		r.Get("/brackets", s.handleListBrackets)
		r.Post("/brackets", s.handlePlaceBracket)
		r.Patch("/brackets/{id}", s.handleModifyBracket)
		r.Delete("/brackets/{id}", s.handleCancelBracket)

		r.Get("/strategies", s.handleListStrategies)
		r.Get("/strategies/{name}", s.handleGetStrategy)
		r.Get("/strategies/{name}/signals", s.handleStrategySignals)
		r.Post("/strategies/{name}/start", s.strategyAction("start"))
		r.Post("/strategies/{name}/pause", s.strategyAction("pause"))
		r.Post("/strategies/{name}/resume", s.strategyAction("resume"))
		r.Post("/strategies/{name}/stop", s.strategyAction("stop"))

		r.Get("/market/ltp", s.handleLTP)
		r.Get("/market/bars", s.handleBars)
		r.Get("/market/coverage", s.handleCoverage)
		r.Get("/market/instruments", s.handleInstrumentSearch)

		r.Get("/risk", s.handleRiskStatus)
		r.Get("/session", s.handleSession)
		r.Get("/compliance/audit", s.handleAudit)

		if s.deps.Hub != nil {
			r.Get("/ws/stream", s.deps.Hub.handleWS)
		}
	})
	return r
}

// Start begins serving. Returns once the listener goroutine is running.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	go func() {
		s.logger.Info("api server listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping api server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("api server stopped")
	return nil
}

// Handler exposes the route tree. For tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":  "ok",
		"version": version.String(),
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.deps.Calendar != nil {
		health["session"] = string(s.deps.Calendar.CurrentSession())
	}
	if s.deps.Dispatcher != nil {
		st := s.deps.Dispatcher.Stats()
		health["ticks_received"] = st.Received
	}
	writeJSON(w, http.StatusOK, health)
}
