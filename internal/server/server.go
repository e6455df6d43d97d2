package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"lendrisk/internal/emode"
	"lendrisk/internal/observability"
	"lendrisk/internal/persistence"
	"lendrisk/internal/risk"
	"lendrisk/internal/store"
)

// Server is the JSON/HTTP API over the risk engine. Computation endpoints
// are stateless (positions arrive in the request body); account endpoints
// read the snapshots the ingestion pipeline maintains.
type Server struct {
	store           *store.Store
	history         *persistence.HistoryWriter
	thresholds      risk.Thresholds
	defaultTargetHF float64
	categories      []emode.Category
	health          *observability.HealthChecker
	metrics         *observability.Metrics
	log             zerolog.Logger

	httpServer *http.Server
}

// Deps carries everything the server needs; nil history disables the
// history endpoint with a 503 rather than a panic.
type Deps struct {
	Store           *store.Store
	History         *persistence.HistoryWriter
	Thresholds      risk.Thresholds
	DefaultTargetHF float64
	Categories      []emode.Category
	Health          *observability.HealthChecker
	Metrics         *observability.Metrics
	Log             zerolog.Logger
}

func New(addr string, deps *Deps) *Server {
	s := &Server{
		store:           deps.Store,
		history:         deps.History,
		thresholds:      deps.Thresholds,
		defaultTargetHF: deps.DefaultTargetHF,
		categories:      deps.Categories,
		health:          deps.Health,
		metrics:         deps.Metrics,
		log:             deps.Log,
	}
	if len(s.categories) == 0 {
		s.categories = emode.DefaultCategories
	}
	if s.defaultTargetHF <= 0 {
		s.defaultTargetHF = 1.2
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/risk", s.handleRisk)
		r.Post("/simulate", s.handleSimulate)
		r.Post("/max-safe", s.handleMaxSafe)
		r.Post("/apr", s.handleNetAPR)
		r.Post("/rates", s.handleRates)

		r.Post("/emode/check", s.handleEModeCheck)
		r.Post("/emode/benefit", s.handleEModeBenefit)
		r.Get("/emode/categories", s.handleEModeCategories)

		r.Get("/accounts/{accountID}/risk", s.handleAccountRisk)
		r.Get("/accounts/{accountID}/history", s.handleAccountHistory)

		r.Get("/reserves", s.handleReserves)
		r.Get("/reserves/{coinType}/rates", s.handleReserveRates)
	})

	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http api listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// instrument records per-route request counts and latency. The route pattern
// is resolved after the handler runs so path params don't explode label
// cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if s.metrics == nil {
			return
		}
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(pattern, strconv.Itoa(ww.Status())).Inc()
		s.metrics.HTTPDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

// --- response helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
