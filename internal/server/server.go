// Package server is the HTTP query boundary: JSON endpoints for risk
// queries, feature writes, weight publishing, and the map-facing exports.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/riskmap/internal/monitoring"
	"github.com/sells-group/riskmap/internal/risk"
	"github.com/sells-group/riskmap/internal/store"
)

// Server wires the engine and persistence behind the HTTP API.
type Server struct {
	engine        *risk.Engine
	store         store.Store
	metrics       *monitoring.Metrics
	gatherer      prometheus.Gatherer
	origins       []string
	defaultRadius float64
	logger        *zap.Logger
}

// Option configures the server.
type Option func(*Server)

// WithAllowedOrigins overrides the default wildcard CORS origin list.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithDefaultRadius overrides the radius applied when a risk-zones query
// omits one.
func WithDefaultRadius(miles float64) Option {
	return func(s *Server) {
		if miles > 0 {
			s.defaultRadius = miles
		}
	}
}

// New assembles the HTTP boundary. gatherer feeds /metrics; pass
// prometheus.DefaultGatherer in production.
func New(engine *risk.Engine, st store.Store, m *monitoring.Metrics, gatherer prometheus.Gatherer, opts ...Option) *Server {
	s := &Server{
		engine:        engine,
		store:         st,
		metrics:       m,
		gatherer:      gatherer,
		origins:       []string{"*"},
		defaultRadius: defaultRadiusMiles,
		logger:        zap.L().Named("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with CORS, request logging, and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/risk-zones", s.handleRiskZones)
		r.Get("/risk-at-point", s.handleRiskAtPoint)
		r.Get("/risk-factors/{cellID}", s.handleRiskFactors)
		r.Post("/features/{cellID}", s.handleWriteFeatures)
		r.Post("/weights", s.handlePublishWeights)
		r.Get("/grid.geojson", s.handleGridGeoJSON)
		r.Get("/police-stations", s.handleStations)
	})
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

// requestLogger logs one line per request with status and latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
