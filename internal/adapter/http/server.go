// Package http serves health, metrics, and the published aurora field.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/aurora-field/internal/domain"
	"github.com/couchcryptid/aurora-field/internal/observability"
	"github.com/couchcryptid/aurora-field/internal/render"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// FieldService is the read and budget side of the recompute scheduler.
type FieldService interface {
	Latest() *domain.DownsampledField
	Subscribe() (<-chan *domain.DownsampledField, func())
	Budget() int
	UpdateBudget(targetCount int) bool
}

// Option configures a Server.
type Option func(*Server)

// WithRenderCacheSize sets how many encoded PNGs are kept.
func WithRenderCacheSize(n int) Option {
	return func(s *Server) { s.cache = newRenderCache(n) }
}

// WithBasemap draws land polygons under rendered fields.
func WithBasemap(b *render.Basemap) Option {
	return func(s *Server) { s.basemap = b }
}

// Server exposes health, readiness, metrics, and field endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *observability.Metrics
	fields     FieldService
	cache      *renderCache
	basemap    *render.Basemap
	upgrader   websocket.Upgrader

	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer creates an HTTP server with the health, metrics, and /api routes.
func NewServer(addr string, ready ReadinessChecker, fields FieldService, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger:  logger,
		metrics: metrics,
		fields:  fields,
		cache:   newRenderCache(64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
		closing: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/field", s.handleField)
	mux.HandleFunc("GET /api/field/{hemisphere}", s.handleHemisphere)
	mux.HandleFunc("GET /api/field/{hemisphere}/geojson", s.handleGeoJSON)
	mux.HandleFunc("GET /api/field/{hemisphere}/render.png", s.handleRender)
	mux.HandleFunc("GET /api/legend", s.handleLegend)
	mux.HandleFunc("GET /api/budget", s.handleGetBudget)
	mux.HandleFunc("PUT /api/budget", s.handlePutBudget)
	mux.HandleFunc("GET /api/stream", s.handleStream)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown closes stream connections and gracefully drains the rest within
// the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
