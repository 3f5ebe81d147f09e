package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/portfoliokit/realtime-gateway/internal/config"
	"github.com/portfoliokit/realtime-gateway/internal/database"
	"github.com/portfoliokit/realtime-gateway/internal/metrics"
	"github.com/portfoliokit/realtime-gateway/internal/ws"
)

// Server is the HTTP front of the gateway: the websocket upgrade endpoint plus
// the operational surface (probes, stats, Prometheus metrics).
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the router and binds it to the configured port. db may be
// nil when no database is configured; readiness then reports degraded instead
// of gating on connectivity.
func NewServer(cfg *config.Config, wsServer *ws.Server, registry *ws.Registry, recorder *metrics.Recorder, promReg *prometheus.Registry, db *database.DB, logger *zap.Logger) *Server {
	s := &Server{logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	routes := func(r chi.Router) {
		r.Get("/healthz", s.handleHealthz)
		r.Get("/readyz", s.handleReadyz(db))
		r.Get("/stats", s.handleStats(recorder, registry))
		r.Get("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}).ServeHTTP)
		r.Get("/ws", wsServer.HandleWS)
	}

	if cfg.Server.BasePath == "/" || cfg.Server.BasePath == "" {
		routes(r)
	} else {
		r.Route(cfg.Server.BasePath, routes)
	}

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Serve blocks until the listener stops. http.ErrServerClosed is returned
// unchanged so callers can tell a clean shutdown from a bind failure.
func (s *Server) Serve() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleHealthz reports process liveness only.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz gates readiness on database connectivity when a database is
// configured. Without one the gateway still serves websocket traffic, so it
// reports ready with a degraded marker rather than failing the probe.
func (s *Server) handleReadyz(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("degraded"))
			return
		}

		if err := db.Health(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

// handleStats serves the same snapshot the stats:get websocket event returns.
func (s *Server) handleStats(recorder *metrics.Recorder, registry *ws.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(recorder.Snapshot(registry.Count())); err != nil {
			s.logger.Warn("failed to encode stats", zap.Error(err))
		}
	}
}

// requestLogger logs one line per request with the fields the rest of the
// service logs with.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
