// Package main is the entry point for the realtime gateway. It serves the
// websocket session layer and the HTTP operational surface, and drains open
// connections before exiting on SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/portfoliokit/realtime-gateway/internal/auth"
	"github.com/portfoliokit/realtime-gateway/internal/config"
	"github.com/portfoliokit/realtime-gateway/internal/database"
	"github.com/portfoliokit/realtime-gateway/internal/httpserver"
	"github.com/portfoliokit/realtime-gateway/internal/metrics"
	"github.com/portfoliokit/realtime-gateway/internal/ratelimit"
	"github.com/portfoliokit/realtime-gateway/internal/ws"
	"github.com/portfoliokit/realtime-gateway/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		// Sync errors on stdout/stderr are expected and can be safely ignored
		// for non-syncable file descriptors (pipes, terminals, etc.)
		_ = log.Sync()
	}()

	log.Info("starting realtime gateway",
		zap.String("environment", cfg.Server.Env),
		zap.String("http_port", cfg.Server.HTTPPort),
		zap.String("base_path", cfg.Server.BasePath),
		zap.Bool("auth_required", cfg.Auth.Required),
	)

	// The database is optional: it backs the readiness probe, not the
	// websocket path. When configured it must be reachable at startup.
	var db *database.DB
	if cfg.HasDatabase() {
		db, err = database.NewDB(&cfg.Database, log)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("failed to close database connection", zap.Error(err))
			}
		}()
	} else {
		log.Info("no database configured, readiness will report degraded")
	}

	// Initialize token verification
	var verifier ws.TokenVerifier
	if cfg.Auth.JWKSURL != "" {
		verifier = auth.NewVerifier(&cfg.Auth, log)
	} else {
		log.Warn("no JWKS URL configured, all connections will be anonymous")
	}

	// Initialize the websocket stack
	promReg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promReg)
	limiter := ratelimit.NewLimiter(cfg.RateLimit.RequestsPerMinute, log)
	registry := ws.NewRegistry()
	dispatcher := ws.NewDispatcher(registry, recorder, limiter, cfg.Server.APIBaseURL)
	wsServer := ws.NewServer(dispatcher, registry, recorder, verifier, cfg.Auth.Required, log)

	// Initialize HTTP server
	httpServer := httpserver.NewServer(cfg, wsServer, registry, recorder, promReg, db, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Serve(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		// Blocks until a signal arrives or the listener fails
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Drain websocket connections first so clients get a reconnect hint,
		// then stop the listener once no frames are in flight.
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to drain websocket connections", zap.Error(err))
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server shut down successfully")
}
