// Package api provides the read-side HTTP API for the monitoring daemon.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/api/handlers"
	"github.com/mountwarden/mountwarden/internal/api/middleware"
	"github.com/mountwarden/mountwarden/internal/health"
	"github.com/mountwarden/mountwarden/internal/maintenance"
	"github.com/mountwarden/mountwarden/internal/store"
)

// Config holds configuration for the API router.
type Config struct {
	// RateLimitPerMinute is the number of requests allowed per client IP
	// per minute.
	RateLimitPerMinute int
	// MetricsEnabled exposes the Prometheus registry at /metrics.
	MetricsEnabled bool
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RateLimitPerMinute: 120,
		MetricsEnabled:     true,
		Version:            "dev",
		Commit:             "unknown",
		BuildDate:          "unknown",
	}
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(
	cfg Config,
	st *store.Store,
	sweeper *maintenance.Sweeper,
	gatherer prometheus.Gatherer,
	system handlers.SystemCollector,
	checker *health.Checker,
	cycles handlers.CycleSource,
	logger zerolog.Logger,
) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))

	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	// Health and version endpoints on the engine root
	healthHandler := handlers.NewHealthHandler(st, system, checker, cycles, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	versionHandler := handlers.NewVersionHandler(cfg.Version, cfg.Commit, cfg.BuildDate, logger)
	versionHandler.RegisterPublicRoutes(r.Engine)

	// Prometheus metrics endpoint
	if cfg.MetricsEnabled && gatherer != nil {
		metricsHandler := handlers.NewMetricsHandler(gatherer)
		metricsHandler.RegisterPublicRoutes(r.Engine)
	}

	// API v1 routes
	apiV1 := r.Engine.Group("/api/v1")

	statusHandler := handlers.NewStatusHandler(st, logger)
	statusHandler.RegisterRoutes(apiV1)

	failuresHandler := handlers.NewFailuresHandler(st, logger)
	failuresHandler.RegisterRoutes(apiV1)

	statsHandler := handlers.NewStatsHandler(st, logger)
	statsHandler.RegisterRoutes(apiV1)

	retentionHandler := handlers.NewRetentionHandler(sweeper, logger)
	retentionHandler.RegisterRoutes(apiV1)

	r.logger.Info().Msg("API router initialized")
	return r, nil
}
