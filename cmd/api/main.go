package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/kalos-marketplace/cmd/mainconfig"
	"github.com/wolfman30/kalos-marketplace/internal/api/router"
	"github.com/wolfman30/kalos-marketplace/internal/app/bootstrap"
	appconfig "github.com/wolfman30/kalos-marketplace/internal/config"
	"github.com/wolfman30/kalos-marketplace/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/kalos-marketplace/internal/http/middleware"
	reaperworker "github.com/wolfman30/kalos-marketplace/internal/worker/reaper"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

func main() {
	// .env is optional outside local development.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting kalos-marketplace API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_store", cfg.UseMemoryStore,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var awsCfg *aws.Config
	if !cfg.UseMemoryStore || cfg.MediaBucket != "" {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		awsCfg = &loaded
	}

	metricsHandler, registry := setupMetrics()

	rt, err := bootstrap.BuildRuntime(ctx, cfg, awsCfg, registry, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer func() { _ = rt.Close() }()

	if cfg.ReaperEnabled {
		reaper := reaperworker.NewReaper(rt.Engine, logger.Component("reaper")).WithInterval(cfg.ReaperInterval)
		go reaper.Run(ctx)
	}

	// Setup router
	r := router.New(routerConfig(cfg, rt, metricsHandler, logger))

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics returns the /metrics handler and the registry the domain
// collectors register against.
func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

func routerConfig(cfg *appconfig.Config, rt *bootstrap.Runtime, metricsHandler http.Handler, logger *logging.Logger) *router.Config {
	healthChecks := map[string]router.HealthCheck{}
	if rt.Redis != nil {
		healthChecks["redis"] = func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() }
	}
	cors := httpmiddleware.CORSPolicy{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedHeaders: cfg.CORSAllowedHeaders,
		MaxAge:         cfg.CORSMaxAge,
	}
	return &router.Config{
		Logger:              logger,
		AvailabilityHandler: handlers.NewAvailabilityHandler(rt.Manager, rt.Query, rt.Engine, logger),
		BookingsHandler:     handlers.NewBookingsHandler(rt.Bookings, logger),
		AdminHandler:        handlers.NewAdminHandler(rt.Manager, rt.Engine, rt.Media, logger),
		AuthSecret:          cfg.AdminJWTSecret,
		MetricsHandler:      metricsHandler,
		CORS:                cors,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
		HealthChecks:        healthChecks,
	}
}
