// Package main provides the entry point for the config server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bhdrerdem/config-server/internal/apperr"
	"github.com/bhdrerdem/config-server/internal/config"
	"github.com/bhdrerdem/config-server/internal/handler"
	"github.com/bhdrerdem/config-server/internal/health"
	"github.com/bhdrerdem/config-server/internal/metrics"
	"github.com/bhdrerdem/config-server/internal/server"
	"github.com/bhdrerdem/config-server/internal/service"
	"github.com/bhdrerdem/config-server/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging.Level)
	defer logger.Sync()

	logger.Info("starting config server",
		zap.Int("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.String("redis_host", cfg.Redis.Host),
	)

	// Initialize metrics
	m := metrics.NewMetrics()
	m.SetReadiness(true)

	// Initialize durable store (PostgreSQL)
	documents, err := store.NewPostgresDocumentStore(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		logger,
	)
	if err != nil {
		logger.Fatal("failed to initialize durable store", zap.Error(err))
	}
	defer documents.Close()

	// Initialize cache (Redis)
	cache, err := store.NewRedisCache(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		logger,
	)
	if err != nil {
		logger.Fatal("failed to initialize cache", zap.Error(err))
	}
	defer cache.Close()

	// Process-wide readiness, degraded only by the supervisors.
	readiness := health.NewReadiness()
	onDegrade := func() { m.SetReadiness(false) }

	supervisorCtx, stopSupervisors := context.WithCancel(context.Background())
	defer stopSupervisors()

	g, supervisorCtx := errgroup.WithContext(supervisorCtx)
	g.Go(func() error {
		return health.NewSupervisor("durable-store", documents, readiness, cfg.Health.ProbeInterval, logger, onDegrade).Run(supervisorCtx)
	})
	g.Go(func() error {
		return health.NewSupervisor("cache", cache, readiness, cfg.Health.ProbeInterval, logger, onDegrade).Run(supervisorCtx)
	})
	logger.Info("health supervisors started", zap.Duration("interval", cfg.Health.ProbeInterval))

	// Initialize service and handlers
	svc := service.NewConfigurationService(documents, cache, m, logger)
	errorHandler := apperr.NewHandler(logger)
	handlers := handler.NewHandlers(svc, readiness, errorHandler, logger, cfg.Server.RequestTimeout)

	// Metrics server
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	// HTTP server
	httpServer := server.NewServer(cfg, handlers, errorHandler, m, logger)
	httpServer.SetupRoutes()

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("server error", zap.Error(err))
	}

	logger.Info("initiating graceful shutdown")
	m.SetReadiness(false)
	stopSupervisors()
	g.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}

	logger.Info("config server shutdown complete")
}

// initLogger initializes the zap logger with the configured level.
func initLogger(logLevel string) *zap.Logger {
	var level zapcore.Level
	switch logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	return logger
}
