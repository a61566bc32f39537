// Package main provides the API server entry point for the position dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/position-dashboard/internal/api"
	"github.com/position-dashboard/internal/circuitbreaker"
	"github.com/position-dashboard/internal/config"
	"github.com/position-dashboard/internal/logging"
	"github.com/position-dashboard/internal/metrics"
	"github.com/position-dashboard/internal/publish"
	"github.com/position-dashboard/internal/service"
	"github.com/position-dashboard/internal/state"
	"github.com/position-dashboard/internal/storage"
	"github.com/position-dashboard/internal/worker"
)

func main() {
	fmt.Println("Position Dashboard API Server")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":           cfg.Logging.Level,
		"format":          cfg.Logging.Format,
		"refreshInterval": cfg.Refresh.Interval.String(),
	}).Info("Structured logging initialized")

	m := metrics.New("dashboard")

	backends, err := service.OpenBackends(cfg, m)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize backends")
	}
	defer backends.Close()

	dashboard := backends.DashboardService(cfg, m)

	// Commit sinks: websocket hub always, Redis and NATS when configured
	hub := api.NewStreamHub()
	sinks := []state.Sink{hub}
	checks := []api.HealthCheck{{Name: "solana", Check: backends.SolanaHealth}}

	if cfg.Redis.Enabled() {
		connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		redis, err := storage.NewRedisCache(connectCtx, &cfg.Redis)
		cancel()
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redis.Close()

		sinks = append(sinks, storage.NewStateMirror(redis, cfg.Redis.StateTTL))
		checks = append(checks, api.HealthCheck{Name: "redis", Check: redis.Ping})
		logger.WithField("ttl", cfg.Redis.StateTTL.String()).Info("Redis state mirror enabled")
	}

	if cfg.NATS.URL != "" {
		publisher, err := publish.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to NATS")
		}
		defer publisher.Close()

		sinks = append(sinks, publisher)
		logger.WithField("prefix", cfg.NATS.SubjectPrefix).Info("NATS state publisher enabled")
	}

	store := state.NewStore(m, sinks...)
	defer store.Close()

	sessions := worker.NewSessionManager(&worker.SessionManagerConfig{
		Store:        store,
		Fetcher:      dashboard,
		PollInterval: cfg.Refresh.Interval,
		FetchTimeout: cfg.Refresh.FetchTimeout,
		IdleTimeout:  cfg.Refresh.IdleTimeout,
		Metrics:      m,
	})
	sessions.Start()

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		ClientRPS:       cfg.Server.ClientRPS,
		ClientBurst:     cfg.Server.ClientBurst,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	}

	server := api.NewServer(serverConfig, api.ServerDeps{
		Sessions: sessions,
		Hub:      hub,
		Checks:   checks,
		Breakers: []*circuitbreaker.CircuitBreaker{backends.Prices.Breaker()},
		Metrics:  m,
	})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := sessions.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Session manager did not stop cleanly")
	}

	logger.Info("Server exited")
}
