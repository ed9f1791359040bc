// api-service is the HTTP API server for submitting and observing training tasks.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trainhub/internal/api"
	"trainhub/internal/config"
	"trainhub/internal/health"
	"trainhub/internal/observability"
	"trainhub/internal/queue"
	"trainhub/internal/store/sqlite"
	"trainhub/internal/task"
	"trainhub/internal/watch"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg := config.LoadServiceConfig()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Open the task store
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Task store opened", "path", cfg.DBPath)

	// Connect to the job queue
	redisClient := queue.NewClient(cfg.RedisAddr)
	defer redisClient.Close()
	trainingQueue := queue.New(redisClient)
	slog.Info("Job queue configured", "addr", cfg.RedisAddr)

	// Create health checker
	healthChecker := health.NewChecker(map[string]health.ReadinessChecker{
		"store": store,
		"queue": trainingQueue,
	})

	// Create task service and progress hub
	taskService := task.NewService(store, trainingQueue, metrics)
	hub := watch.NewHub(store, watch.NewRegistry(), cfg.PollInterval, metrics)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		TaskService:   taskService,
		Hub:           hub,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        cfg.APIKey,
	})

	if cfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections outlive any request deadline
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", cfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if cfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", cfg.ShutdownDrainWait)
		time.Sleep(cfg.ShutdownDrainWait)
	}

	// Phase 2: Stop the progress hub so pollers release their subscribers
	// before the server tears down the WebSocket connections.
	slog.Info("Stopping progress hub")
	hubCtx, hubCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer hubCancel()
	if err := hub.Close(hubCtx); err != nil {
		slog.Warn("Progress hub shutdown error", "error", err)
	}

	// Phase 3: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Queued work continues in the worker process; it coordinates through
	// the store and the queue, not through this service.
	slog.Info("Shutdown complete")
	return nil
}
