// training-worker consumes queued training jobs and executes them,
// publishing progress through the shared task store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trainhub/internal/config"
	"trainhub/internal/observability"
	"trainhub/internal/queue"
	"trainhub/internal/store/sqlite"
	"trainhub/internal/trainer"
	"trainhub/internal/worker"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadWorkerConfig()

	workerName := fmt.Sprintf("training-worker-%d", os.Getpid())
	slog.Info("Starting worker", "name", workerName, "outputDir", cfg.OutputDir)

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Connect to the queue backend
	redisClient := queue.NewClient(cfg.RedisAddr)
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	slog.Info("Connected to Redis", "addr", cfg.RedisAddr)

	// Open the shared task store
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Task store opened", "path", cfg.DBPath)

	// Assemble the execution harness
	engine := &trainer.Simulated{OutputDir: cfg.OutputDir}
	harness := worker.NewHarness(store, engine, worker.WeightsExporter{}, metrics)

	consumer := queue.NewConsumer(redisClient, harness.Execute, queue.ConsumerOptions{
		MaxRunTime: cfg.JobTimeout,
	})

	// Expose worker metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	slog.Info("Worker ready, consuming queue")
	if err := consumer.Run(ctx); err != nil {
		return err
	}

	slog.Info("Received shutdown signal, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}
