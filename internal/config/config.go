// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the API service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	DBPath            string
	RedisAddr         string
	PollInterval      time.Duration // watch poll cadence against the task store
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
}

// LoadServiceConfig loads API service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		DBPath:            GetEnv("DB_PATH", "./trainhub.db"),
		RedisAddr:         GetEnv("REDIS_ADDR", "localhost:6379"),
		PollInterval:      GetDurationEnv("WATCH_POLL_INTERVAL", 500*time.Millisecond),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
	}
}

// WorkerConfig holds configuration for the training worker.
type WorkerConfig struct {
	DBPath      string
	RedisAddr   string
	MetricsPort string
	JobTimeout  time.Duration // wall-clock ceiling per training run
	OutputDir   string        // root directory for training results
}

// LoadWorkerConfig loads worker configuration from environment variables.
func LoadWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		DBPath:      GetEnv("DB_PATH", "./trainhub.db"),
		RedisAddr:   GetEnv("REDIS_ADDR", "localhost:6379"),
		MetricsPort: GetEnv("METRICS_PORT", "9091"),
		JobTimeout:  GetDurationEnv("JOB_TIMEOUT", 24*time.Hour),
		OutputDir:   GetEnv("OUTPUT_DIR", "./runs"),
	}
}
