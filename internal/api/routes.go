package api

import (
	"net/http"

	"trainhub/internal/health"
	"trainhub/internal/observability"
	"trainhub/internal/task"
	"trainhub/internal/watch"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	TaskService   *task.Service
	Hub           *watch.Hub
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.TaskService, cfg.Hub, cfg.Metrics, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Live progress channel - no auth (browser WebSocket clients cannot
	// set Authorization headers)
	mux.HandleFunc("GET /ws/training/{taskId}", handler.WatchTask)

	// Training task endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/training", authMiddleware(http.HandlerFunc(handler.CreateTask)))
	mux.Handle("GET /v1/training", authMiddleware(http.HandlerFunc(handler.ListTasks)))
	mux.Handle("GET /v1/training/stats", authMiddleware(http.HandlerFunc(handler.GetStats)))
	mux.Handle("GET /v1/training/connections/{taskId}", authMiddleware(http.HandlerFunc(handler.GetConnections)))
	mux.Handle("GET /v1/training/{taskId}", authMiddleware(http.HandlerFunc(handler.GetTask)))
	mux.Handle("DELETE /v1/training/{taskId}", authMiddleware(http.HandlerFunc(handler.StopTask)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
