package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/training runs take
// - Traffic: Request/task throughput
// - Errors: Rate of failures
// - Saturation: Resource utilization (active runs, watchers, pollers)
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Task metrics (Traffic, Errors)
	TasksTotal      metric.Int64Counter
	TaskErrorsTotal metric.Int64Counter
	TasksStopped    metric.Int64Counter

	// Training metrics (Latency, Saturation)
	TrainingDuration metric.Float64Histogram
	TrainingActive   metric.Int64UpDownCounter

	// Watch metrics (Traffic, Saturation)
	WatchSubscribers   metric.Int64UpDownCounter
	WatchMessagesTotal metric.Int64Counter
	WatchPollersActive metric.Int64UpDownCounter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("trainhub")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Task metrics
	m.TasksTotal, err = meter.Int64Counter(
		"training_tasks_total",
		metric.WithDescription("Total number of training tasks submitted"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TaskErrorsTotal, err = meter.Int64Counter(
		"training_task_errors_total",
		metric.WithDescription("Total number of training tasks that ended in failure"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TasksStopped, err = meter.Int64Counter(
		"training_tasks_stopped_total",
		metric.WithDescription("Total number of training tasks stopped by request"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Training metrics
	m.TrainingDuration, err = meter.Float64Histogram(
		"training_run_duration_seconds",
		metric.WithDescription("Training run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 300, 900, 1800, 3600, 7200, 14400, 28800),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TrainingActive, err = meter.Int64UpDownCounter(
		"training_runs_active",
		metric.WithDescription("Number of currently executing training runs (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Watch metrics
	m.WatchSubscribers, err = meter.Int64UpDownCounter(
		"watch_subscribers",
		metric.WithDescription("Number of currently attached progress subscribers (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WatchMessagesTotal, err = meter.Int64Counter(
		"watch_messages_total",
		metric.WithDescription("Total progress messages broadcast to subscribers"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WatchPollersActive, err = meter.Int64UpDownCounter(
		"watch_pollers_active",
		metric.WithDescription("Number of running per-task state pollers (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordTaskCreated records a new training task being accepted.
func (m *Metrics) RecordTaskCreated(ctx context.Context) {
	m.TasksTotal.Add(ctx, 1)
}

// RecordTaskFailed records a training task ending in failure.
func (m *Metrics) RecordTaskFailed(ctx context.Context) {
	m.TaskErrorsTotal.Add(ctx, 1)
}

// RecordTaskStopped records a training task stopped by request.
func (m *Metrics) RecordTaskStopped(ctx context.Context) {
	m.TasksStopped.Add(ctx, 1)
}

// RecordTrainingStarted records a training run beginning execution.
func (m *Metrics) RecordTrainingStarted(ctx context.Context) {
	m.TrainingActive.Add(ctx, 1)
}

// RecordTrainingFinished records a training run leaving execution,
// regardless of outcome.
func (m *Metrics) RecordTrainingFinished(ctx context.Context) {
	m.TrainingActive.Add(ctx, -1)
}

// RecordTrainingCompleted records the duration of a successful training run.
func (m *Metrics) RecordTrainingCompleted(ctx context.Context, durationSeconds float64) {
	m.TrainingDuration.Record(ctx, durationSeconds)
}

// RecordWatchSubscribed records a progress subscriber attaching.
func (m *Metrics) RecordWatchSubscribed(ctx context.Context) {
	m.WatchSubscribers.Add(ctx, 1)
}

// RecordWatchUnsubscribed records a progress subscriber detaching.
func (m *Metrics) RecordWatchUnsubscribed(ctx context.Context) {
	m.WatchSubscribers.Add(ctx, -1)
}

// RecordWatchMessage records a message broadcast to subscribers.
func (m *Metrics) RecordWatchMessage(ctx context.Context, msgType string) {
	m.WatchMessagesTotal.Add(ctx, 1, metric.WithAttributes(messageTypeAttr(msgType)))
}

// RecordWatchPollerCount adjusts the active poller gauge.
func (m *Metrics) RecordWatchPollerCount(ctx context.Context, delta int64) {
	m.WatchPollersActive.Add(ctx, delta)
}
