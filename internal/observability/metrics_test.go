package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/training", 202, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/training/abc123", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/training/xyz789", 404, 0.005)
	metrics.RecordHTTPRequest(ctx, "DELETE", "/v1/training/abc123", 200, 0.100)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/training", 500, 0.001)
}

func TestRecordTaskAndTrainingMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordTaskCreated(ctx)
	metrics.RecordTaskFailed(ctx)
	metrics.RecordTaskStopped(ctx)
	metrics.RecordTrainingStarted(ctx)
	metrics.RecordTrainingCompleted(ctx, 12.5)
	metrics.RecordTrainingFinished(ctx)
}

func TestRecordWatchMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordWatchSubscribed(ctx)
	metrics.RecordWatchPollerCount(ctx, 1)
	metrics.RecordWatchMessage(ctx, "connected")
	metrics.RecordWatchMessage(ctx, "progress")
	metrics.RecordWatchMessage(ctx, "finished")
	metrics.RecordWatchPollerCount(ctx, -1)
	metrics.RecordWatchUnsubscribed(ctx)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
		want string
	}{
		{"collection", "/v1/training", "/v1/training"},
		{"task by id", "/v1/training/abc123", "/v1/training/{taskId}"},
		{"connections by id", "/v1/training/connections/abc123", "/v1/training/connections/{taskId}"},
		{"stats stays literal", "/v1/training/stats", "/v1/training/stats"},
		{"websocket by id", "/ws/training/abc123", "/ws/training/{taskId}"},
		{"health untouched", "/livez", "/livez"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
