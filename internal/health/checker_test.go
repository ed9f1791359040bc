package health

import (
	"context"
	"errors"
	"testing"
)

type fakeDependency struct {
	err error
}

func (f *fakeDependency) Ready(ctx context.Context) error {
	return f.err
}

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoDependencies(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}

	if response.Checks == nil {
		t.Fatal("Expected checks to be present")
	}
}

func TestChecker_Readiness_AllHealthy(t *testing.T) {
	t.Parallel()
	checker := NewChecker(map[string]ReadinessChecker{
		"store": &fakeDependency{},
		"queue": &fakeDependency{},
	})

	response := checker.Readiness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}

	for _, name := range []string{"store", "queue"} {
		check, ok := response.Checks[name]
		if !ok {
			t.Fatalf("Expected %s check to be present", name)
		}
		if check.Status != StatusHealthy {
			t.Errorf("Expected %s check to be healthy, got %s", name, check.Status)
		}
	}
}

func TestChecker_Readiness_OneUnhealthy(t *testing.T) {
	t.Parallel()
	checker := NewChecker(map[string]ReadinessChecker{
		"store": &fakeDependency{},
		"queue": &fakeDependency{err: errors.New("connection refused")},
	})

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}

	queueCheck := response.Checks["queue"]
	if queueCheck.Status != StatusUnhealthy {
		t.Errorf("Expected queue check to be unhealthy, got %s", queueCheck.Status)
	}
	if queueCheck.Message != "connection refused" {
		t.Errorf("Expected error message to surface, got %q", queueCheck.Message)
	}

	if response.Checks["store"].Status != StatusHealthy {
		t.Error("Expected store check to stay healthy")
	}
}

func TestChecker_Readiness_ShuttingDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(map[string]ReadinessChecker{
		"store": &fakeDependency{},
	})

	checker.SetShuttingDown()
	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status during shutdown, got %s", response.Status)
	}

	if _, ok := response.Checks["shutdown"]; !ok {
		t.Error("Expected shutdown check to be present")
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"healthy", StatusHealthy, true},
		{"unhealthy", StatusUnhealthy, false},
		{"degraded", StatusDegraded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			if response.IsHealthy() != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", response.IsHealthy(), tt.expected)
			}
		})
	}
}
