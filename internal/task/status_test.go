package task

import "testing"

func TestStatus_Valid(t *testing.T) {
	t.Parallel()
	for _, s := range []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusStopped} {
		if !s.Valid() {
			t.Errorf("Expected %s to be valid", s)
		}
	}
	for _, s := range []Status{"", "pending", "DONE"} {
		if s.Valid() {
			t.Errorf("Expected %q to be invalid", s)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusStopped, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusStopped, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusStopped, true},

		// RUNNING only from PENDING
		{StatusRunning, StatusRunning, false},
		{StatusCompleted, StatusRunning, false},

		// Terminal states are final
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusStopped, false},
		{StatusFailed, StatusCompleted, false},
		{StatusStopped, StatusRunning, false},
		{StatusStopped, StatusCompleted, false},

		// No moving backwards
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusPending, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}
