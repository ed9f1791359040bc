package task

// Status is the lifecycle state of a training task.
//
// Tasks move forward only: PENDING -> RUNNING -> {COMPLETED, FAILED, STOPPED}.
// A task cancelled before pickup moves PENDING -> STOPPED directly. The three
// right-hand states are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// CanTransitionTo reports whether the move from s to next is legal.
// Progress updates are not transitions; RUNNING -> RUNNING is not represented
// here because no status write happens for them.
func (s Status) CanTransitionTo(next Status) bool {
	switch next {
	case StatusRunning:
		return s == StatusPending
	case StatusCompleted, StatusFailed, StatusStopped:
		return s == StatusPending || s == StatusRunning
	}
	return false
}
