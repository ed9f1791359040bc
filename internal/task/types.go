// Package task defines the training task model, its state machine, and the
// Store and Queue seams the orchestration layer is built on.
package task

import (
	"context"
	"time"
)

// Config is the training configuration submitted with a task. It is the sole
// input to the training callable and is immutable after creation; the
// orchestration layer only inspects the dataset reference and epoch count.
type Config struct {
	DatasetID    string  `json:"datasetId"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batchSize,omitempty"`
	ImageSize    int     `json:"imageSize,omitempty"`
	ModelVersion string  `json:"modelVersion,omitempty"`
	Device       string  `json:"device,omitempty"`
	Optimizer    string  `json:"optimizer,omitempty"`
	LearningRate float64 `json:"learningRate,omitempty"`
	Augment      bool    `json:"augment,omitempty"`
}

// Task is one submitted training job and its persisted lifecycle state.
// The store row is the single source of truth; the API process and the
// worker process coordinate only through it.
type Task struct {
	ID          string `json:"id"`
	Config      Config `json:"config"`
	Status      Status `json:"status"`
	QueueHandle string `json:"queueHandle,omitempty"`

	// Progress, written only by the harness that owns the run.
	CurrentStep   int      `json:"currentStep"`
	TotalSteps    int      `json:"totalSteps"`
	CurrentLoss   *float64 `json:"currentLoss,omitempty"`
	CurrentMetric *float64 `json:"currentMetric,omitempty"`

	// Terminal outcome, set exactly once.
	ResultPath   string `json:"resultPath,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Update is a partial, idempotent field update for a task row.
// Nil fields are left untouched.
type Update struct {
	Status        *Status
	QueueHandle   *string
	CurrentStep   *int
	CurrentLoss   *float64
	CurrentMetric *float64
	ResultPath    *string
	ErrorMessage  *string
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// ListFilter narrows and pages ListTasks results.
type ListFilter struct {
	Status Status // zero value means no status filter
	Limit  int
	Offset int
}

// Store is the persistent task record. Implementations must provide
// last-write-wins per-row consistency; no multi-row transactions are needed.
type Store interface {
	// CreateTask inserts a new task row.
	CreateTask(ctx context.Context, t *Task) error

	// GetTask returns the task or an apperrors.NotFound error.
	GetTask(ctx context.Context, id string) (*Task, error)

	// UpdateTask applies a partial field update to an existing row.
	UpdateTask(ctx context.Context, id string, upd Update) error

	// ListTasks returns tasks newest-first, optionally filtered by status.
	ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error)

	// CountByStatus returns the number of tasks in each state.
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// EnqueueOptions bound a unit of work in the durable queue.
type EnqueueOptions struct {
	Timeout         time.Duration // wall-clock ceiling on execution
	ResultRetention time.Duration // how long the queue keeps the payload around
}

// Queue submits units of work to the durable job queue. The queue guarantees
// at-most-one active consumer per unit; this layer does not re-enforce it.
type Queue interface {
	// Enqueue submits a unit of work and returns its queue handle.
	Enqueue(ctx context.Context, taskID string, cfg Config, opts EnqueueOptions) (string, error)

	// Cancel best-effort cancels a queued or running unit by handle.
	// Returns true if the queue accepted the cancellation request.
	Cancel(ctx context.Context, handle string) (bool, error)
}
