package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"trainhub/internal/apperrors"
	"trainhub/internal/observability"
)

// Validation limits, matching the bounds the training engine accepts.
const (
	maxEpochs    = 300
	maxBatchSize = 64
	minImageSize = 320
	maxImageSize = 1280

	defaultListLimit = 50
	maxListLimit     = 200
)

// Queue submission bounds.
const (
	jobTimeout      = 24 * time.Hour
	resultRetention = 24 * time.Hour
)

// Service is the Job Queue Bridge: it validates submissions, persists the
// task row, hands the unit of work to the durable queue, and serves the
// control surface (get/list/stop/stats).
//
// The Service is stateless - all task state lives in the Store, all queued
// work in the Queue. Multiple API instances can run against the same pair.
type Service struct {
	store   Store
	queue   Queue
	metrics *observability.Metrics
}

// NewService creates a new task service.
func NewService(store Store, queue Queue, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		queue:   queue,
		metrics: metrics,
	}
}

// Submit validates the config, writes a PENDING row, and enqueues the unit
// of work. The row is never left PENDING without a queue handle: if the
// enqueue fails, the task is transitioned to FAILED and the error surfaced.
func (s *Service) Submit(ctx context.Context, cfg Config) (*Task, error) {
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}

	t := &Task{
		ID:         uuid.NewString(),
		Config:     cfg,
		Status:     StatusPending,
		TotalSteps: cfg.Epochs,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}

	logger := slog.With("taskId", t.ID, "datasetId", cfg.DatasetID, "epochs", cfg.Epochs)

	handle, err := s.queue.Enqueue(ctx, t.ID, cfg, EnqueueOptions{
		Timeout:         jobTimeout,
		ResultRetention: resultRetention,
	})
	if err != nil {
		logger.Error("Enqueue failed, marking task failed", "error", err)
		msg := fmt.Sprintf("failed to enqueue training job: %v", err)
		if _, terr := ApplyTransition(ctx, s.store, t.ID, StatusFailed, Update{ErrorMessage: &msg}); terr != nil {
			logger.Error("Failed to record enqueue failure", "error", terr)
		}
		if s.metrics != nil {
			s.metrics.RecordTaskFailed(ctx)
		}
		return nil, apperrors.Unavailable("queue.enqueue", err)
	}

	if err := s.store.UpdateTask(ctx, t.ID, Update{QueueHandle: &handle}); err != nil {
		return nil, err
	}
	t.QueueHandle = handle

	if s.metrics != nil {
		s.metrics.RecordTaskCreated(ctx)
	}
	logger.Info("Task submitted", "queueHandle", handle)

	return t, nil
}

// Get returns a task by id.
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	return s.store.GetTask(ctx, id)
}

// List returns tasks newest-first with an optional status filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Task, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.Validation("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListTasks(ctx, filter)
}

// Stop requests cancellation of a PENDING or RUNNING task. The queue cancel
// is best-effort; the row is transitioned to STOPPED regardless of its
// outcome. Stopping a task in a terminal state is an invalid-state error and
// leaves the row unchanged.
func (s *Service) Stop(ctx context.Context, id string) error {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	logger := slog.With("taskId", id)

	if t.Status.Terminal() {
		return apperrors.InvalidState("task",
			fmt.Sprintf("task %s is %s and cannot be stopped", id, t.Status))
	}

	if t.QueueHandle != "" {
		cancelled, err := s.queue.Cancel(ctx, t.QueueHandle)
		if err != nil {
			logger.Warn("Queue cancel failed", "queueHandle", t.QueueHandle, "error", err)
		} else if !cancelled {
			logger.Info("Queue unit already past cancellation", "queueHandle", t.QueueHandle)
		}
	}

	if _, err := ApplyTransition(ctx, s.store, id, StatusStopped, Update{}); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordTaskStopped(ctx)
	}
	logger.Info("Task stopped")
	return nil
}

// Stats aggregates task counts by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Stopped   int `json:"stopped"`
}

// GetStats returns aggregate task counts.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Pending:   counts[StatusPending],
		Running:   counts[StatusRunning],
		Completed: counts[StatusCompleted],
		Failed:    counts[StatusFailed],
		Stopped:   counts[StatusStopped],
	}
	stats.Total = stats.Pending + stats.Running + stats.Completed + stats.Failed + stats.Stopped
	return stats, nil
}

// applyDefaults sets default values for unspecified config fields.
func applyDefaults(cfg *Config) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 8
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = 640
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = "v11"
	}
	if cfg.Device == "" {
		cfg.Device = "auto"
	}
	if cfg.Optimizer == "" {
		cfg.Optimizer = "AdamW"
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}
}

// validate validates a training config. Does not modify it.
func validate(cfg Config) error {
	if cfg.DatasetID == "" {
		return apperrors.Validation("datasetId", "dataset reference is required")
	}
	if cfg.Epochs <= 0 {
		return apperrors.Validation("epochs", "epoch count is required")
	}
	if cfg.Epochs > maxEpochs {
		return apperrors.Validation("epochs",
			fmt.Sprintf("epochs exceeds maximum of %d", maxEpochs))
	}
	if cfg.BatchSize > maxBatchSize {
		return apperrors.Validation("batchSize",
			fmt.Sprintf("batch size exceeds maximum of %d", maxBatchSize))
	}
	if cfg.ImageSize < minImageSize || cfg.ImageSize > maxImageSize {
		return apperrors.Validation("imageSize",
			fmt.Sprintf("image size must be between %d and %d", minImageSize, maxImageSize))
	}
	return nil
}
