// Package worker contains the execution harness that bridges the training
// callable back to shared task state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trainhub/internal/apperrors"
	"trainhub/internal/observability"
	"trainhub/internal/task"
	"trainhub/internal/trainer"
)

// Exporter converts a trained artifact to another on-disk format after a
// successful run. Export failures are logged and never affect task state.
type Exporter interface {
	Export(ctx context.Context, resultPath string) error
}

// Harness drives one training run per invocation. It owns all status and
// progress writes for the task it executes; the queue's one-consumer-per-unit
// guarantee means no other harness writes the same row concurrently.
type Harness struct {
	store    task.Store
	trainer  trainer.Trainer
	exporter Exporter // optional
	metrics  *observability.Metrics
}

// NewHarness creates an execution harness.
func NewHarness(store task.Store, tr trainer.Trainer, exporter Exporter, metrics *observability.Metrics) *Harness {
	return &Harness{
		store:    store,
		trainer:  tr,
		exporter: exporter,
		metrics:  metrics,
	}
}

// Execute runs one unit of work. It always returns nil after the task row
// reflects the outcome: failures of the callable become a FAILED row, not an
// error the queue runtime would count against the unit. The only non-nil
// returns are for units that cannot run at all (unknown task id).
func (h *Harness) Execute(ctx context.Context, taskID string, cfg task.Config) error {
	logger := slog.With("taskId", taskID)

	t, err := h.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("task %s does not exist", taskID)
		}
		return err
	}

	// Stopped (or otherwise finished) before pickup: nothing to do.
	if t.Status.Terminal() {
		logger.Info("Task already terminal, skipping execution", "status", t.Status)
		return nil
	}

	if _, err := task.ApplyTransition(ctx, h.store, taskID, task.StatusRunning, task.Update{}); err != nil {
		if errors.Is(err, apperrors.ErrInvalidState) {
			logger.Info("Task no longer startable, skipping execution")
			return nil
		}
		return err
	}

	if h.metrics != nil {
		h.metrics.RecordTrainingStarted(ctx)
		defer h.metrics.RecordTrainingFinished(context.WithoutCancel(ctx))
	}
	logger.Info("Training started", "epochs", cfg.Epochs, "datasetId", cfg.DatasetID)
	start := time.Now()

	resultPath, trainErr := h.runCallable(ctx, taskID, cfg, logger)

	// Terminal writes must survive run-context cancellation.
	writeCtx := context.WithoutCancel(ctx)

	if trainErr != nil {
		h.recordFailure(writeCtx, taskID, trainErr, logger)
		return nil
	}

	if _, err := task.ApplyTransition(writeCtx, h.store, taskID, task.StatusCompleted, task.Update{
		ResultPath: &resultPath,
	}); err != nil {
		if errors.Is(err, apperrors.ErrInvalidState) {
			// Stop request won the race; the terminal state stands.
			logger.Info("Task reached terminal state during run, completion ignored")
			return nil
		}
		return err
	}

	if h.metrics != nil {
		h.metrics.RecordTrainingCompleted(writeCtx, time.Since(start).Seconds())
	}
	logger.Info("Training completed", "resultPath", resultPath, "duration", time.Since(start))

	// Best-effort export; a failure here never downgrades the task.
	if h.exporter != nil {
		if err := h.exporter.Export(writeCtx, resultPath); err != nil {
			logger.Warn("Artifact export failed", "resultPath", resultPath, "error", err)
		}
	}
	return nil
}

// runCallable invokes the trainer with the injected sinks, converting panics
// into errors so the worker runtime never crashes on a misbehaving engine.
func (h *Harness) runCallable(ctx context.Context, taskID string, cfg task.Config, logger *slog.Logger) (resultPath string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("training callable panicked: %v", r)
		}
	}()

	sink := &storeSink{
		ctx:    context.WithoutCancel(ctx),
		store:  h.store,
		taskID: taskID,
		logger: logger,
	}
	return h.trainer.Train(ctx, cfg, sink)
}

// recordFailure writes the terminal FAILED state, unless a stop request
// already made the row terminal.
func (h *Harness) recordFailure(ctx context.Context, taskID string, trainErr error, logger *slog.Logger) {
	msg := trainErr.Error()
	switch {
	case errors.Is(trainErr, context.DeadlineExceeded):
		msg = "training exceeded its execution time limit"
	case errors.Is(trainErr, context.Canceled):
		// A stop request cancelled the run; the row is already STOPPED and
		// the transition below is a no-op.
		msg = "training cancelled"
	}

	if _, err := task.ApplyTransition(ctx, h.store, taskID, task.StatusFailed, task.Update{
		ErrorMessage: &msg,
	}); err != nil {
		if errors.Is(err, apperrors.ErrInvalidState) {
			logger.Info("Task already terminal, failure not recorded", "error", trainErr)
			return
		}
		logger.Error("Failed to record training failure", "error", err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordTaskFailed(ctx)
	}
	logger.Error("Training failed", "error", trainErr)
}

// storeSink writes progress events to the task row. One row update per
// call, no network fan-out: subscribers observe the row through the watch
// poller in the API process.
type storeSink struct {
	ctx      context.Context
	store    task.Store
	taskID   string
	logger   *slog.Logger
	lastStep int
}

// ReportProgress implements trainer.Sink. Steps never move backwards within
// a run; a stale step is dropped.
func (s *storeSink) ReportProgress(step int, metrics map[string]float64) {
	if step < s.lastStep {
		return
	}
	s.lastStep = step

	upd := task.Update{CurrentStep: &step}
	if loss, ok := metrics["loss"]; ok {
		upd.CurrentLoss = &loss
	}
	if m, ok := metrics["mAP"]; ok {
		upd.CurrentMetric = &m
	}

	if err := s.store.UpdateTask(s.ctx, s.taskID, upd); err != nil {
		// Progress loss is tolerable; the run itself keeps going.
		s.logger.Warn("Progress write failed", "step", step, "error", err)
	}
}

// ReportLog implements trainer.Sink.
func (s *storeSink) ReportLog(message string) {
	s.logger.Info("Trainer: " + message)
}
