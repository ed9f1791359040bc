// Package trainer defines the boundary to the opaque training callable.
//
// The orchestration layer never inspects what a Trainer does; it only
// injects the two sinks and records the outcome. A real engine binds here.
package trainer

import (
	"context"

	"trainhub/internal/task"
)

// Sink receives events from a running callable. Implementations must be
// cheap per call: the callable blocks on every invocation, potentially
// thousands of times per run.
type Sink interface {
	// ReportProgress is called once per training step with the step index
	// and the step's metrics (e.g. "loss", "mAP").
	ReportProgress(step int, metrics map[string]float64)

	// ReportLog is called with free-form log lines from the callable.
	ReportLog(message string)
}

// Trainer runs one training job to completion.
type Trainer interface {
	// Train blocks until training finishes and returns the result path.
	// It must call sink.ReportProgress at a cadence proportional to
	// training steps and should honor ctx cancellation.
	Train(ctx context.Context, cfg task.Config, sink Sink) (string, error)
}
