package trainer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"trainhub/internal/task"
)

type recordingSink struct {
	mu    sync.Mutex
	steps []int
	logs  []string
}

func (r *recordingSink) ReportProgress(step int, metrics map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recordingSink) ReportLog(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, message)
}

func TestSimulatedTrainReportsEveryEpoch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sim := &Simulated{OutputDir: dir, StepDuration: time.Millisecond}
	sink := &recordingSink{}

	resultPath, err := sim.Train(context.Background(), task.Config{
		DatasetID: "d1", Epochs: 5, ModelVersion: "v11",
	}, sink)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	if want := filepath.Join(dir, "d1"); resultPath != want {
		t.Errorf("resultPath = %q, want %q", resultPath, want)
	}
	if len(sink.steps) != 5 {
		t.Fatalf("progress calls = %d, want 5", len(sink.steps))
	}
	for i, step := range sink.steps {
		if step != i+1 {
			t.Errorf("step[%d] = %d, want %d", i, step, i+1)
		}
	}
	if _, err := os.Stat(filepath.Join(resultPath, "weights", "best.pt")); err != nil {
		t.Errorf("expected model marker file: %v", err)
	}
}

func TestSimulatedTrainHonorsCancellation(t *testing.T) {
	t.Parallel()

	sim := &Simulated{OutputDir: t.TempDir(), StepDuration: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Train(ctx, task.Config{DatasetID: "d1", Epochs: 100}, &recordingSink{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
