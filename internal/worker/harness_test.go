package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"trainhub/internal/store/memory"
	"trainhub/internal/task"
	"trainhub/internal/trainer"
)

// fakeTrainer scripts the callable's behavior for harness tests.
type fakeTrainer struct {
	steps      int
	resultPath string
	err        error
	panicMsg   string
	onStep     func(step int) // called before each progress report
}

func (f *fakeTrainer) Train(ctx context.Context, cfg task.Config, sink trainer.Sink) (string, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	sink.ReportLog("starting")
	for i := 1; i <= f.steps; i++ {
		if f.onStep != nil {
			f.onStep(i)
		}
		sink.ReportProgress(i, map[string]float64{"loss": 1.0 / float64(i), "mAP": 0.1 * float64(i)})
	}
	if f.err != nil {
		return "", f.err
	}
	return f.resultPath, nil
}

func seedPending(t *testing.T, store *memory.Store, id string, epochs int) {
	t.Helper()
	err := store.CreateTask(context.Background(), &task.Task{
		ID:         id,
		Config:     task.Config{DatasetID: "d1", Epochs: epochs},
		Status:     task.StatusPending,
		TotalSteps: epochs,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}
}

func TestExecuteHappyPath(t *testing.T) {
	t.Parallel()
	store := memory.New()
	seedPending(t, store, "t1", 5)

	h := NewHarness(store, &fakeTrainer{steps: 5, resultPath: "/out/d1"}, nil, nil)
	if err := h.Execute(context.Background(), "t1", task.Config{DatasetID: "d1", Epochs: 5}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, _ := store.GetTask(context.Background(), "t1")
	if got.Status != task.StatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if got.ResultPath != "/out/d1" {
		t.Errorf("ResultPath = %q, want /out/d1", got.ResultPath)
	}
	if got.CurrentStep != 5 {
		t.Errorf("CurrentStep = %d, want 5", got.CurrentStep)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt not stamped")
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
	if got.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", got.ErrorMessage)
	}
}

func TestExecuteCallableFailure(t *testing.T) {
	t.Parallel()
	store := memory.New()
	seedPending(t, store, "t1", 5)

	h := NewHarness(store, &fakeTrainer{steps: 2, err: errors.New("CUDA out of memory")}, nil, nil)
	// The queue runtime must see a normal return.
	if err := h.Execute(context.Background(), "t1", task.Config{DatasetID: "d1", Epochs: 5}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, _ := store.GetTask(context.Background(), "t1")
	if got.Status != task.StatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if got.ErrorMessage != "CUDA out of memory" {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
	if got.ResultPath != "" {
		t.Errorf("ResultPath = %q, want empty on failure", got.ResultPath)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not stamped on failure")
	}
}

func TestExecuteCallablePanic(t *testing.T) {
	t.Parallel()
	store := memory.New()
	seedPending(t, store, "t1", 5)

	h := NewHarness(store, &fakeTrainer{panicMsg: "nil dereference in engine"}, nil, nil)
	if err := h.Execute(context.Background(), "t1", task.Config{DatasetID: "d1", Epochs: 5}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, _ := store.GetTask(context.Background(), "t1")
	if got.Status != task.StatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("expected panic captured in ErrorMessage")
	}
}

func TestExecuteSkipsTerminalTask(t *testing.T) {
	t.Parallel()
	store := memory.New()
	seedPending(t, store, "t1", 5)

	// Stopped before pickup.
	if _, err := task.ApplyTransition(context.Background(), store, "t1", task.StatusStopped, task.Update{}); err != nil {
		t.Fatalf("stop: %v", err)
	}

	ran := false
	ft := &fakeTrainer{steps: 5, resultPath: "/out/d1", onStep: func(int) { ran = true }}
	h := NewHarness(store, ft, nil, nil)
	if err := h.Execute(context.Background(), "t1", task.Config{DatasetID: "d1", Epochs: 5}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if ran {
		t.Error("callable ran for a terminal task")
	}
	got, _ := store.GetTask(context.Background(), "t1")
	if got.Status != task.StatusStopped {
		t.Errorf("Status = %s, want stopped (terminal state is final)", got.Status)
	}
}

func TestExecuteUnknownTask(t *testing.T) {
	t.Parallel()
	h := NewHarness(memory.New(), &fakeTrainer{}, nil, nil)

	if err := h.Execute(context.Background(), "ghost", task.Config{}); err == nil {
		t.Error("expected non-retryable error for unknown task")
	}
}

func TestExecuteStopDuringRunDoesNotOverwriteTerminal(t *testing.T) {
	t.Parallel()
	store := memory.New()
	seedPending(t, store, "t1", 5)

	// Simulate a stop request landing while the callable runs: mark the
	// row STOPPED from step 3 onward, as the bridge would.
	ft := &fakeTrainer{steps: 5, resultPath: "/out/d1"}
	ft.onStep = func(step int) {
		if step == 3 {
			_, _ = task.ApplyTransition(context.Background(), store, "t1", task.StatusStopped, task.Update{})
		}
	}

	h := NewHarness(store, ft, nil, nil)
	if err := h.Execute(context.Background(), "t1", task.Config{DatasetID: "d1", Epochs: 5}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, _ := store.GetTask(context.Background(), "t1")
	if got.Status != task.StatusStopped {
		t.Errorf("Status = %s, want stopped (completion write must be ignored)", got.Status)
	}
	if got.ResultPath != "" {
		t.Errorf("ResultPath = %q, want empty", got.ResultPath)
	}
}

type fakeExporter struct {
	called bool
	err    error
}

func (f *fakeExporter) Export(ctx context.Context, resultPath string) error {
	f.called = true
	return f.err
}

func TestExecuteExportFailureNeverDowngrades(t *testing.T) {
	t.Parallel()
	store := memory.New()
	seedPending(t, store, "t1", 5)

	exp := &fakeExporter{err: errors.New("onnx conversion failed")}
	h := NewHarness(store, &fakeTrainer{steps: 5, resultPath: "/out/d1"}, exp, nil)
	if err := h.Execute(context.Background(), "t1", task.Config{DatasetID: "d1", Epochs: 5}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !exp.called {
		t.Error("exporter not invoked after success")
	}
	got, _ := store.GetTask(context.Background(), "t1")
	if got.Status != task.StatusCompleted {
		t.Errorf("Status = %s, want completed despite export failure", got.Status)
	}
}

func TestExecuteTimeoutMapsToFailed(t *testing.T) {
	t.Parallel()
	store := memory.New()
	seedPending(t, store, "t1", 5)

	slow := &fakeTrainer{steps: 5, resultPath: "/out/d1"}
	slow.onStep = func(int) { time.Sleep(20 * time.Millisecond) }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// The fake ignores ctx, so wrap it with one that checks.
	h := NewHarness(store, ctxCheckingTrainer{slow}, nil, nil)
	if err := h.Execute(ctx, "t1", task.Config{DatasetID: "d1", Epochs: 5}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, _ := store.GetTask(context.Background(), "t1")
	if got.Status != task.StatusFailed {
		t.Errorf("Status = %s, want failed on timeout", got.Status)
	}
	if got.ErrorMessage != "training exceeded its execution time limit" {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
}

// ctxCheckingTrainer fails with the context error once the deadline passes,
// the way a cancellation-aware engine would.
type ctxCheckingTrainer struct {
	inner trainer.Trainer
}

func (c ctxCheckingTrainer) Train(ctx context.Context, cfg task.Config, sink trainer.Sink) (string, error) {
	path, err := c.inner.Train(ctx, cfg, sink)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return path, err
}
