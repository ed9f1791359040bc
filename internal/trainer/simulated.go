package trainer

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"trainhub/internal/task"
)

// Simulated is a stand-in training engine for development and tests. It
// walks the configured number of epochs at a fixed cadence, emitting a
// decaying loss curve and a rising metric, and writes a marker file under
// OutputDir as its "trained model".
type Simulated struct {
	OutputDir    string
	StepDuration time.Duration
}

// Train implements Trainer.
func (s *Simulated) Train(ctx context.Context, cfg task.Config, sink Sink) (string, error) {
	stepDuration := s.StepDuration
	if stepDuration <= 0 {
		stepDuration = time.Second
	}

	sink.ReportLog(fmt.Sprintf("initializing %s model for dataset %s", cfg.ModelVersion, cfg.DatasetID))
	sink.ReportLog(fmt.Sprintf("epochs=%d batch=%d imgsz=%d optimizer=%s lr0=%g",
		cfg.Epochs, cfg.BatchSize, cfg.ImageSize, cfg.Optimizer, cfg.LearningRate))

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(stepDuration):
		}

		progress := float64(epoch) / float64(cfg.Epochs)
		sink.ReportProgress(epoch, map[string]float64{
			"loss": 2.0 * math.Exp(-3.0*progress),
			"mAP":  0.9 * progress,
		})
	}

	resultPath := filepath.Join(s.OutputDir, cfg.DatasetID)
	if err := os.MkdirAll(filepath.Join(resultPath, "weights"), 0o755); err != nil {
		return "", fmt.Errorf("create result dir: %w", err)
	}
	marker := filepath.Join(resultPath, "weights", "best.pt")
	if err := os.WriteFile(marker, []byte("simulated"), 0o644); err != nil {
		return "", fmt.Errorf("write model file: %w", err)
	}

	sink.ReportLog("training finished, results saved to " + resultPath)
	return resultPath, nil
}
