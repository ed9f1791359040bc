package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WeightsExporter copies the trained weights file into an exchange format
// alongside it. The conversion itself is delegated to the engine in a real
// deployment; this implementation covers the file plumbing.
type WeightsExporter struct{}

// Export implements Exporter.
func (WeightsExporter) Export(ctx context.Context, resultPath string) error {
	src := filepath.Join(resultPath, "weights", "best.pt")
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read weights: %w", err)
	}
	dst := filepath.Join(resultPath, "weights", "best.onnx")
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write exported weights: %w", err)
	}
	return nil
}
