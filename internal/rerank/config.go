package rerank

import (
	"fmt"
	"os"
	"time"

	"github.com/hyperjump/scout/internal/embedding"
)

// ONNXConfig configures an ONNX re-rank scorer.
type ONNXConfig struct {
	ModelPath         string
	VocabPath         string
	OutputName        string
	SharedLibraryPath string
	Device            embedding.Device
	MaxTokens         int
	ImageSize         int
	Timeout           time.Duration
}

func (c ONNXConfig) check() error {
	if c.ModelPath == "" || c.VocabPath == "" {
		return fmt.Errorf("rerank model_path and vocab_path are required")
	}
	for _, p := range []string{c.ModelPath, c.VocabPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("rerank model file unavailable: %w", err)
		}
	}
	return nil
}
