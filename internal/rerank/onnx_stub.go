//go:build !cgo
// +build !cgo

package rerank

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var errNoCGO = errors.New("ONNX re-rankers require CGO; build with CGO_ENABLED=1 and onnxruntime")

// CrossEncoder stub type when built without CGO (see onnx.go for real implementation).
type CrossEncoder struct{}

// NewCrossEncoder returns an error when built without CGO.
func NewCrossEncoder(_ ONNXConfig, _ *zap.Logger) (*CrossEncoder, error) {
	return nil, errNoCGO
}

func (c *CrossEncoder) ScorePair(context.Context, string, string) (float64, error) {
	return 0, errNoCGO
}

func (c *CrossEncoder) Close() error {
	return nil
}

// ITMScorer stub type when built without CGO (see onnx.go for real implementation).
type ITMScorer struct{}

// NewITMScorer returns an error when built without CGO.
func NewITMScorer(_ ONNXConfig, _ *zap.Logger) (*ITMScorer, error) {
	return nil, errNoCGO
}

func (s *ITMScorer) ScoreImage(context.Context, string, string) (float64, error) {
	return 0, errNoCGO
}

func (s *ITMScorer) Close() error {
	return nil
}
