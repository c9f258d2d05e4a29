//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var errNoCGO = errors.New("ONNX runtime requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXEmbedder(_ ONNXConfig, _ *zap.Logger) (*ONNXEmbedder, error) {
	return nil, errNoCGO
}

// InitRuntime returns an error when built without CGO.
func InitRuntime(_ string) error {
	return errNoCGO
}

func (e *ONNXEmbedder) EmbedImage(context.Context, string) ([]float32, error) {
	return nil, errNoCGO
}

func (e *ONNXEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return nil, errNoCGO
}

func (e *ONNXEmbedder) Dimensions() int {
	return 0
}

func (e *ONNXEmbedder) Device() Device {
	return DeviceCPU
}

func (e *ONNXEmbedder) Close() error {
	return nil
}
