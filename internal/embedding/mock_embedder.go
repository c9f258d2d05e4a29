package embedding

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync/atomic"

	"github.com/hyperjump/scout/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and offline development. Text vectors
// are derived from a hash of the normalized text; image vectors from a hash of the file bytes,
// after the file has been decoded so corrupt images fail the way they would with a real model.
type MockEmbedder struct {
	dimensions int
	imageCalls atomic.Int64
	textCalls  atomic.Int64
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedImage decodes the image and returns a vector derived from its bytes.
func (e *MockEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	e.imageCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if _, err := LoadRGB(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return e.vector(string(data)), nil
}

// EmbedText returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.textCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrEmbedding)
	}
	return e.vector(strings.ToLower(text)), nil
}

func (e *MockEmbedder) vector(s string) []float32 {
	h := HashString(s)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Device always reports CPU.
func (e *MockEmbedder) Device() Device {
	return DeviceCPU
}

// ImageCalls returns how many times EmbedImage has been called.
func (e *MockEmbedder) ImageCalls() int {
	return int(e.imageCalls.Load())
}

// TextCalls returns how many times EmbedText has been called.
func (e *MockEmbedder) TextCalls() int {
	return int(e.textCalls.Load())
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
