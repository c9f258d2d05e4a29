// Package embedding provides image and text embeddings from a vision-language dual encoder.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbedding marks any failure to produce an embedding: unreadable image, tokenizer or
// inference error, cancellation. Callers compare with errors.Is and skip the item.
var ErrEmbedding = errors.New("embedding failed")

// Embedder produces L2-normalized vectors for images and text in one shared space.
// Image and text vectors have the same dimension.
type Embedder interface {
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Device() Device
	Close() error
}
