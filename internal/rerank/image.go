package rerank

import (
	"context"
	"fmt"
	"io"

	"github.com/hyperjump/scout/internal/models"
	"go.uber.org/zap"
)

// ImageScorer scores how well the image at path matches a query.
type ImageScorer interface {
	ScoreImage(ctx context.Context, query, path string) (float64, error)
}

// ImageReranker re-scores candidates by looking at the image itself. Candidates without
// a resolved image path, or whose file cannot be read, are dropped.
type ImageReranker struct {
	scorer ImageScorer
	logger *zap.Logger
}

// NewImageReranker returns a re-ranker over scorer.
func NewImageReranker(scorer ImageScorer, opts ...Option) *ImageReranker {
	o := buildOptions(opts)
	return &ImageReranker{scorer: scorer, logger: o.logger}
}

// Rank implements Reranker.
func (r *ImageReranker) Rank(ctx context.Context, query string, candidates []models.Candidate, topK int) ([]models.Candidate, error) {
	return rankWith(ctx, r.logger, query, candidates, topK, func(ctx context.Context, query string, c *models.Candidate) (float64, error) {
		if c.ImagePath == "" {
			return 0, fmt.Errorf("%w: no image path", ErrUnscoreable)
		}
		return r.scorer.ScoreImage(ctx, query, c.ImagePath)
	})
}

// Close closes the scorer when it holds resources.
func (r *ImageReranker) Close() error {
	if c, ok := r.scorer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
