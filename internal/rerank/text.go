package rerank

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/scout/internal/models"
	"go.uber.org/zap"
)

// TextScorer scores how well a text passage answers a query.
type TextScorer interface {
	ScorePair(ctx context.Context, query, text string) (float64, error)
}

// TextReranker re-scores candidates by their description text. Candidates without
// text are dropped.
type TextReranker struct {
	scorer TextScorer
	logger *zap.Logger
}

// NewTextReranker returns a re-ranker over scorer.
func NewTextReranker(scorer TextScorer, opts ...Option) *TextReranker {
	o := buildOptions(opts)
	return &TextReranker{scorer: scorer, logger: o.logger}
}

// Rank implements Reranker.
func (r *TextReranker) Rank(ctx context.Context, query string, candidates []models.Candidate, topK int) ([]models.Candidate, error) {
	return rankWith(ctx, r.logger, query, candidates, topK, func(ctx context.Context, query string, c *models.Candidate) (float64, error) {
		if strings.TrimSpace(c.Text) == "" {
			return 0, fmt.Errorf("%w: no description", ErrUnscoreable)
		}
		return r.scorer.ScorePair(ctx, query, c.Text)
	})
}

// Close closes the scorer when it holds resources.
func (r *TextReranker) Close() error {
	if c, ok := r.scorer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
