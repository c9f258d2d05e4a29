// Package rerank re-orders stage-1 candidates with a slower, more precise cross-modal scorer.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/scout/internal/config"
	"github.com/hyperjump/scout/internal/embedding"
	"github.com/hyperjump/scout/internal/models"
	"github.com/hyperjump/scout/pkg/utils"
	"go.uber.org/zap"
)

// Strategy names accepted in rerank.strategy.
const (
	StrategyNone    = "none"
	StrategyText    = "text"
	StrategyImage   = "image"
	StrategyLexical = "lexical"
)

// ErrUnscoreable marks a candidate that lacks the input a scorer needs.
var ErrUnscoreable = errors.New("candidate cannot be scored")

// Reranker re-scores candidates against the query and returns at most topK of them,
// best first.
type Reranker interface {
	Rank(ctx context.Context, query string, candidates []models.Candidate, topK int) ([]models.Candidate, error)
}

// Option configures a re-ranker.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used for dropped candidates.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = utils.OrNop(o.logger)
	return o
}

type scoreFunc func(ctx context.Context, query string, c *models.Candidate) (float64, error)

// rankWith scores every candidate, drops the ones that fail, sorts the rest by score
// descending and truncates to topK. Sorting is stable so equal scores keep stage-1 order.
// Only context cancellation fails the whole call.
func rankWith(ctx context.Context, logger *zap.Logger, query string, candidates []models.Candidate, topK int, score scoreFunc) ([]models.Candidate, error) {
	if len(candidates) == 0 || topK <= 0 {
		return []models.Candidate{}, nil
	}
	scored := make([]models.Candidate, 0, len(candidates))
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := candidates[i]
		s, err := score(ctx, query, &c)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn("dropping candidate",
				zap.String("id", c.ID),
				zap.String("path", c.Metadata.Path),
				zap.Error(err))
			continue
		}
		c.RerankScore = s
		scored = append(scored, c)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RerankScore > scored[j].RerankScore
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// New returns the re-ranker selected by cfg.Rerank.Strategy, or nil for "none".
// ONNX strategies share the runtime library and device preference of the embedder.
func New(cfg *config.Config, logger *zap.Logger) (Reranker, error) {
	logger = utils.OrNop(logger)
	rc := cfg.Rerank
	switch strings.ToLower(rc.Strategy) {
	case StrategyNone, "":
		return nil, nil
	case StrategyLexical:
		return NewTextReranker(NewLexicalScorer(), WithLogger(logger)), nil
	case StrategyText, StrategyImage:
	default:
		return nil, fmt.Errorf("unknown rerank strategy: %s (supported: none, text, image, lexical)", rc.Strategy)
	}

	device, err := embedding.ParseDevice(cfg.Embedding.Device)
	if err != nil {
		return nil, err
	}
	onnxCfg := ONNXConfig{
		ModelPath:         rc.ModelPath,
		VocabPath:         rc.VocabPath,
		OutputName:        rc.OutputName,
		SharedLibraryPath: cfg.Embedding.SharedLibraryPath,
		Device:            device,
		MaxTokens:         rc.MaxTokens,
		ImageSize:         rc.ImageSize,
		Timeout:           cfg.Embedding.InferenceTimeout,
	}
	if err := onnxCfg.check(); err != nil {
		return nil, err
	}
	if strings.EqualFold(rc.Strategy, StrategyText) {
		scorer, err := NewCrossEncoder(onnxCfg, logger)
		if err != nil {
			return nil, err
		}
		return NewTextReranker(scorer, WithLogger(logger)), nil
	}
	scorer, err := NewITMScorer(onnxCfg, logger)
	if err != nil {
		return nil, err
	}
	return NewImageReranker(scorer, WithLogger(logger)), nil
}

// Close releases the re-ranker's model sessions when it holds any.
func Close(r Reranker) error {
	if c, ok := r.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
