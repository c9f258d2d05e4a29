// Package evaluate measures retrieval quality by using catalog descriptions as queries and
// checking where the described image lands in the results.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/scout/internal/catalog"
	"github.com/hyperjump/scout/internal/models"
	"github.com/hyperjump/scout/internal/search"
	"github.com/hyperjump/scout/pkg/utils"
	"go.uber.org/zap"
)

// ErrNoSamples is returned when no indexed image has a description.
var ErrNoSamples = errors.New("no indexed images with descriptions")

// Searcher runs the two-stage query pipeline.
type Searcher interface {
	SearchWithRerank(ctx context.Context, text string, stage1K, finalK int) (*models.SearchResponse, error)
}

// Sampler draws descriptions restricted to a set of photo ids.
type Sampler interface {
	Sample(ctx context.Context, n int, seed int64, allowed map[string]struct{}) ([]catalog.Description, error)
}

// Options controls an evaluation run.
type Options struct {
	SampleSize int
	Seed       int64
	Stage1K    int
	FinalK     int
}

// DefaultOptions mirrors the reference evaluation: 100 queries, 100 candidates, top 10 kept.
func DefaultOptions() Options {
	return Options{SampleSize: 100, Seed: 42, Stage1K: 100, FinalK: 10}
}

// Report holds the evaluation metrics. Recall and MRR are averaged over SampleSize, so a
// query that failed counts as a miss.
type Report struct {
	SampleSize int           `json:"sample_size"`
	Evaluated  int           `json:"evaluated"`
	Failed     int           `json:"failed"`
	RecallAt1  float64       `json:"recall_at_1"`
	RecallAt5  float64       `json:"recall_at_5"`
	RecallAt10 float64       `json:"recall_at_10"`
	MRR        float64       `json:"mrr"`
	Strategy   string        `json:"strategy,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Evaluator runs evaluations.
type Evaluator struct {
	searcher Searcher
	sampler  Sampler
	// targets maps photo id to the identity of the indexed image.
	targets map[string]string
	logger  *zap.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator returns an evaluator over the indexed images in entries (identity to
// metadata, as stored in the snapshot).
func NewEvaluator(searcher Searcher, sampler Sampler, entries map[string]models.ImageMetadata, opts ...Option) *Evaluator {
	e := &Evaluator{
		searcher: searcher,
		sampler:  sampler,
		targets:  make(map[string]string, len(entries)),
	}
	for id, meta := range entries {
		if pid := search.PhotoID(meta); pid != "" {
			e.targets[pid] = id
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// Run samples descriptions of indexed images, searches with each description and scores
// the rank of the described image.
func (e *Evaluator) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	def := DefaultOptions()
	if opts.SampleSize <= 0 {
		opts.SampleSize = def.SampleSize
	}
	if opts.FinalK <= 0 {
		opts.FinalK = def.FinalK
	}
	if opts.Stage1K < opts.FinalK {
		opts.Stage1K = max(def.Stage1K, opts.FinalK)
	}

	allowed := make(map[string]struct{}, len(e.targets))
	for pid := range e.targets {
		allowed[pid] = struct{}{}
	}
	samples, err := e.sampler.Sample(ctx, opts.SampleSize, opts.Seed, allowed)
	if err != nil {
		return nil, fmt.Errorf("failed to sample descriptions: %w", err)
	}
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	e.logger.Info("evaluating",
		zap.Int("sample_size", len(samples)),
		zap.Int("stage1_k", opts.Stage1K),
		zap.Int("final_k", opts.FinalK))

	report := &Report{SampleSize: len(samples)}
	var hits1, hits5, hits10 int
	var mrr float64
	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := e.searcher.SearchWithRerank(ctx, s.Text, opts.Stage1K, opts.FinalK)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			report.Failed++
			e.logger.Warn("evaluation query failed", zap.String("photo_id", s.PhotoID), zap.Error(err))
			continue
		}
		report.Evaluated++
		if report.Strategy == "" {
			report.Strategy = resp.Strategy
		}
		rank := Rank(resp, e.targets[s.PhotoID])
		if rank > 0 {
			mrr += 1.0 / float64(rank)
			if rank <= 1 {
				hits1++
			}
			if rank <= 5 {
				hits5++
			}
			if rank <= 10 {
				hits10++
			}
		}
		if (i+1)%25 == 0 {
			e.logger.Info("evaluation progress", zap.Int("done", i+1), zap.Int("total", len(samples)))
		}
	}

	n := float64(report.SampleSize)
	report.RecallAt1 = float64(hits1) / n
	report.RecallAt5 = float64(hits5) / n
	report.RecallAt10 = float64(hits10) / n
	report.MRR = mrr / n
	report.Duration = time.Since(start)
	return report, nil
}

// Rank returns the 1-based position of id in resp, or 0 when absent.
func Rank(resp *models.SearchResponse, id string) int {
	if resp == nil || id == "" {
		return 0
	}
	for i, r := range resp.Results {
		if r.ID == id {
			return i + 1
		}
	}
	return 0
}
