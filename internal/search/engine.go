// Package search runs the two-stage query pipeline: embed the query, retrieve the nearest
// images, then optionally re-rank them with a more precise scorer.
package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/scout/internal/config"
	"github.com/hyperjump/scout/internal/models"
	"github.com/hyperjump/scout/internal/observability"
	"github.com/hyperjump/scout/internal/rerank"
	"github.com/hyperjump/scout/internal/vector"
	"github.com/hyperjump/scout/pkg/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	// ErrEmptyQuery is returned for a blank query string.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrQueryEmbedding wraps a failure to embed the query text.
	ErrQueryEmbedding = errors.New("query embedding failed")
	// ErrRetrieval wraps a vector index failure.
	ErrRetrieval = errors.New("retrieval failed")
)

// TextEmbedder embeds query text into the image embedding space.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Querier returns the nearest index entries to a vector.
type Querier interface {
	Query(ctx context.Context, vec []float32, topK int) ([]vector.Match, error)
}

// DescriptionSource resolves photo ids to description text. Missing ids are absent from
// the result.
type DescriptionSource interface {
	Lookup(ctx context.Context, photoIDs []string) (map[string]string, error)
}

// Engine answers text-to-image queries.
type Engine struct {
	embedder     TextEmbedder
	index        Querier
	reranker     rerank.Reranker
	strategy     string
	descriptions DescriptionSource
	projectRoot  string
	limits       config.SearchConfig
	logger       *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithReranker enables the second stage. strategy is reported in responses.
func WithReranker(r rerank.Reranker, strategy string) EngineOption {
	return func(e *Engine) {
		e.reranker = r
		e.strategy = strategy
	}
}

// WithDescriptions sets where candidate description text is looked up before re-ranking.
func WithDescriptions(d DescriptionSource) EngineOption {
	return func(e *Engine) { e.descriptions = d }
}

// WithProjectRoot sets the directory that metadata paths are relative to.
func WithProjectRoot(root string) EngineOption {
	return func(e *Engine) { e.projectRoot = root }
}

// WithLimits sets default and maximum result counts.
func WithLimits(cfg config.SearchConfig) EngineOption {
	return func(e *Engine) { e.limits = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an engine that embeds queries with embedder and retrieves from index.
func NewEngine(embedder TextEmbedder, index Querier, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder: embedder,
		index:    index,
		limits: config.SearchConfig{
			TopK:     models.DefaultTopK,
			Stage1K:  models.DefaultStage1K,
			FinalK:   models.DefaultFinalK,
			MaxLimit: models.MaxLimit,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// RerankEnabled reports whether a re-ranker is configured.
func (e *Engine) RerankEnabled() bool {
	return e.reranker != nil
}

// Strategy returns the configured re-rank strategy name, or "none".
func (e *Engine) Strategy() string {
	if e.reranker == nil {
		return rerank.StrategyNone
	}
	return e.strategy
}

// Run validates q and dispatches to Search or SearchWithRerank.
func (e *Engine) Run(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if q.TopK <= 0 {
		q.TopK = e.limits.TopK
	}
	if q.Stage1K <= 0 {
		q.Stage1K = e.limits.Stage1K
	}
	if q.FinalK <= 0 {
		q.FinalK = e.limits.FinalK
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmptyQuery, err)
	}
	if q.Rerank {
		return e.SearchWithRerank(ctx, q.Query, q.Stage1K, q.FinalK)
	}
	return e.Search(ctx, q.Query, q.TopK)
}

// Search returns the topK stage-1 matches for text, best first.
func (e *Engine) Search(ctx context.Context, text string, topK int) (*models.SearchResponse, error) {
	start := time.Now()
	text = strings.TrimSpace(text)
	topK = e.clamp(topK, e.limits.TopK)
	matches, err := e.retrieve(ctx, text, topK)
	if err != nil {
		return nil, err
	}
	resp := newResponse(text, len(matches))
	for i, m := range matches {
		resp.Results = append(resp.Results, &models.SearchResult{
			ID:          m.ID,
			Score:       m.Score,
			Metadata:    m.Metadata,
			Rank:        i + 1,
			Stage1Score: m.Score,
		})
	}
	return e.finish(resp, start), nil
}

// SearchWithRerank retrieves stage1K candidates and re-ranks them down to finalK. Without a
// re-ranker the first finalK stage-1 matches are returned in order.
func (e *Engine) SearchWithRerank(ctx context.Context, text string, stage1K, finalK int) (*models.SearchResponse, error) {
	start := time.Now()
	text = strings.TrimSpace(text)
	finalK = e.clamp(finalK, e.limits.FinalK)
	stage1K = max(e.clamp(stage1K, e.limits.Stage1K), finalK)

	matches, err := e.retrieve(ctx, text, stage1K)
	if err != nil {
		return nil, err
	}

	if e.reranker == nil {
		if len(matches) > finalK {
			matches = matches[:finalK]
		}
		resp := newResponse(text, len(matches))
		for i, m := range matches {
			resp.Results = append(resp.Results, &models.SearchResult{
				ID:          m.ID,
				Score:       m.Score,
				Metadata:    m.Metadata,
				Rank:        i + 1,
				Stage1Score: m.Score,
			})
		}
		return e.finish(resp, start), nil
	}

	candidates := e.resolve(ctx, matches)

	ctx, span := observability.StartStageSpan(ctx, observability.StageRerank,
		attribute.String("rerank.strategy", e.strategy),
		attribute.Int("rerank.candidates", len(candidates)),
		attribute.Int("rerank.final_k", finalK))
	ranked, err := e.reranker.Rank(ctx, text, candidates, finalK)
	observability.RecordError(span, err)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("failed to rerank: %w", err)
	}

	resp := newResponse(text, len(ranked))
	resp.Reranked = true
	resp.Strategy = e.strategy
	for i, c := range ranked {
		resp.Results = append(resp.Results, &models.SearchResult{
			ID:          c.ID,
			Score:       c.RerankScore,
			Metadata:    c.Metadata,
			Rank:        i + 1,
			Stage1Score: c.Score,
			Reranked:    true,
		})
	}
	return e.finish(resp, start), nil
}

// retrieve embeds text and queries the index for k matches.
func (e *Engine) retrieve(ctx context.Context, text string, k int) ([]vector.Match, error) {
	if text == "" {
		return nil, ErrEmptyQuery
	}

	embedCtx, span := observability.StartStageSpan(ctx, observability.StageEmbed,
		attribute.Int("query.length", len(text)))
	vec, err := e.embedder.EmbedText(embedCtx, text)
	observability.RecordError(span, err)
	span.End()
	if err != nil {
		e.logger.Warn("query embedding failed", zap.String("query", utils.Truncate(text, 80)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrQueryEmbedding, err)
	}

	queryCtx, span := observability.StartStageSpan(ctx, observability.StageRetrieve,
		attribute.Int("search.top_k", k))
	matches, err := e.index.Query(queryCtx, vec, k)
	observability.RecordError(span, err)
	span.SetAttributes(attribute.Int("search.matches", len(matches)))
	span.End()
	if err != nil {
		e.logger.Error("index query failed", zap.Int("top_k", k), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	return matches, nil
}

// resolve turns matches into candidates with their absolute image path and, when a
// description source is configured, their description text. Lookup failures leave the
// text empty.
func (e *Engine) resolve(ctx context.Context, matches []vector.Match) []models.Candidate {
	ctx, span := observability.StartStageSpan(ctx, observability.StageResolve,
		attribute.Int("resolve.candidates", len(matches)))
	defer span.End()

	candidates := make([]models.Candidate, len(matches))
	photoIDs := make([]string, len(matches))
	for i, m := range matches {
		candidates[i] = models.Candidate{
			ID:       m.ID,
			Score:    m.Score,
			Metadata: m.Metadata,
		}
		if m.Metadata.Path != "" {
			candidates[i].ImagePath = filepath.Join(e.projectRoot, filepath.FromSlash(m.Metadata.Path))
		}
		photoIDs[i] = PhotoID(m.Metadata)
	}
	if e.descriptions == nil {
		return candidates
	}
	texts, err := e.descriptions.Lookup(ctx, photoIDs)
	if err != nil {
		observability.RecordError(span, err)
		e.logger.Warn("description lookup failed", zap.Error(err))
		return candidates
	}
	for i := range candidates {
		candidates[i].Text = texts[photoIDs[i]]
	}
	return candidates
}

// PhotoID is the catalog key of an image: its file name without extension.
func PhotoID(meta models.ImageMetadata) string {
	name := meta.Filename
	if name == "" {
		name = meta.Path
	}
	if name == "" {
		return ""
	}
	return utils.Stem(name)
}

func (e *Engine) clamp(v, def int) int {
	if v <= 0 {
		v = def
	}
	if e.limits.MaxLimit > 0 && v > e.limits.MaxLimit {
		v = e.limits.MaxLimit
	}
	return max(v, 1)
}

func newResponse(query string, n int) *models.SearchResponse {
	return &models.SearchResponse{
		Query:   query,
		Results: make([]*models.SearchResult, 0, n),
	}
}

func (e *Engine) finish(resp *models.SearchResponse, start time.Time) *models.SearchResponse {
	resp.Total = len(resp.Results)
	resp.QueryTime = time.Since(start).Milliseconds()
	e.logger.Debug("search complete",
		zap.String("query", utils.Truncate(resp.Query, 80)),
		zap.Int("results", resp.Total),
		zap.Bool("reranked", resp.Reranked),
		zap.Int64("query_time_ms", resp.QueryTime))
	return resp
}
