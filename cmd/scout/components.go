package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/scout/internal/catalog"
	"github.com/hyperjump/scout/internal/config"
	"github.com/hyperjump/scout/internal/embedding"
	"github.com/hyperjump/scout/internal/indexer"
	"github.com/hyperjump/scout/internal/observability"
	"github.com/hyperjump/scout/internal/rerank"
	"github.com/hyperjump/scout/internal/search"
	"github.com/hyperjump/scout/internal/snapshot"
	"github.com/hyperjump/scout/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Embedder *embedding.Provider
	Index    vector.Index
	Snapshot *snapshot.Snapshot
	Catalog  *catalog.Catalog
	Reranker rerank.Reranker
	Engine   *search.Engine
	Indexer  *indexer.Indexer
	Tracing  *observability.TracerProvider
}

// Close releases everything in reverse order of construction. The memory backend writes
// itself to disk here.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	if c.Reranker != nil {
		errs = append(errs, rerank.Close(c.Reranker))
	}
	if c.Catalog != nil {
		errs = append(errs, c.Catalog.Close())
	}
	if c.Index != nil {
		errs = append(errs, c.Index.Close())
	}
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	if c.Tracing != nil {
		errs = append(errs, c.Tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// componentOptions selects the optional parts a command needs.
type componentOptions struct {
	rerank bool
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts componentOptions) (*Components, error) {
	c := &Components{}
	ready := false
	defer func() {
		if !ready {
			_ = c.Close(context.Background())
		}
	}()

	var err error
	c.Tracing, err = observability.InitTracing(ctx, &cfg.Tracing, version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	c.Embedder = embedding.NewProviderFromConfig(&cfg.Embedding, embedding.WithLogger(logger))
	if err = startEmbedder(c.Embedder, cfg.Embedding.Dimensions); err != nil {
		return nil, err
	}

	c.Index, err = openIndex(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err = c.Index.EnsureIndex(ctx, vector.SpecFromConfig(&cfg.Index, cfg.Embedding.Dimensions)); err != nil {
		return nil, fmt.Errorf("failed to ensure index %s: %w", cfg.Index.Name, err)
	}

	c.Snapshot, err = snapshot.Load(cfg.Storage.SnapshotPath)
	if err != nil {
		return nil, err
	}
	c.Catalog, err = catalog.Open(cfg.Storage.CatalogPath)
	if err != nil {
		return nil, err
	}

	engineOpts := []search.EngineOption{
		search.WithDescriptions(c.Catalog),
		search.WithProjectRoot(cfg.ProjectRoot),
		search.WithLimits(cfg.Search),
		search.WithLogger(logger),
	}
	if opts.rerank {
		c.Reranker, err = rerank.New(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize re-ranker: %w", err)
		}
		if c.Reranker != nil {
			engineOpts = append(engineOpts, search.WithReranker(c.Reranker, cfg.Rerank.Strategy))
		}
	}
	c.Engine = search.NewEngine(c.Embedder, c.Index, engineOpts...)
	c.Indexer = indexer.NewIndexer(c.Embedder, c.Index, c.Snapshot, indexer.OptionsFromConfig(cfg),
		indexer.WithLogger(logger))

	logger.Info("components initialized",
		zap.String("backend", cfg.Index.Backend),
		zap.String("index", cfg.Index.Name),
		zap.Int("snapshot_entries", c.Snapshot.Len()),
		zap.String("rerank", c.Engine.Strategy()),
		zap.Bool("tracing", c.Tracing.Enabled()))
	ready = true
	return c, nil
}

// startEmbedder builds the embedder now so missing or unloadable weights stop the command
// before any image or query is touched.
func startEmbedder(p *embedding.Provider, dimensions int) error {
	if _, err := p.Get(); err != nil {
		return err
	}
	if got := p.Dimensions(); got != dimensions {
		return fmt.Errorf("embedder produces %d-dimensional vectors but embedding.dimensions is %d", got, dimensions)
	}
	return nil
}

func openIndex(ctx context.Context, cfg *config.Config, logger *zap.Logger) (vector.Index, error) {
	idx, err := vector.New(ctx, &cfg.Index, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s index: %w", cfg.Index.Backend, err)
	}
	return idx, nil
}
