// Package indexer scans the image corpus, embeds new images and writes them to the vector
// index and the local metadata snapshot.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperjump/scout/internal/config"
	"github.com/hyperjump/scout/internal/embedding"
	"github.com/hyperjump/scout/internal/fileid"
	"github.com/hyperjump/scout/internal/models"
	"github.com/hyperjump/scout/internal/snapshot"
	"github.com/hyperjump/scout/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stats summarizes an ingestion run. For a run that was not cancelled,
// Processed + Skipped + Failed + UpsertFailed == Total.
type Stats struct {
	Total        int           `json:"total"`
	Processed    int           `json:"processed"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	UpsertFailed int           `json:"upsert_failed"`
	Batches      int           `json:"batches"`
	Pruned       int           `json:"pruned,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

// Options configures batching and the corpus layout.
type Options struct {
	// ProjectRoot is the directory identities are computed against.
	ProjectRoot     string
	Extensions      []string
	BatchSize       int
	Workers         int
	UpsertBatchSize int
	FetchBatchSize  int
}

// OptionsFromConfig returns the ingestion options for cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ProjectRoot:     cfg.ProjectRoot,
		Extensions:      cfg.Corpus.Extensions,
		BatchSize:       cfg.Corpus.BatchSize,
		Workers:         cfg.Corpus.Workers,
		UpsertBatchSize: cfg.Index.UpsertBatchSize,
		FetchBatchSize:  cfg.Index.FetchBatchSize,
	}
}

// Indexer writes image embeddings to the vector index and keeps the snapshot in step:
// an identity is recorded in the snapshot only after its upsert succeeded.
type Indexer struct {
	embedder embedding.Embedder
	index    vector.Index
	snapshot *snapshot.Snapshot
	opts     Options
	progress vector.ProgressFunc
	logger   *zap.Logger

	mu sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for progress and per-file failures.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithProgress sets a callback for batch progress lines.
func WithProgress(fn vector.ProgressFunc) IndexerOption {
	return func(idx *Indexer) { idx.progress = fn }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(embedder embedding.Embedder, index vector.Index, snap *snapshot.Snapshot, opts Options, options ...IndexerOption) *Indexer {
	if opts.ProjectRoot == "" {
		opts.ProjectRoot = "."
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	idx := &Indexer{
		embedder: embedder,
		index:    index,
		snapshot: snap,
		opts:     opts,
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		opt(idx)
	}
	if idx.progress == nil {
		idx.progress = func(msg string) { idx.logger.Info(msg) }
	}
	return idx
}

// Snapshot returns the snapshot the indexer writes to.
func (idx *Indexer) Snapshot() *snapshot.Snapshot {
	return idx.snapshot
}

type scanned struct {
	path string
	id   string
	meta models.ImageMetadata
}

// Ingest scans dir and ingests every image not already in the index. Batches run in
// enumeration order; within a batch, images are embedded in parallel. The snapshot is
// saved at the end even when nothing changed. On cancellation the partial stats are
// returned with the context error and committed batches are still saved.
func (idx *Indexer) Ingest(ctx context.Context, dir string) (*Stats, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	began := time.Now()
	stats := &Stats{}
	paths, err := ScanImages(dir, idx.opts.Extensions)
	if err != nil {
		return stats, err
	}
	stats.Total = len(paths)
	idx.logger.Info("scanned image directory", zap.String("dir", dir), zap.Int("images", len(paths)))

	committed := make(map[string]models.ImageMetadata)
	var runErr error
	for start := 0; start < len(paths); start += idx.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		end := min(start+idx.opts.BatchSize, len(paths))
		stats.Batches++
		if err := idx.ingestBatch(ctx, paths[start:end], stats, committed); err != nil {
			runErr = err
			break
		}
	}

	idx.snapshot.Merge(committed)
	if err := idx.snapshot.Save(); err != nil {
		return stats, errors.Join(runErr, err)
	}
	stats.Duration = time.Since(began)
	idx.logger.Info("ingestion finished",
		zap.Int("total", stats.Total),
		zap.Int("processed", stats.Processed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("upsert_failed", stats.UpsertFailed),
		zap.Duration("elapsed", stats.Duration))
	return stats, runErr
}

// ingestBatch processes one scan batch. It returns an error only for cancellation.
func (idx *Indexer) ingestBatch(ctx context.Context, paths []string, stats *Stats, committed map[string]models.ImageMetadata) error {
	items := make([]scanned, 0, len(paths))
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		item, err := idx.identify(p)
		if err != nil {
			idx.logger.Warn("skipping image", zap.String("path", p), zap.Error(err))
			stats.Failed++
			continue
		}
		items = append(items, item)
		ids = append(ids, item.id)
	}

	existing, err := vector.FetchExistingBatched(ctx, idx.index, ids, idx.opts.FetchBatchSize)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		idx.logger.Warn("batch existence check failed, batch not ingested",
			zap.Int("batch", stats.Batches), zap.Int("images", len(items)), zap.Error(err))
		stats.Failed += len(items)
		return nil
	}

	todo := make([]scanned, 0, len(items))
	for _, item := range items {
		if _, ok := existing[item.id]; ok {
			stats.Skipped++
			// Known entries keep their recorded metadata; only a lost entry is rebuilt.
			if _, known := idx.snapshot.Get(item.id); !known {
				committed[item.id] = item.meta
			}
			continue
		}
		todo = append(todo, item)
	}
	if len(todo) == 0 {
		return nil
	}

	vectors := make([][]float32, len(todo))
	g := new(errgroup.Group)
	g.SetLimit(idx.opts.Workers)
	for i, item := range todo {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			vec, err := idx.embedder.EmbedImage(ctx, item.path)
			if err != nil {
				idx.logger.Warn("failed to embed image", zap.String("path", item.path), zap.Error(err))
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	entries := make([]vector.Entry, 0, len(todo))
	for i, item := range todo {
		if vectors[i] == nil {
			stats.Failed++
			continue
		}
		entries = append(entries, vector.Entry{ID: item.id, Vector: vectors[i], Metadata: item.meta})
	}
	if len(entries) == 0 {
		return nil
	}

	res, err := vector.UpsertBatches(ctx, idx.index, entries, idx.opts.UpsertBatchSize, idx.progress)
	for _, f := range res.Failed {
		if f.Err != nil && !errors.Is(f.Err, context.Canceled) {
			idx.logger.Error("upsert failed, entries not recorded",
				zap.Int("upsert_batch", f.Batch), zap.Int("entries", len(f.IDs)), zap.Error(f.Err))
		}
	}
	for _, e := range res.Committed {
		committed[e.ID] = e.Metadata
	}
	stats.Processed += len(res.Committed)
	stats.UpsertFailed += res.FailedCount()
	return err
}

func (idx *Indexer) identify(path string) (scanned, error) {
	rel, err := fileid.RelPath(idx.opts.ProjectRoot, path)
	if err != nil {
		return scanned{}, err
	}
	return scanned{
		path: path,
		id:   fileid.ImageID(rel),
		meta: models.ImageMetadata{Path: rel, Filename: filepath.Base(path)},
	}, nil
}

// IngestFile ingests a single image, used for incremental updates. Identity, skip and
// snapshot rules are the same as for Ingest.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (*Stats, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	stats := &Stats{Total: 1, Batches: 1}
	if !extensionAllowed(filepath.Ext(path), idx.opts.Extensions) {
		return stats, fmt.Errorf("extension %q not in allowed list", filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return stats, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return stats, fmt.Errorf("not a regular file: %s", path)
	}
	committed := make(map[string]models.ImageMetadata)
	runErr := idx.ingestBatch(ctx, []string{path}, stats, committed)
	if len(committed) > 0 {
		idx.snapshot.Merge(committed)
		if err := idx.snapshot.Save(); err != nil {
			return stats, errors.Join(runErr, err)
		}
	}
	if runErr == nil && stats.Processed == 0 && stats.Skipped == 0 {
		return stats, fmt.Errorf("image %s was not ingested", path)
	}
	idx.logger.Debug("ingested file",
		zap.String("path", path), zap.Int("processed", stats.Processed), zap.Int("skipped", stats.Skipped))
	return stats, runErr
}

// RemoveFile deletes the entry for path from the index and the snapshot. It reports
// whether path was indexed. The file itself does not need to exist.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	item, err := idx.identify(path)
	if err != nil {
		return false, err
	}
	if _, ok := idx.snapshot.Get(item.id); !ok {
		return false, nil
	}
	if err := idx.index.Delete(ctx, []string{item.id}); err != nil {
		return false, fmt.Errorf("failed to delete %s from index: %w", item.meta.Path, err)
	}
	idx.snapshot.Remove(item.id)
	if err := idx.snapshot.Save(); err != nil {
		return true, err
	}
	idx.logger.Debug("removed file", zap.String("path", path), zap.String("id", item.id))
	return true, nil
}

// Prune removes snapshot entries whose image no longer exists under the project root and
// deletes them from the index. Entries whose index deletion fails stay in the snapshot.
func (idx *Indexer) Prune(ctx context.Context) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var orphans []string
	for id, meta := range idx.snapshot.Entries() {
		p := filepath.Join(idx.opts.ProjectRoot, filepath.FromSlash(meta.Path))
		if _, err := os.Stat(p); os.IsNotExist(err) {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}
	batch := idx.opts.UpsertBatchSize
	if batch <= 0 {
		batch = 100
	}
	removed := 0
	var firstErr error
	for start := 0; start < len(orphans); start += batch {
		end := min(start+batch, len(orphans))
		if err := idx.index.Delete(ctx, orphans[start:end]); err != nil {
			idx.logger.Warn("failed to delete orphaned entries", zap.Int("entries", end-start), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		idx.snapshot.Remove(orphans[start:end]...)
		removed += end - start
	}
	if err := idx.snapshot.Save(); err != nil {
		return removed, errors.Join(firstErr, err)
	}
	idx.logger.Info("pruned orphaned entries", zap.Int("removed", removed))
	return removed, firstErr
}
