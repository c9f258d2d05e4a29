// Package watcher keeps the index in step with image directories on disk. New and changed
// images are ingested after a debounce delay; deleted or renamed images are removed.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/scout/internal/indexer"
	"github.com/hyperjump/scout/pkg/utils"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Handler applies file changes to the index. *indexer.Indexer implements it.
type Handler interface {
	IngestFile(ctx context.Context, path string) (*indexer.Stats, error)
	RemoveFile(ctx context.Context, path string) (bool, error)
}

// Counters are running totals of the changes a watcher has applied.
type Counters struct {
	Ingested int64 `json:"ingested"`
	Skipped  int64 `json:"skipped"`
	Removed  int64 `json:"removed"`
	Failed   int64 `json:"failed"`
}

// Watcher watches image directories and forwards changes to a Handler.
type Watcher struct {
	handler   Handler
	exts      []string
	recursive bool
	debounce  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	ctx     context.Context
	roots   []string
	watched map[string][]string // root -> directories registered with fsnotify
	pending map[string]*time.Timer
	done    chan struct{}
	stop    sync.Once

	ingested atomic.Int64
	skipped  atomic.Int64
	removed  atomic.Int64
	failed   atomic.Int64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over roots. Only files whose extension is in exts are handled;
// an empty list accepts every file.
func New(handler Handler, roots, exts []string, recursive bool, opts ...Option) *Watcher {
	w := &Watcher{
		handler:   handler,
		exts:      exts,
		recursive: recursive,
		debounce:  defaultDebounce,
		roots:     make([]string, 0, len(roots)),
		watched:   make(map[string][]string),
		pending:   make(map[string]*time.Timer),
		done:      make(chan struct{}),
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			w.roots = append(w.roots, filepath.Clean(abs))
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Start registers the roots and processes events until ctx is cancelled or Stop is called.
// Missing roots are created. Handler calls use ctx.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.ctx = ctx
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			return err
		}
	}
	w.logger.Info("watching directories",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.exts),
		zap.Bool("recursive", w.recursive))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	root, ok := w.rootOf(path)
	if !ok {
		return
	}
	w.logger.Debug("file event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.cancel(path)
		if w.isImage(path) {
			w.remove(path)
		}
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			if w.recursive {
				w.addSubdirectory(root, path)
			}
			return
		}
		if w.isImage(path) {
			w.schedule(path)
		}
	}
}

// addSubdirectory watches a directory created under root and ingests the images already in
// it, since files copied in with the directory produce no events of their own.
func (w *Watcher) addSubdirectory(root, dir string) {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			w.logger.Warn("failed to watch directory", zap.String("path", p), zap.Error(err))
			return nil
		}
		w.watched[root] = append(w.watched[root], p)
		return nil
	})
	w.mu.Unlock()
	w.syncDirectory(dir)
}

func (w *Watcher) rootOf(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, root := range w.roots {
		if inDir(root, path) {
			return root, true
		}
	}
	return "", false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) isImage(path string) bool {
	return matchExtension(path, w.exts)
}

func matchExtension(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ingest(path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}

func (w *Watcher) ingest(path string) {
	stats, err := w.handler.IngestFile(w.context(), path)
	if err != nil {
		// The file was deleted again before the debounce fired.
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		w.failed.Add(1)
		w.logger.Warn("failed to ingest image", zap.String("path", path), zap.Error(err))
		return
	}
	w.ingested.Add(int64(stats.Processed))
	w.skipped.Add(int64(stats.Skipped))
	if stats.Processed > 0 {
		w.logger.Info("ingested image", zap.String("path", path))
	}
}

func (w *Watcher) remove(path string) {
	removed, err := w.handler.RemoveFile(w.context(), path)
	if err != nil {
		w.failed.Add(1)
		w.logger.Warn("failed to remove image", zap.String("path", path), zap.Error(err))
		return
	}
	if removed {
		w.removed.Add(1)
		w.logger.Info("removed image", zap.String("path", path))
	}
}

// AddDirectory starts watching root. When syncExisting is set the images already under
// root are ingested in the background.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.roots {
		if r == abs {
			return nil
		}
	}
	if w.fsw != nil {
		if err := w.addRootLocked(abs); err != nil {
			return err
		}
	}
	w.roots = append(w.roots, abs)
	w.logger.Info("watch directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting && w.fsw != nil {
		go w.syncDirectory(abs)
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !w.recursive {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
		w.watched[root] = []string{root}
		return nil
	}
	var dirs []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return err
		}
		dirs = append(dirs, p)
		return nil
	})
	if err != nil {
		for _, d := range dirs {
			_ = w.fsw.Remove(d)
		}
		return err
	}
	w.watched[root] = dirs
	return nil
}

// RemoveDirectory stops watching root. Images already ingested from it stay indexed.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	i := -1
	for j, r := range w.roots {
		if r == abs {
			i = j
			break
		}
	}
	if i < 0 {
		return nil
	}
	if w.fsw != nil {
		for _, d := range w.watched[abs] {
			_ = w.fsw.Remove(d)
		}
	}
	delete(w.watched, abs)
	for path, t := range w.pending {
		if inDir(abs, path) {
			t.Stop()
			delete(w.pending, path)
		}
	}
	w.roots = append(w.roots[:i], w.roots[i+1:]...)
	w.logger.Info("watch directory removed", zap.String("path", abs))
	return nil
}

// Directories returns the watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Sync ingests the images already present under every root. Call it after Start to catch
// up with changes made while nothing was watching.
func (w *Watcher) Sync() {
	for _, root := range w.Directories() {
		w.syncDirectory(root)
	}
}

func (w *Watcher) syncDirectory(dir string) {
	w.logger.Debug("syncing directory", zap.String("path", dir))
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if w.context().Err() != nil {
			return filepath.SkipAll
		}
		if w.isImage(p) {
			w.ingest(p)
		}
		return nil
	})
}

// Counters returns the totals applied so far.
func (w *Watcher) Counters() Counters {
	return Counters{
		Ingested: w.ingested.Load(),
		Skipped:  w.skipped.Load(),
		Removed:  w.removed.Load(),
		Failed:   w.failed.Load(),
	}
}

// Stop cancels pending ingestions and releases the fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
		w.fsw = nil
	}
	w.mu.Unlock()
	w.stop.Do(func() { close(w.done) })
}
