package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/scout/internal/indexer"
)

var imageExts = []string{".jpg", ".jpeg", ".png"}

// recorder is a Handler that records the paths it receives.
type recorder struct {
	mu       sync.Mutex
	ingested []string
	removed  []string
	fail     bool
}

func (r *recorder) IngestFile(_ context.Context, path string) (*indexer.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return &indexer.Stats{Total: 1}, errors.New("embedding failed")
	}
	if _, err := os.Stat(path); err != nil {
		return &indexer.Stats{Total: 1}, fmt.Errorf("stat file: %w", err)
	}
	r.ingested = append(r.ingested, path)
	return &indexer.Stats{Total: 1, Processed: 1}, nil
}

func (r *recorder) RemoveFile(_ context.Context, path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
	return true, nil
}

func (r *recorder) ingestedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return baseNames(r.ingested)
}

func (r *recorder) removedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return baseNames(r.removed)
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not really an image"), 0600); err != nil {
		t.Fatal(err)
	}
}

func startWatcher(t *testing.T, h Handler, roots []string, recursive bool) *Watcher {
	t.Helper()
	w := New(h, roots, imageExts, recursive, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWatcher_IngestsNewImages(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := startWatcher(t, rec, []string{dir}, true)

	writeFile(t, filepath.Join(dir, "cat.jpg"))
	writeFile(t, filepath.Join(dir, "notes.txt"))

	waitFor(t, "cat.jpg to be ingested", func() bool {
		return contains(rec.ingestedNames(), "cat.jpg")
	})
	time.Sleep(150 * time.Millisecond)
	if got := rec.ingestedNames(); contains(got, "notes.txt") {
		t.Errorf("non-image ingested: %v", got)
	}
	if c := w.Counters(); c.Ingested < 1 {
		t.Errorf("counters = %+v", c)
	}
}

func TestWatcher_DebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, rec, []string{dir}, true)

	path := filepath.Join(dir, "dog.png")
	for i := 0; i < 5; i++ {
		writeFile(t, path)
	}
	waitFor(t, "dog.png to be ingested", func() bool {
		return len(rec.ingestedNames()) > 0
	})
	time.Sleep(200 * time.Millisecond)
	if got := rec.ingestedNames(); len(got) != 1 {
		t.Errorf("ingested %v, want a single call", got)
	}
}

func TestWatcher_RemovesDeletedImages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.jpeg")
	writeFile(t, path)
	rec := &recorder{}
	w := startWatcher(t, rec, []string{dir}, true)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "old.jpeg to be removed", func() bool {
		return contains(rec.removedNames(), "old.jpeg")
	})
	if c := w.Counters(); c.Removed != 1 {
		t.Errorf("counters = %+v", c)
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, rec, []string{dir}, true)

	nested := filepath.Join(dir, "trip", "day1")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(nested, "beach.jpg"))

	waitFor(t, "beach.jpg to be ingested", func() bool {
		return contains(rec.ingestedNames(), "beach.jpg")
	})
}

func TestWatcher_FailuresAreCounted(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{fail: true}
	w := startWatcher(t, rec, []string{dir}, true)

	writeFile(t, filepath.Join(dir, "broken.png"))
	waitFor(t, "failure to be counted", func() bool {
		return w.Counters().Failed == 1
	})
}

func TestWatcher_Sync(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"))
	writeFile(t, filepath.Join(dir, "sub", "b.png"))
	writeFile(t, filepath.Join(dir, "readme.md"))

	tests := []struct {
		name      string
		recursive bool
		want      []string
	}{
		{"recursive", true, []string{"a.jpg", "b.png"}},
		{"top level only", false, []string{"a.jpg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			w := New(rec, []string{dir}, imageExts, tt.recursive)
			w.Sync()
			got := rec.ingestedNames()
			if len(got) != len(tt.want) {
				t.Fatalf("ingested %v, want %v", got, tt.want)
			}
			for _, name := range tt.want {
				if !contains(got, name) {
					t.Errorf("ingested %v, missing %s", got, name)
				}
			}
		})
	}
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	extra := filepath.Join(t.TempDir(), "extra")
	writeFile(t, filepath.Join(extra, "x.jpg"))
	rec := &recorder{}
	w := startWatcher(t, rec, nil, true)

	if err := w.AddDirectory(extra, true); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(extra, true); err != nil {
		t.Fatal(err)
	}
	if dirs := w.Directories(); len(dirs) != 1 || dirs[0] != filepath.Clean(extra) {
		t.Errorf("Directories() = %v", dirs)
	}
	waitFor(t, "existing image to be synced", func() bool {
		return contains(rec.ingestedNames(), "x.jpg")
	})

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := w.RemoveDirectory(extra); err != nil {
		t.Fatal(err)
	}
	if dirs := w.Directories(); len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("after remove: %v", dirs)
	}
	if err := w.RemoveDirectory(filepath.Join(dir, "never-added")); err != nil {
		t.Errorf("removing an unknown directory: %v", err)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	startWatcher(t, &recorder{}, []string{root}, true)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Errorf("root not created: %v", err)
	}
}

func TestWatcher_IgnoresVanishedFiles(t *testing.T) {
	rec := &recorder{}
	w := New(rec, nil, imageExts, true)
	w.ingest(filepath.Join(t.TempDir(), "gone.jpg"))
	if c := w.Counters(); c.Failed != 0 {
		t.Errorf("vanished file counted as failure: %+v", c)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path string
		exts []string
		want bool
	}{
		{"/a/b.jpg", imageExts, true},
		{"/a/b.JPG", imageExts, true},
		{"/a/b.png", []string{"png"}, true},
		{"/a/b.gif", imageExts, false},
		{"/a/jpg", imageExts, false},
		{"/a/b", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.exts); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.exts, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.jpg", true},
		{"/tmp/a", "/tmp/ab/c.jpg", false},
		{"/tmp/a", "/tmp/b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
