// Package snapshot keeps the local copy of image metadata for everything that has been
// upserted to the vector index, keyed by image identity.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/scout/internal/models"
)

// Snapshot is an in-memory view of the metadata file. It is safe for concurrent use.
type Snapshot struct {
	path string

	mu      sync.RWMutex
	entries map[string]models.ImageMetadata
}

// Load reads the snapshot at path. A missing file yields an empty snapshot.
func Load(path string) (*Snapshot, error) {
	s := &Snapshot{path: path, entries: make(map[string]models.ImageMetadata)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	if s.entries == nil {
		s.entries = make(map[string]models.ImageMetadata)
	}
	return s, nil
}

// Path returns the file the snapshot is saved to.
func (s *Snapshot) Path() string {
	return s.path
}

// Merge adds entries, replacing existing ones with the same identity.
func (s *Snapshot) Merge(entries map[string]models.ImageMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, meta := range entries {
		s.entries[id] = meta
	}
}

// Put adds or replaces one entry.
func (s *Snapshot) Put(id string, meta models.ImageMetadata) {
	s.mu.Lock()
	s.entries[id] = meta
	s.mu.Unlock()
}

// Remove deletes entries by identity.
func (s *Snapshot) Remove(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
}

// Get returns the metadata for id.
func (s *Snapshot) Get(id string) (models.ImageMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.entries[id]
	return meta, ok
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IDs returns all identities in sorted order.
func (s *Snapshot) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entries returns a copy of all entries.
func (s *Snapshot) Entries() map[string]models.ImageMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.ImageMetadata, len(s.entries))
	for id, meta := range s.entries {
		out[id] = meta
	}
	return out
}

// Save rewrites the whole file with 4-space indentation. The file is written to a
// temporary name first and renamed into place.
func (s *Snapshot) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.entries, "", "    ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
