package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/scout/internal/models"
	"github.com/hyperjump/scout/pkg/utils"
)

// MemoryIndex is an in-process index using brute-force cosine search. It stands in for the
// remote service in tests and local development and can persist itself to a file.
type MemoryIndex struct {
	path string

	mu         sync.RWMutex
	name       string
	dimensions int
	ids        []string
	vectors    [][]float32
	metadata   []models.ImageMetadata
	pos        map[string]int
}

// NewMemoryIndex creates an empty in-memory index. When path is non-empty the index is
// loaded from it (a missing file is not an error) and Close writes it back.
func NewMemoryIndex(path string) (*MemoryIndex, error) {
	m := &MemoryIndex{path: path, pos: make(map[string]int)}
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

// EnsureIndex fixes the index name and dimension. An existing index with a different
// dimension is a configuration error.
func (m *MemoryIndex) EnsureIndex(ctx context.Context, spec IndexSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrConfig)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions != 0 && m.dimensions != spec.Dimension {
		return fmt.Errorf("%w: index %q has dimension %d, want %d", ErrConfig, spec.Name, m.dimensions, spec.Dimension)
	}
	m.name = spec.Name
	m.dimensions = spec.Dimension
	return nil
}

// Upsert inserts or overwrites entries by ID.
func (m *MemoryIndex) Upsert(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return transient("upsert", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if m.dimensions == 0 {
			m.dimensions = len(e.Vector)
		}
		if len(e.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(e.Vector), m.dimensions)
		}
	}
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		if i, ok := m.pos[e.ID]; ok {
			m.vectors[i] = vec
			m.metadata[i] = e.Metadata
			continue
		}
		m.pos[e.ID] = len(m.ids)
		m.ids = append(m.ids, e.ID)
		m.vectors = append(m.vectors, vec)
		m.metadata = append(m.metadata, e.Metadata)
	}
	return nil
}

// Query returns the top-k entries by cosine similarity, best first.
func (m *MemoryIndex) Query(ctx context.Context, vec []float32, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("query", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	if len(vec) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vec), m.dimensions)
	}
	qn := utils.L2Norm(vec)
	matches := make([]Match, len(m.ids))
	for i, v := range m.vectors {
		score := 0.0
		if denom := qn * utils.L2Norm(v); denom > 0 {
			score = utils.Dot(vec, v) / denom
		}
		matches[i] = Match{ID: m.ids[i], Score: score, Metadata: m.metadata[i]}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > len(matches) {
		topK = len(matches)
	}
	return matches[:topK], nil
}

// FetchExisting returns the ids that are present.
func (m *MemoryIndex) FetchExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("fetch", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	found := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := m.pos[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

// Delete removes entries by ID, rebuilding the slices.
func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i, id := range m.ids {
		if remove[id] {
			delete(m.pos, id)
			continue
		}
		m.ids[n], m.vectors[n], m.metadata[n] = id, m.vectors[i], m.metadata[i]
		m.pos[id] = n
		n++
	}
	m.ids, m.vectors, m.metadata = m.ids[:n], m.vectors[:n], m.metadata[:n]
	return nil
}

// DeleteIndex drops every entry and forgets the dimension.
func (m *MemoryIndex) DeleteIndex(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids, m.vectors, m.metadata = nil, nil, nil
	m.pos = make(map[string]int)
	m.dimensions = 0
	if m.path != "" {
		if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove index file: %w", err)
		}
	}
	return nil
}

// Size returns the number of entries.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close persists the index when it was opened with a path.
func (m *MemoryIndex) Close() error {
	return m.Save(m.path)
}

// Save persists the index to path. Format, little endian: dimension (4), n (4), then per
// entry: id, path and filename as length-prefixed strings followed by dimension*4 vector bytes.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range m.ids {
		for _, s := range []string{id, m.metadata[i].Path, m.metadata[i].Filename} {
			if err := writeString(w, s); err != nil {
				return err
			}
		}
		if _, err := w.Write(float32SliceToBytes(m.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return w.Flush()
}

// Load replaces the contents with the index stored at path. A missing file leaves the
// index unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	ids := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	metadata := make([]models.ImageMetadata, 0, n)
	pos := make(map[string]int, n)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		var fields [3]string
		for j := range fields {
			if fields[j], err = readString(r); err != nil {
				return err
			}
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		pos[fields[0]] = len(ids)
		ids = append(ids, fields[0])
		vectors = append(vectors, bytesToFloat32Slice(buf))
		metadata = append(metadata, models.ImageMetadata{Path: fields[1], Filename: fields[2]})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimensions = int(dim)
	m.ids, m.vectors, m.metadata, m.pos = ids, vectors, metadata, pos
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return fmt.Errorf("write string len: %w", err)
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("write string: %w", err)
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("read string len: %w", err)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read string: %w", err)
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
