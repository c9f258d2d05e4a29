package vector

import (
	"context"
	"errors"
	"sync"
)

// flakyIndex wraps a MemoryIndex and fails chosen upsert calls.
type flakyIndex struct {
	*MemoryIndex
	mu        sync.Mutex
	calls     int
	failCalls map[int]error
	batches   [][]string
}

func newFlakyIndex(fail map[int]error) *flakyIndex {
	m, _ := NewMemoryIndex("")
	return &flakyIndex{MemoryIndex: m, failCalls: fail}
}

func (f *flakyIndex) Upsert(ctx context.Context, entries []Entry) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.batches = append(f.batches, entryIDs(entries))
	err := f.failCalls[call]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryIndex.Upsert(ctx, entries)
}

var errService = errors.New("service unavailable")
