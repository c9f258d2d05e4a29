package vector

import (
	"context"
	"fmt"
)

// ProgressFunc receives a progress line after each committed batch.
type ProgressFunc func(msg string)

// BatchFailure records one batch whose upsert failed.
type BatchFailure struct {
	Batch int
	IDs   []string
	Err   error
}

// BatchResult reports which entries were committed. A failed batch does not stop the
// remaining batches.
type BatchResult struct {
	Committed []Entry
	Failed    []BatchFailure
	Batches   int
}

// FailedCount returns the number of entries in failed batches.
func (r *BatchResult) FailedCount() int {
	n := 0
	for _, f := range r.Failed {
		n += len(f.IDs)
	}
	return n
}

// Err returns nil when every batch committed, otherwise the first failure.
func (r *BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d batches failed: %w", len(r.Failed), r.Batches, r.Failed[0].Err)
}

// UpsertBatches splits entries into batches of batchSize and upserts them in order.
// progress may be nil. The returned error is non-nil only when ctx is cancelled; per-batch
// failures are reported in the result.
func UpsertBatches(ctx context.Context, idx Index, entries []Entry, batchSize int, progress ProgressFunc) (*BatchResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	total := (len(entries) + batchSize - 1) / batchSize
	res := &BatchResult{Batches: total}
	for b := 0; b < total; b++ {
		if err := ctx.Err(); err != nil {
			for k, rest := range splitBatches(entries[b*batchSize:], batchSize) {
				res.Failed = append(res.Failed, BatchFailure{Batch: b + k + 1, IDs: entryIDs(rest), Err: err})
			}
			return res, err
		}
		end := min((b+1)*batchSize, len(entries))
		batch := entries[b*batchSize : end]
		if err := idx.Upsert(ctx, batch); err != nil {
			res.Failed = append(res.Failed, BatchFailure{Batch: b + 1, IDs: entryIDs(batch), Err: err})
			continue
		}
		res.Committed = append(res.Committed, batch...)
		if progress != nil {
			progress(fmt.Sprintf("Upserted batch %d/%d", b+1, total))
		}
	}
	return res, nil
}

// FetchExistingBatched calls FetchExisting in chunks of batchSize and merges the results.
func FetchExistingBatched(ctx context.Context, idx Index, ids []string, batchSize int) (map[string]struct{}, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	found := make(map[string]struct{})
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		part, err := idx.FetchExisting(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		for id := range part {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func splitBatches(entries []Entry, size int) [][]Entry {
	var out [][]Entry
	for len(entries) > size {
		out = append(out, entries[:size])
		entries = entries[size:]
	}
	if len(entries) > 0 {
		out = append(out, entries)
	}
	return out
}

func entryIDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
