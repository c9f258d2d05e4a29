package vector

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedIndex throttles calls to the wrapped index with a token bucket.
type RateLimitedIndex struct {
	Index
	limiter *rate.Limiter
}

// RateLimited wraps idx so that at most rps calls per second reach it. rps <= 0 returns idx.
func RateLimited(idx Index, rps float64) Index {
	if rps <= 0 {
		return idx
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedIndex{Index: idx, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimitedIndex) wait(ctx context.Context, op string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return transient(op, err)
	}
	return nil
}

func (r *RateLimitedIndex) Upsert(ctx context.Context, entries []Entry) error {
	if err := r.wait(ctx, "upsert"); err != nil {
		return err
	}
	return r.Index.Upsert(ctx, entries)
}

func (r *RateLimitedIndex) Query(ctx context.Context, vec []float32, topK int) ([]Match, error) {
	if err := r.wait(ctx, "query"); err != nil {
		return nil, err
	}
	return r.Index.Query(ctx, vec, topK)
}

func (r *RateLimitedIndex) FetchExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if err := r.wait(ctx, "fetch"); err != nil {
		return nil, err
	}
	return r.Index.FetchExisting(ctx, ids)
}

func (r *RateLimitedIndex) Delete(ctx context.Context, ids []string) error {
	if err := r.wait(ctx, "delete"); err != nil {
		return err
	}
	return r.Index.Delete(ctx, ids)
}
