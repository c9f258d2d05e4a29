// Package vector is the client side of the approximate nearest-neighbour index that stores
// image embeddings. Backends implement Index; helpers in this package add batching,
// readiness polling, rate limiting and retry on top of any backend.
package vector

import (
	"context"

	"github.com/hyperjump/scout/internal/models"
)

// Metric is the similarity measure the index is created with.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dotproduct"
)

// IndexSpec describes the index to create. Cloud and Region are placement hints; backends
// that do not manage placement ignore them.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    Metric
	Cloud     string
	Region    string
}

// Entry is one record to store: identity, embedding and metadata.
type Entry struct {
	ID       string
	Vector   []float32
	Metadata models.ImageMetadata
}

// Match is one query hit.
type Match struct {
	ID       string
	Score    float64
	Metadata models.ImageMetadata
}

// Index is a remote or local vector index. Upsert is a single service call and must be
// given at most one batch; use UpsertBatches for larger inputs. Upsert overwrites entries
// with the same ID.
type Index interface {
	EnsureIndex(ctx context.Context, spec IndexSpec) error
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vec []float32, topK int) ([]Match, error)
	// FetchExisting returns the subset of ids present in the index. Missing ids are not an error.
	FetchExisting(ctx context.Context, ids []string) (map[string]struct{}, error)
	Delete(ctx context.Context, ids []string) error
	DeleteIndex(ctx context.Context, name string) error
	Close() error
}

// Sizer is implemented by indexes that can report their entry count cheaply.
type Sizer interface {
	Size() int
}
