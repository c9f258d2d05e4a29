package models

import (
	"fmt"
	"strings"
)

const (
	DefaultTopK    = 12
	DefaultStage1K = 50
	DefaultFinalK  = 10
	MaxLimit       = 100
)

// SearchQuery is a text-to-image search request.
type SearchQuery struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
	// Rerank requests the two-stage pipeline: Stage1K candidates re-scored down to FinalK.
	Rerank  bool `json:"rerank,omitempty"`
	Stage1K int  `json:"stage1_k,omitempty"`
	FinalK  int  `json:"final_k,omitempty"`
}

// Validate ensures the search query has valid fields and sets defaults.
// Returns an error if the query is blank; otherwise clamps every limit to [1, MaxLimit].
func (q *SearchQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	q.TopK = clampLimit(q.TopK, DefaultTopK)
	q.Stage1K = clampLimit(q.Stage1K, DefaultStage1K)
	q.FinalK = clampLimit(q.FinalK, DefaultFinalK)
	if q.FinalK > q.Stage1K {
		q.Stage1K = q.FinalK
	}
	return nil
}

func clampLimit(v, def int) int {
	if v <= 0 {
		return def
	}
	if v > MaxLimit {
		return MaxLimit
	}
	return v
}
