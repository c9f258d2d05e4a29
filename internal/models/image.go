// Package models defines core data structures for images, candidates, queries, and search results.
package models

// ImageMetadata is stored with every index entry and in the local snapshot.
type ImageMetadata struct {
	// Path is slash-separated and relative to the project root.
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// ImageRecord is an image ready to be written to the vector index.
type ImageRecord struct {
	ID       string        `json:"id"`
	Vector   []float32     `json:"-"`
	Metadata ImageMetadata `json:"metadata"`
}

// Candidate is a stage-1 hit being considered for re-ranking. Text and ImagePath are
// resolved lazily and may be empty; a re-ranker that needs one of them drops the candidate.
type Candidate struct {
	ID          string        `json:"id"`
	Score       float64       `json:"score"`
	Metadata    ImageMetadata `json:"metadata"`
	Text        string        `json:"text,omitempty"`
	ImagePath   string        `json:"-"`
	RerankScore float64       `json:"rerank_score,omitempty"`
}
