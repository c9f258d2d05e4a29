package models

// SearchResult is a single ranked image.
type SearchResult struct {
	ID       string        `json:"id"`
	Score    float64       `json:"score"`
	Metadata ImageMetadata `json:"metadata"`
	Rank     int           `json:"rank"`
	// Stage1Score is the embedding similarity; equal to Score when the result was not re-ranked.
	Stage1Score float64 `json:"stage1_score"`
	Reranked    bool    `json:"reranked"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query    string          `json:"query"`
	Results  []*SearchResult `json:"results"`
	Total    int             `json:"total"`
	Reranked bool            `json:"reranked"`
	// Strategy names the re-ranker that ordered Results, empty when stage-1 order was kept.
	Strategy  string `json:"strategy,omitempty"`
	QueryTime int64  `json:"query_time_ms"`
}
