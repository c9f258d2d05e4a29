package models

import (
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name        string
		query       *SearchQuery
		wantErr     bool
		wantTopK    int
		wantStage1K int
		wantFinalK  int
	}{
		{"empty query", &SearchQuery{Query: ""}, true, 0, 0, 0},
		{"blank query", &SearchQuery{Query: "   "}, true, 0, 0, 0},
		{"defaults", &SearchQuery{Query: "a red car"}, false, DefaultTopK, DefaultStage1K, DefaultFinalK},
		{"caps limits at max", &SearchQuery{Query: "x", TopK: 500, Stage1K: 500, FinalK: 500}, false, MaxLimit, MaxLimit, MaxLimit},
		{"stage1 raised to final", &SearchQuery{Query: "x", Stage1K: 5, FinalK: 20}, false, DefaultTopK, 20, 20},
		{"keeps explicit values", &SearchQuery{Query: "x", TopK: 3, Stage1K: 30, FinalK: 4}, false, 3, 30, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.query.TopK != tt.wantTopK || tt.query.Stage1K != tt.wantStage1K || tt.query.FinalK != tt.wantFinalK {
				t.Errorf("got top_k=%d stage1_k=%d final_k=%d, want %d %d %d",
					tt.query.TopK, tt.query.Stage1K, tt.query.FinalK, tt.wantTopK, tt.wantStage1K, tt.wantFinalK)
			}
		})
	}
}

func TestSearchQuery_ValidateTrimsQuery(t *testing.T) {
	q := &SearchQuery{Query: "  dog on a beach \n"}
	if err := q.Validate(); err != nil {
		t.Fatal(err)
	}
	if q.Query != "dog on a beach" {
		t.Errorf("query = %q", q.Query)
	}
}
