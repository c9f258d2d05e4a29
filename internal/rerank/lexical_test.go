package rerank

import (
	"context"
	"testing"
)

func TestLexicalScorer_ScorePair(t *testing.T) {
	s := NewLexicalScorer()
	tests := []struct {
		name  string
		query string
		text  string
		want  float64
	}{
		{"phrase", `"red car"`, "A red car parked by the sea", phraseMatchScore},
		{"all words in order", "red car", "a red vintage car", allWordsInOrder},
		{"all words scattered", "car red", "a red vintage car", scatteredWordScore},
		{"half the words", "red bicycle", "a red vintage car", scatteredWordScore / 2},
		{"no match", "mountain lake", "a red vintage car", 0},
		{"negated term", "car -vintage", "a red vintage car", 0},
		{"stop words ignored", "a car on the road", "car road", allWordsInOrder},
		{"case insensitive", "RED Car", "A Red car", allWordsInOrder},
		{"empty query", "", "anything", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ScorePair(context.Background(), tt.query, tt.text)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ScorePair(%q, %q) = %v, want %v", tt.query, tt.text, got, tt.want)
			}
		})
	}
}

func TestAnalyzeQuery(t *testing.T) {
	q := analyzeQuery(`"golden hour" beach AND -people dog.`)
	if len(q.phrases) != 1 || q.phrases[0] != "golden hour" {
		t.Errorf("phrases = %v", q.phrases)
	}
	if len(q.negated) != 1 || q.negated[0] != "people" {
		t.Errorf("negated = %v", q.negated)
	}
	want := []string{"beach", "dog", "golden", "hour"}
	if !equalIDs(q.terms, want) {
		t.Errorf("terms = %v, want %v", q.terms, want)
	}
}

func TestLexicalReranker(t *testing.T) {
	r := NewTextReranker(NewLexicalScorer())
	cs := candidates("a dog on a beach", "a red car", "red car in the rain")
	got, err := r.Rank(context.Background(), "red car", cs, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a red car", "red car in the rain"}
	if !equalIDs(ids(got), want) {
		t.Errorf("Rank() = %v, want %v", ids(got), want)
	}
}
