package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/scout/internal/embedding"
	"github.com/hyperjump/scout/internal/models"
	"github.com/hyperjump/scout/internal/rerank"
	"github.com/hyperjump/scout/internal/search"
	"github.com/hyperjump/scout/internal/vector"
)

const benchDimensions = 512

func populatedIndex(b *testing.B, n int) *vector.MemoryIndex {
	b.Helper()
	ctx := context.Background()
	idx, err := vector.NewMemoryIndex("")
	if err != nil {
		b.Fatal(err)
	}
	if err := idx.EnsureIndex(ctx, vector.IndexSpec{Name: "bench", Dimension: benchDimensions}); err != nil {
		b.Fatal(err)
	}
	e := embedding.NewMockEmbedder(benchDimensions)
	entries := make([]vector.Entry, n)
	for i := range entries {
		name := fmt.Sprintf("photo%05d.jpg", i)
		vec, _ := e.EmbedText(ctx, name)
		entries[i] = vector.Entry{
			ID:       fmt.Sprintf("id-%d", i),
			Vector:   vec,
			Metadata: models.ImageMetadata{Path: "assets/" + name, Filename: name},
		}
	}
	if err := idx.Upsert(ctx, entries); err != nil {
		b.Fatal(err)
	}
	return idx
}

func BenchmarkMemoryIndexQuery(b *testing.B) {
	idx := populatedIndex(b, 5000)
	ctx := context.Background()
	query, _ := embedding.NewMockEmbedder(benchDimensions).EmbedText(ctx, "benchmark query")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Query(ctx, query, 100)
	}
}

func BenchmarkEngineSearchWithLexicalRerank(b *testing.B) {
	idx := populatedIndex(b, 2000)
	engine := search.NewEngine(embedding.NewMockEmbedder(benchDimensions), idx,
		search.WithReranker(rerank.NewTextReranker(rerank.NewLexicalScorer()), rerank.StrategyLexical))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.SearchWithRerank(ctx, "photo 00042", 100, 10)
	}
}

func BenchmarkLexicalScorer(b *testing.B) {
	s := rerank.NewLexicalScorer()
	ctx := context.Background()
	text := "a red sports car parked beside the harbour at sunset with boats in the background"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.ScorePair(ctx, `"sports car" harbour -truck`, text)
	}
}

func BenchmarkMockEmbedder_EmbedText(b *testing.B) {
	e := embedding.NewMockEmbedder(benchDimensions)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.EmbedText(ctx, "benchmark query text for embedding")
	}
}
