package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hyperjump/scout/internal/config"
	"github.com/hyperjump/scout/internal/embedding"
	"github.com/hyperjump/scout/internal/models"
	"github.com/hyperjump/scout/internal/rerank"
	"github.com/hyperjump/scout/internal/vector"
)

const dim = 16

// newCorpus indexes one image whose vector is the mock text embedding of match, plus n
// unrelated images. The matching image is stored as assets/red-car.jpg.
func newCorpus(t *testing.T, emb *embedding.MockEmbedder, match string, n int) *vector.MemoryIndex {
	t.Helper()
	ctx := context.Background()
	idx, err := vector.NewMemoryIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	if err := idx.EnsureIndex(ctx, vector.IndexSpec{Name: "test", Dimension: dim, Metric: vector.MetricCosine}); err != nil {
		t.Fatal(err)
	}

	entries := make([]vector.Entry, 0, n+1)
	vec, err := emb.EmbedText(ctx, match)
	if err != nil {
		t.Fatal(err)
	}
	entries = append(entries, vector.Entry{
		ID:       "red-car",
		Vector:   vec,
		Metadata: models.ImageMetadata{Path: "assets/red-car.jpg", Filename: "red-car.jpg"},
	})
	for i := 0; i < n; i++ {
		vec, err := emb.EmbedText(ctx, fmt.Sprintf("unrelated scene number %d", i))
		if err != nil {
			t.Fatal(err)
		}
		name := fmt.Sprintf("other-%d.jpg", i)
		entries = append(entries, vector.Entry{
			ID:       fmt.Sprintf("other-%d", i),
			Vector:   vec,
			Metadata: models.ImageMetadata{Path: "assets/" + name, Filename: name},
		})
	}
	if err := idx.Upsert(ctx, entries); err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestEngine_Search_RedCar(t *testing.T) {
	emb := embedding.NewMockEmbedder(dim)
	idx := newCorpus(t, emb, "a red car", 9)
	engine := NewEngine(emb, idx)

	resp, err := engine.Search(context.Background(), "a red car", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 5 || resp.Total != 5 {
		t.Fatalf("got %d results (total %d), want 5", len(resp.Results), resp.Total)
	}
	found := false
	for i, r := range resp.Results {
		if r.Rank != i+1 {
			t.Errorf("result %d has rank %d", i, r.Rank)
		}
		if i > 0 && r.Score > resp.Results[i-1].Score {
			t.Errorf("results not sorted by score at %d", i)
		}
		if r.Stage1Score != r.Score || r.Reranked {
			t.Errorf("stage-1 result %+v", r)
		}
		if r.ID == "red-car" {
			found = true
		}
	}
	if !found {
		t.Error("matching image not in top 5")
	}
	if resp.Results[0].ID != "red-car" {
		t.Errorf("top result = %s, want red-car", resp.Results[0].ID)
	}
	if resp.Reranked {
		t.Error("Search must not report re-ranking")
	}
}

func TestEngine_Search_EmptyQuery(t *testing.T) {
	emb := embedding.NewMockEmbedder(dim)
	engine := NewEngine(emb, newCorpus(t, emb, "x", 1))
	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := engine.Search(context.Background(), q, 5); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("Search(%q) err = %v, want ErrEmptyQuery", q, err)
		}
	}
	if emb.TextCalls() != 2 {
		t.Errorf("embedder called %d times, want 2 (corpus setup only)", emb.TextCalls())
	}
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: model crashed", embedding.ErrEmbedding)
}

func TestEngine_Search_EmbeddingFailure(t *testing.T) {
	idx, _ := vector.NewMemoryIndex("")
	engine := NewEngine(failingEmbedder{}, idx)
	resp, err := engine.Search(context.Background(), "a red car", 5)
	if !errors.Is(err, ErrQueryEmbedding) {
		t.Fatalf("err = %v, want ErrQueryEmbedding", err)
	}
	if !errors.Is(err, embedding.ErrEmbedding) {
		t.Errorf("err = %v, should wrap the embedding cause", err)
	}
	if resp != nil {
		t.Errorf("resp = %+v, want nil", resp)
	}
}

type failingQuerier struct{}

func (failingQuerier) Query(context.Context, []float32, int) ([]vector.Match, error) {
	return nil, fmt.Errorf("%w: connection refused", vector.ErrUnavailable)
}

func TestEngine_Search_RetrievalFailure(t *testing.T) {
	engine := NewEngine(embedding.NewMockEmbedder(dim), failingQuerier{})
	_, err := engine.Search(context.Background(), "a red car", 5)
	if !errors.Is(err, ErrRetrieval) || !errors.Is(err, vector.ErrUnavailable) {
		t.Errorf("err = %v, want ErrRetrieval wrapping ErrUnavailable", err)
	}
}

func TestEngine_Search_EmptyIndex(t *testing.T) {
	idx, _ := vector.NewMemoryIndex("")
	engine := NewEngine(embedding.NewMockEmbedder(dim), idx)
	resp, err := engine.Search(context.Background(), "a red car", 5)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("results = %v, want empty", resp.Results)
	}
}

func TestEngine_Search_ClampsTopK(t *testing.T) {
	emb := embedding.NewMockEmbedder(dim)
	engine := NewEngine(emb, newCorpus(t, emb, "a red car", 9),
		WithLimits(config.SearchConfig{TopK: 3, Stage1K: 8, FinalK: 2, MaxLimit: 4}))
	tests := []struct {
		topK int
		want int
	}{
		{0, 3},
		{-1, 3},
		{2, 2},
		{50, 4},
	}
	for _, tt := range tests {
		resp, err := engine.Search(context.Background(), "a red car", tt.topK)
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Results) != tt.want {
			t.Errorf("topK %d: got %d results, want %d", tt.topK, len(resp.Results), tt.want)
		}
	}
}

func TestEngine_SearchWithRerank_NoReranker(t *testing.T) {
	emb := embedding.NewMockEmbedder(dim)
	engine := NewEngine(emb, newCorpus(t, emb, "a red car", 9))

	stage1, err := engine.Search(context.Background(), "a red car", 10)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := engine.SearchWithRerank(context.Background(), "a red car", 10, 3)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Reranked || len(resp.Results) != 3 {
		t.Fatalf("got reranked=%v len=%d", resp.Reranked, len(resp.Results))
	}
	for i, r := range resp.Results {
		if r.ID != stage1.Results[i].ID {
			t.Errorf("result %d = %s, want stage-1 order %s", i, r.ID, stage1.Results[i].ID)
		}
	}
	if engine.Strategy() != rerank.StrategyNone || engine.RerankEnabled() {
		t.Errorf("Strategy() = %q", engine.Strategy())
	}
}

// recordingReranker reverses its input and records what it was given.
type recordingReranker struct {
	got []models.Candidate
	err error
}

func (r *recordingReranker) Rank(_ context.Context, _ string, candidates []models.Candidate, topK int) ([]models.Candidate, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.got = candidates
	out := make([]models.Candidate, 0, len(candidates))
	for i := len(candidates) - 1; i >= 0; i-- {
		c := candidates[i]
		c.RerankScore = float64(len(out))
		out = append(out, c)
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

type mapDescriptions map[string]string

func (m mapDescriptions) Lookup(_ context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range ids {
		if text, ok := m[id]; ok {
			out[id] = text
		}
	}
	return out, nil
}

func TestEngine_SearchWithRerank(t *testing.T) {
	emb := embedding.NewMockEmbedder(dim)
	rr := &recordingReranker{}
	root := t.TempDir()
	engine := NewEngine(emb, newCorpus(t, emb, "a red car", 9),
		WithReranker(rr, "text"),
		WithProjectRoot(root),
		WithDescriptions(mapDescriptions{"red-car": "a shiny red sports car"}))

	resp, err := engine.SearchWithRerank(context.Background(), "a red car", 6, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rr.got) != 6 {
		t.Fatalf("reranker got %d candidates, want 6", len(rr.got))
	}
	first := rr.got[0]
	if first.ID != "red-car" || first.Text != "a shiny red sports car" {
		t.Errorf("first candidate = %+v", first)
	}
	if want := filepath.Join(root, "assets", "red-car.jpg"); first.ImagePath != want {
		t.Errorf("ImagePath = %q, want %q", first.ImagePath, want)
	}
	for _, c := range rr.got[1:] {
		if c.Text != "" {
			t.Errorf("candidate %s has unexpected text %q", c.ID, c.Text)
		}
	}

	if !resp.Reranked || resp.Strategy != "text" || len(resp.Results) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Results[0].ID != rr.got[5].ID {
		t.Errorf("top result = %s, want re-ranked order %s", resp.Results[0].ID, rr.got[5].ID)
	}
	if !resp.Results[0].Reranked || resp.Results[0].Stage1Score != rr.got[5].Score {
		t.Errorf("result %+v should carry its stage-1 score", resp.Results[0])
	}
}

func TestEngine_SearchWithRerank_LexicalDropsUndescribed(t *testing.T) {
	emb := embedding.NewMockEmbedder(dim)
	engine := NewEngine(emb, newCorpus(t, emb, "a red car", 9),
		WithReranker(rerank.NewTextReranker(rerank.NewLexicalScorer()), rerank.StrategyLexical),
		WithDescriptions(mapDescriptions{
			"red-car": "red car on a street",
			"other-1": "a bowl of fruit",
		}))
	resp, err := engine.SearchWithRerank(context.Background(), "red car", 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2 (only described images are scoreable)", len(resp.Results))
	}
	if resp.Results[0].ID != "red-car" {
		t.Errorf("top result = %s", resp.Results[0].ID)
	}
}

func TestEngine_SearchWithRerank_RerankError(t *testing.T) {
	emb := embedding.NewMockEmbedder(dim)
	engine := NewEngine(emb, newCorpus(t, emb, "a red car", 3),
		WithReranker(&recordingReranker{err: context.Canceled}, "image"))
	_, err := engine.SearchWithRerank(context.Background(), "a red car", 4, 2)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestEngine_Run(t *testing.T) {
	emb := embedding.NewMockEmbedder(dim)
	rr := &recordingReranker{}
	engine := NewEngine(emb, newCorpus(t, emb, "a red car", 9), WithReranker(rr, "image"))

	resp, err := engine.Run(context.Background(), &models.SearchQuery{Query: " a red car ", TopK: 4})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Reranked || len(resp.Results) != 4 || resp.Query != "a red car" {
		t.Errorf("plain run: %+v", resp)
	}

	resp, err = engine.Run(context.Background(), &models.SearchQuery{Query: "a red car", Rerank: true, Stage1K: 5, FinalK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Reranked || len(resp.Results) != 3 || len(rr.got) != 5 {
		t.Errorf("rerank run: reranked=%v results=%d candidates=%d", resp.Reranked, len(resp.Results), len(rr.got))
	}

	if _, err := engine.Run(context.Background(), &models.SearchQuery{Query: "  "}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("blank run err = %v", err)
	}
}

func TestPhotoID(t *testing.T) {
	tests := []struct {
		meta models.ImageMetadata
		want string
	}{
		{models.ImageMetadata{Path: "assets/image-dataset/abc123.jpg", Filename: "abc123.jpg"}, "abc123"},
		{models.ImageMetadata{Path: "assets/x/Zf-9.PNG"}, "Zf-9"},
		{models.ImageMetadata{}, ""},
	}
	for _, tt := range tests {
		if got := PhotoID(tt.meta); got != tt.want {
			t.Errorf("PhotoID(%+v) = %q, want %q", tt.meta, got, tt.want)
		}
	}
}
