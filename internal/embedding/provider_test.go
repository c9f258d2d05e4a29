package embedding

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/scout/internal/config"
)

func TestProvider_constructsOnce(t *testing.T) {
	var calls atomic.Int32
	p := NewProvider(func() (Embedder, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return NewMockEmbedder(8), nil
	}, 8)

	var wg sync.WaitGroup
	results := make([]Embedder, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			emb, err := p.Get()
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = emb
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("factory called %d times, want 1", calls.Load())
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("all callers should share one instance")
		}
	}
	if _, err := p.EmbedText(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if p.Device() != DeviceCPU {
		t.Errorf("device = %s", p.Device())
	}
}

func TestProvider_constructionError(t *testing.T) {
	boom := errors.New("weights missing")
	var calls atomic.Int32
	p := NewProvider(func() (Embedder, error) {
		calls.Add(1)
		return nil, boom
	}, 1152)

	if _, err := p.Get(); !errors.Is(err, boom) {
		t.Fatalf("expected construction error, got %v", err)
	}
	if _, err := p.EmbedText(context.Background(), "x"); !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
	if p.Dimensions() != 1152 {
		t.Errorf("dimensions = %d, want configured 1152", p.Dimensions())
	}
	if calls.Load() != 1 {
		t.Errorf("failed construction should not be retried, got %d calls", calls.Load())
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close on unbuilt provider: %v", err)
	}
}

func TestNew(t *testing.T) {
	t.Run("mock", func(t *testing.T) {
		emb, err := New(&config.EmbeddingConfig{Provider: "mock", Dimensions: 12}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if emb.Dimensions() != 12 {
			t.Errorf("dimensions = %d", emb.Dimensions())
		}
	})
	t.Run("unknown provider", func(t *testing.T) {
		if _, err := New(&config.EmbeddingConfig{Provider: "bogus"}, nil); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("missing model files", func(t *testing.T) {
		dir := t.TempDir()
		_, err := New(&config.EmbeddingConfig{
			Provider:        "onnx",
			VisionModelPath: filepath.Join(dir, "vision.onnx"),
			TextModelPath:   filepath.Join(dir, "text.onnx"),
			VocabPath:       filepath.Join(dir, "vocab.txt"),
		}, nil)
		if err == nil {
			t.Error("expected error for missing model files")
		}
	})
	t.Run("bad device", func(t *testing.T) {
		if _, err := New(&config.EmbeddingConfig{Provider: "onnx", Device: "tpu"}, nil); err == nil {
			t.Error("expected error for unknown device")
		}
	})
}

func TestRunInference(t *testing.T) {
	var mu sync.Mutex

	t.Run("returns fn result", func(t *testing.T) {
		want := errors.New("run failed")
		if err := RunInference(context.Background(), time.Second, &mu, func() error { return want }); !errors.Is(err, want) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("bounded by timeout", func(t *testing.T) {
		release := make(chan struct{})
		start := time.Now()
		err := RunInference(context.Background(), 20*time.Millisecond, &mu, func() error {
			<-release
			return nil
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
		if time.Since(start) > time.Second {
			t.Error("RunInference did not return promptly")
		}
		close(release)
	})

	t.Run("cancelled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ran := false
		err := RunInference(ctx, 0, &mu, func() error { ran = true; return nil })
		if !errors.Is(err, context.Canceled) || ran {
			t.Errorf("err = %v, ran = %v", err, ran)
		}
	})
}
