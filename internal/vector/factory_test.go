package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/scout/internal/config"
)

func TestNew_memory(t *testing.T) {
	idx, err := New(context.Background(), &config.IndexConfig{Backend: BackendMemory, Name: "test"}, nil)
	if err != nil {
		t.Fatalf("New(memory): %v", err)
	}
	defer idx.Close()
	if err := idx.EnsureIndex(context.Background(), IndexSpec{Name: "test", Dimension: 3}); err != nil {
		t.Fatal(err)
	}
}

func TestNew_missingAPIKey(t *testing.T) {
	for _, backend := range []string{BackendQdrant, BackendMilvus} {
		t.Run(backend, func(t *testing.T) {
			t.Setenv("SCOUT_TEST_KEY", "")
			_, err := New(context.Background(), &config.IndexConfig{
				Backend:   backend,
				Address:   "localhost:1",
				APIKeyEnv: "SCOUT_TEST_KEY",
			}, nil)
			if !errors.Is(err, ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestNew_unknownBackend(t *testing.T) {
	_, err := New(context.Background(), &config.IndexConfig{Backend: "faiss"}, nil)
	if !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestSpecFromConfig(t *testing.T) {
	spec := SpecFromConfig(&config.IndexConfig{Name: "vision-scout", Metric: "cosine", Cloud: "aws", Region: "us-east-1"}, 1152)
	if spec.Name != "vision-scout" || spec.Dimension != 1152 || spec.Metric != MetricCosine || spec.Region != "us-east-1" {
		t.Errorf("spec = %+v", spec)
	}
}
