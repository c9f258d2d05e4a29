package embedding

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/scout/internal/config"
	"go.uber.org/zap"
)

// Factory constructs an Embedder. A Provider calls it at most once.
type Factory func() (Embedder, error)

// Provider owns the process's one Embedder. Construction is deferred to the first call
// and guarded by sync.Once: the first caller builds it, concurrent callers wait and then
// share the instance (or the construction error). Provider itself implements Embedder, so
// it is what gets injected into the indexer, search engine and server.
type Provider struct {
	factory    Factory
	dimensions int
	logger     *zap.Logger

	once     sync.Once
	built    atomic.Bool
	embedder Embedder
	err      error
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets a logger for construction events.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// NewProvider returns a Provider that builds its embedder with factory. dimensions is
// reported by Dimensions when construction fails.
func NewProvider(factory Factory, dimensions int, opts ...ProviderOption) *Provider {
	p := &Provider{factory: factory, dimensions: dimensions, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewProviderFromConfig returns a Provider for the configured backend.
func NewProviderFromConfig(cfg *config.EmbeddingConfig, opts ...ProviderOption) *Provider {
	p := NewProvider(nil, cfg.Dimensions, opts...)
	p.factory = func() (Embedder, error) { return New(cfg, p.logger) }
	return p
}

// Get returns the embedder, constructing it on first use.
func (p *Provider) Get() (Embedder, error) {
	p.once.Do(func() {
		start := time.Now()
		emb, err := p.factory()
		if err != nil {
			p.err = fmt.Errorf("failed to construct embedder: %w", err)
			p.logger.Error("embedder construction failed", zap.Error(err))
			return
		}
		p.embedder = emb
		p.built.Store(true)
		p.logger.Info("embedder ready",
			zap.String("device", string(emb.Device())),
			zap.Int("dimensions", emb.Dimensions()),
			zap.Duration("elapsed", time.Since(start)))
	})
	return p.embedder, p.err
}

// EmbedImage delegates to the shared embedder.
func (p *Provider) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	emb, err := p.Get()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return emb.EmbedImage(ctx, path)
}

// EmbedText delegates to the shared embedder.
func (p *Provider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	emb, err := p.Get()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return emb.EmbedText(ctx, text)
}

// Dimensions returns the embedder's dimension, or the configured one if it failed to build.
func (p *Provider) Dimensions() int {
	if emb, err := p.Get(); err == nil {
		return emb.Dimensions()
	}
	return p.dimensions
}

// Device returns the device the embedder runs on. Before construction it reports DeviceAuto.
func (p *Provider) Device() Device {
	if !p.built.Load() {
		return DeviceAuto
	}
	return p.embedder.Device()
}

// Close releases the embedder if it was built.
func (p *Provider) Close() error {
	if !p.built.Load() {
		return nil
	}
	return p.embedder.Close()
}

// ONNXConfig configures the ONNX dual encoder.
type ONNXConfig struct {
	VisionModelPath   string
	TextModelPath     string
	VocabPath         string
	SharedLibraryPath string
	VisionOutputName  string
	TextOutputName    string
	Device            Device
	Dimensions        int
	ImageSize         int
	MaxTokens         int
	CacheSize         int
	Timeout           time.Duration
}

// New builds the configured embedder. Missing model files are reported here so that
// startup fails instead of the first request.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	case "onnx", "":
		device, err := ParseDevice(cfg.Device)
		if err != nil {
			return nil, err
		}
		for _, p := range []string{cfg.VisionModelPath, cfg.TextModelPath, cfg.VocabPath} {
			if _, err := os.Stat(p); err != nil {
				return nil, fmt.Errorf("model file unavailable: %w", err)
			}
		}
		e, err := NewONNXEmbedder(ONNXConfig{
			VisionModelPath:   cfg.VisionModelPath,
			TextModelPath:     cfg.TextModelPath,
			VocabPath:         cfg.VocabPath,
			SharedLibraryPath: cfg.SharedLibraryPath,
			VisionOutputName:  cfg.VisionOutputName,
			TextOutputName:    cfg.TextOutputName,
			Device:            device,
			Dimensions:        cfg.Dimensions,
			ImageSize:         cfg.ImageSize,
			MaxTokens:         cfg.MaxTokens,
			CacheSize:         cfg.CacheSize,
			Timeout:           cfg.InferenceTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, mock)", cfg.Provider)
	}
}

// RunInference runs fn while holding mu, bounded by ctx and timeout. ONNX Runtime calls
// cannot be interrupted, so on cancellation the caller returns immediately while fn
// finishes in the background and keeps mu until it does.
func RunInference(ctx context.Context, timeout time.Duration, mu *sync.Mutex, fn func() error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			done <- ctx.Err()
			return
		}
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
