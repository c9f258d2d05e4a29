package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/scout/internal/config"
	"go.uber.org/zap"
)

// Backend names.
const (
	BackendQdrant = "qdrant"
	BackendMilvus = "milvus"
	BackendMemory = "memory"
)

// SpecFromConfig builds the IndexSpec for the configured index and embedding dimension.
func SpecFromConfig(cfg *config.IndexConfig, dimension int) IndexSpec {
	return IndexSpec{
		Name:      cfg.Name,
		Dimension: dimension,
		Metric:    Metric(cfg.Metric),
		Cloud:     cfg.Cloud,
		Region:    cfg.Region,
	}
}

// New connects to the configured backend and applies rate limiting and retry from cfg.
// A remote backend without an API key is an ErrConfig error; nothing is dialled.
func New(ctx context.Context, cfg *config.IndexConfig, logger *zap.Logger) (Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := RemoteOptions{
		Address:           cfg.Address,
		UseTLS:            cfg.UseTLS,
		RequestTimeout:    cfg.RequestTimeout,
		ReadyTimeout:      cfg.ReadyTimeout,
		ReadyPollInterval: cfg.ReadyPollInterval,
		Logger:            logger.With(zap.String("backend", cfg.Backend)),
	}
	if cfg.RequiresAPIKey() {
		key, err := cfg.APIKey()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		opts.APIKey = key
	}

	var (
		idx Index
		err error
	)
	switch cfg.Backend {
	case BackendQdrant:
		idx, err = NewQdrant(cfg.Name, opts)
	case BackendMilvus:
		idx, err = NewMilvus(ctx, cfg.Name, opts)
	case BackendMemory:
		idx, err = NewMemoryIndex(cfg.MemoryPath)
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q (supported: qdrant, milvus, memory)", ErrConfig, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	idx = RateLimited(idx, cfg.RateLimit)
	idx = WithRetry(idx, RetryPolicy{MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay}, logger)
	return idx, nil
}
