// Package config provides configuration loading and structs for scout.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned when the vector index credential is not set in the environment.
var ErrMissingAPIKey = errors.New("vector index API key not set")

// Config holds all configuration for the application.
type Config struct {
	Debug bool `yaml:"debug"`
	// ProjectRoot is the fixed root that image identities are derived against.
	ProjectRoot string          `yaml:"project_root"`
	Corpus      CorpusConfig    `yaml:"corpus"`
	Storage     StorageConfig   `yaml:"storage"`
	Embedding   EmbeddingConfig `yaml:"embedding"`
	Index       IndexConfig     `yaml:"index"`
	Rerank      RerankConfig    `yaml:"rerank"`
	Search      SearchConfig    `yaml:"search"`
	Server      ServerConfig    `yaml:"server"`
	Watch       WatchConfig     `yaml:"watch"`
	Tracing     TracingConfig   `yaml:"tracing"`
}

// CorpusConfig describes where images live and how ingestion batches them.
type CorpusConfig struct {
	ImageDir   string   `yaml:"image_dir"`
	Extensions []string `yaml:"extensions"`
	BatchSize  int      `yaml:"batch_size"`
	Workers    int      `yaml:"workers"`
}

// StorageConfig holds local file paths.
type StorageConfig struct {
	SnapshotPath string `yaml:"snapshot_path"`
	CatalogPath  string `yaml:"catalog_path"`
}

// EmbeddingConfig holds vision-language encoder settings.
type EmbeddingConfig struct {
	// Provider is "onnx" or "mock".
	Provider          string `yaml:"provider"`
	VisionModelPath   string `yaml:"vision_model_path"`
	TextModelPath     string `yaml:"text_model_path"`
	VocabPath         string `yaml:"vocab_path"`
	SharedLibraryPath string `yaml:"shared_library_path"`
	// Device is "auto", "cuda", "coreml" or "cpu".
	Device           string        `yaml:"device"`
	Dimensions       int           `yaml:"dimensions"`
	ImageSize        int           `yaml:"image_size"`
	MaxTokens        int           `yaml:"max_tokens"`
	CacheSize        int           `yaml:"cache_size"`
	VisionOutputName string        `yaml:"vision_output_name"`
	TextOutputName   string        `yaml:"text_output_name"`
	InferenceTimeout time.Duration `yaml:"inference_timeout"`
}

// IndexConfig holds vector index service settings.
type IndexConfig struct {
	// Backend is "qdrant", "milvus" or "memory".
	Backend   string `yaml:"backend"`
	Name      string `yaml:"name"`
	Metric    string `yaml:"metric"`
	Cloud     string `yaml:"cloud"`
	Region    string `yaml:"region"`
	Address   string `yaml:"address"`
	UseTLS    bool   `yaml:"use_tls"`
	APIKeyEnv string `yaml:"api_key_env"`
	// MemoryPath persists the memory backend between runs; empty keeps it in-process only.
	MemoryPath        string        `yaml:"memory_path"`
	UpsertBatchSize   int           `yaml:"upsert_batch_size"`
	FetchBatchSize    int           `yaml:"fetch_batch_size"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`
	ReadyPollInterval time.Duration `yaml:"ready_poll_interval"`
	// RateLimit is the maximum number of index calls per second; 0 disables limiting.
	RateLimit  float64       `yaml:"rate_limit"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// RequiresAPIKey reports whether the configured backend is a remote service that needs a credential.
func (c *IndexConfig) RequiresAPIKey() bool {
	return c.Backend != "memory"
}

// APIKey returns the credential from the environment variable named by APIKeyEnv.
func (c *IndexConfig) APIKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(c.APIKeyEnv))
	if key == "" {
		return "", fmt.Errorf("%w: set %s in the environment or .env", ErrMissingAPIKey, c.APIKeyEnv)
	}
	return key, nil
}

// RerankConfig selects and configures the second-stage scorer.
type RerankConfig struct {
	// Strategy is "none", "text" (cross-encoder over descriptions) or "image" (image-text matching).
	Strategy   string `yaml:"strategy"`
	ModelPath  string `yaml:"model_path"`
	VocabPath  string `yaml:"vocab_path"`
	OutputName string `yaml:"output_name"`
	MaxTokens  int    `yaml:"max_tokens"`
	ImageSize  int    `yaml:"image_size"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	TopK     int `yaml:"top_k"`
	Stage1K  int `yaml:"stage1_k"`
	FinalK   int `yaml:"final_k"`
	MaxLimit int `yaml:"max_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// TracingConfig configures OpenTelemetry export. An empty endpoint disables export.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.ProjectRoot = expandPath(cfg.ProjectRoot, configDir)
	cfg.Corpus.ImageDir = expandPath(cfg.Corpus.ImageDir, configDir)
	cfg.Storage.SnapshotPath = expandPath(cfg.Storage.SnapshotPath, configDir)
	cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, configDir)
	cfg.Index.MemoryPath = expandPath(cfg.Index.MemoryPath, configDir)
	cfg.Embedding.VisionModelPath = expandPath(cfg.Embedding.VisionModelPath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	cfg.Embedding.SharedLibraryPath = expandPath(cfg.Embedding.SharedLibraryPath, configDir)
	cfg.Rerank.ModelPath = expandPath(cfg.Rerank.ModelPath, configDir)
	cfg.Rerank.VocabPath = expandPath(cfg.Rerank.VocabPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads KEY=value pairs from the .env file in dir into the process environment.
// Variables already set are not overridden. A missing file is not an error.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
