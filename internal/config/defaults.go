package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = "."
	}
	if cfg.Corpus.ImageDir == "" {
		cfg.Corpus.ImageDir = "./assets/image-dataset"
	}
	if cfg.Corpus.Extensions == nil {
		cfg.Corpus.Extensions = []string{".jpg", ".jpeg", ".png"}
	}
	if cfg.Corpus.BatchSize == 0 {
		cfg.Corpus.BatchSize = 100
	}
	if cfg.Corpus.Workers == 0 {
		cfg.Corpus.Workers = 4
	}
	if cfg.Storage.SnapshotPath == "" {
		cfg.Storage.SnapshotPath = "./data/metadata.json"
	}
	if cfg.Storage.CatalogPath == "" {
		cfg.Storage.CatalogPath = "./data/catalog.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.VisionModelPath == "" {
		cfg.Embedding.VisionModelPath = "./models/siglip-so400m-patch14-384/vision_model.onnx"
	}
	if cfg.Embedding.TextModelPath == "" {
		cfg.Embedding.TextModelPath = "./models/siglip-so400m-patch14-384/text_model.onnx"
	}
	if cfg.Embedding.VocabPath == "" {
		cfg.Embedding.VocabPath = "./models/siglip-so400m-patch14-384/vocab.txt"
	}
	if cfg.Embedding.Device == "" {
		cfg.Embedding.Device = "auto"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1152
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 64
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.VisionOutputName == "" {
		cfg.Embedding.VisionOutputName = "pooler_output"
	}
	if cfg.Embedding.TextOutputName == "" {
		cfg.Embedding.TextOutputName = "pooler_output"
	}
	if cfg.Embedding.InferenceTimeout == 0 {
		cfg.Embedding.InferenceTimeout = 30 * time.Second
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "qdrant"
	}
	if cfg.Index.Name == "" {
		cfg.Index.Name = "vision-scout"
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "cosine"
	}
	if cfg.Index.Cloud == "" {
		cfg.Index.Cloud = "aws"
	}
	if cfg.Index.Region == "" {
		cfg.Index.Region = "us-east-1"
	}
	if cfg.Index.Address == "" {
		switch cfg.Index.Backend {
		case "milvus":
			cfg.Index.Address = "localhost:19530"
		default:
			cfg.Index.Address = "localhost:6334"
		}
	}
	if cfg.Index.APIKeyEnv == "" {
		cfg.Index.APIKeyEnv = "SCOUT_API_KEY"
	}
	if cfg.Index.UpsertBatchSize == 0 {
		cfg.Index.UpsertBatchSize = 100
	}
	if cfg.Index.FetchBatchSize == 0 {
		cfg.Index.FetchBatchSize = 100
	}
	if cfg.Index.RequestTimeout == 0 {
		cfg.Index.RequestTimeout = 30 * time.Second
	}
	if cfg.Index.ReadyTimeout == 0 {
		cfg.Index.ReadyTimeout = 60 * time.Second
	}
	if cfg.Index.ReadyPollInterval == 0 {
		cfg.Index.ReadyPollInterval = time.Second
	}
	if cfg.Index.RetryDelay == 0 {
		cfg.Index.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Rerank.Strategy == "" {
		cfg.Rerank.Strategy = "none"
	}
	if cfg.Rerank.OutputName == "" {
		switch cfg.Rerank.Strategy {
		case "image":
			cfg.Rerank.OutputName = "itm_score"
		default:
			cfg.Rerank.OutputName = "logits"
		}
	}
	if cfg.Rerank.MaxTokens == 0 {
		cfg.Rerank.MaxTokens = 128
	}
	if cfg.Rerank.ImageSize == 0 {
		cfg.Rerank.ImageSize = 384
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 12
	}
	if cfg.Search.Stage1K == 0 {
		cfg.Search.Stage1K = 50
	}
	if cfg.Search.FinalK == 0 {
		cfg.Search.FinalK = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "scout"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1.0
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
