package config

// DefaultMinScore is the canonical similarity threshold applied when a caller
// does not pass one explicitly. There is exactly one default; per-call overrides
// are always explicit.
const DefaultMinScore = 0.2

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/bunmyaku/data/db/conversations.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/bunmyaku/data/indices/vectors.bin"
	}
	if cfg.Storage.MetadataPath == "" {
		cfg.Storage.MetadataPath = "/usr/local/var/bunmyaku/data/indices/metadata.json"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/bunmyaku/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 5
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 50
	}
	if cfg.Search.MinScore == 0 {
		cfg.Search.MinScore = DefaultMinScore
	}
	if cfg.Search.OversampleFactor == 0 {
		cfg.Search.OversampleFactor = 3
	}
	if cfg.Context.RecentLimit == 0 {
		cfg.Context.RecentLimit = 4
	}
	if cfg.Context.MediumK == 0 {
		cfg.Context.MediumK = 2
	}
	if cfg.Context.LongK == 0 {
		cfg.Context.LongK = 3
	}
	if cfg.Context.PreviewChars == 0 {
		cfg.Context.PreviewChars = 200
	}
	if cfg.Context.SnippetChars == 0 {
		cfg.Context.SnippetChars = 150
	}
	if cfg.Context.QuestionChars == 0 {
		cfg.Context.QuestionChars = 100
	}
	if cfg.Context.DefaultMaxTokens == 0 {
		cfg.Context.DefaultMaxTokens = 4000
	}
	if cfg.Topics.Extractor == "" {
		cfg.Topics.Extractor = "keyword"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".jsonl"}
	}
}
