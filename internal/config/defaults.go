package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/medichat/data/db/chatbot.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/medichat/data/indices/vector_index"
	}
	if cfg.PubMed.Term == "" {
		cfg.PubMed.Term = "medicine OR health"
	}
	if cfg.PubMed.RecentDays == 0 {
		cfg.PubMed.RecentDays = 7
	}
	if cfg.PubMed.MaxArticles == 0 {
		cfg.PubMed.MaxArticles = 10
	}
	if cfg.PubMed.MaxRequestsPerSec == 0 {
		cfg.PubMed.MaxRequestsPerSec = 10
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 200
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 20
	}
	if cfg.Embedding.URL == "" {
		cfg.Embedding.URL = "http://127.0.0.1:11434/api/embeddings"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "gte-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Completion.URL == "" {
		cfg.Completion.URL = "http://127.0.0.1:1234/v1/chat/completions"
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = "llama-3.2-3b-instruct"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.PreviewChars == 0 {
		cfg.Retrieval.PreviewChars = 500
	}
}
