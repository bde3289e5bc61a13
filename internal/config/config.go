// Package config provides configuration loading and structs for the medichat server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	PubMed     PubMedConfig     `yaml:"pubmed"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Completion CompletionConfig `yaml:"completion"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Auth       AuthConfig       `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the chat database and the vector index snapshot.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	IndexPath    string `yaml:"index_path"`
}

// PubMedConfig holds literature fetch settings. APIKey may be left empty here
// and supplied via the PUBMED_API_KEY environment variable instead.
type PubMedConfig struct {
	Term              string `yaml:"term"`
	RecentDays        int    `yaml:"recent_days"`
	MaxArticles       int    `yaml:"max_articles"`
	MaxRequestsPerSec int    `yaml:"max_requests_per_sec"`
	APIKey            string `yaml:"api_key"`
}

// ChunkingConfig holds token-budget settings for the document splitter.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// EmbeddingConfig holds remote embedding service settings.
type EmbeddingConfig struct {
	URL        string `yaml:"url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// CompletionConfig holds remote completion service settings.
type CompletionConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// RetrievalConfig holds similarity retrieval settings. WatchIndex enables an
// fsnotify hook that reloads the in-memory index when the snapshot file
// changes on disk; when false (the default) a running process serves stale
// results until restarted.
type RetrievalConfig struct {
	TopK         int  `yaml:"top_k"`
	PreviewChars int  `yaml:"preview_chars"`
	WatchIndex   bool `yaml:"watch_index"`
}

// RefreshConfig holds the periodic literature refresh interval.
// Zero disables the in-server ticker; the refresh subcommand still works.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// UnmarshalYAML accepts Go duration strings ("6h", "30m") as well as a plain
// number of seconds.
func (r *RefreshConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Interval any `yaml:"interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.Interval.(type) {
	case nil:
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid refresh interval %q: %w", v, err)
		}
		r.Interval = d
	case int:
		r.Interval = time.Duration(v) * time.Second
	default:
		return fmt.Errorf("invalid refresh interval %v", raw.Interval)
	}
	return nil
}

// AuthConfig holds session token settings. JwtSecret may be left empty here
// and supplied via the MEDICHAT_JWT_SECRET environment variable instead.
type AuthConfig struct {
	JwtSecret string `yaml:"jwt_secret"`
}

// Load reads and parses the config file at path, expands paths, applies
// defaults, and overlays secrets from the environment.
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
	applyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)

	return &cfg, nil
}

// applyEnv overlays secrets that should not live in the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PUBMED_API_KEY"); v != "" {
		cfg.PubMed.APIKey = v
	}
	if v := os.Getenv("MEDICHAT_JWT_SECRET"); v != "" {
		cfg.Auth.JwtSecret = v
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
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
