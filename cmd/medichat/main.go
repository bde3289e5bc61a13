// Package main is the medichat CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"medichat/internal/auth"
	"medichat/internal/chat"
	"medichat/internal/chunker"
	"medichat/internal/config"
	"medichat/internal/embedding"
	"medichat/internal/pubmed"
	"medichat/internal/refresh"
	"medichat/internal/retrieval"
	"medichat/internal/server"
	"medichat/internal/storage"
	"medichat/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/medichat/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used instead.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Secrets (PUBMED_API_KEY, MEDICHAT_JWT_SECRET) may live in a local .env.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "refresh":
		runRefresh()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("medichat version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds the wired application dependencies.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	Splitter     *chunker.Splitter
	Fetcher      *pubmed.Client
	RefreshJob   *refresh.Job
	Retrieval    *retrieval.Service
	Orchestrator *chat.Orchestrator
	Auth         *auth.Service
}

// Close releases held resources.
func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder := embedding.NewCachedEmbedder(
		embedding.NewHTTPEmbedder(cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.Dimensions),
		cfg.Embedding.CacheSize,
	)

	tokenizer, err := chunker.NewTiktokenTokenizer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}
	splitter, err := chunker.NewSplitter(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, tokenizer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize splitter: %w", err)
	}

	fetcher := pubmed.NewClient(
		cfg.PubMed.APIKey,
		cfg.PubMed.Term,
		cfg.PubMed.MaxRequestsPerSec,
		pubmed.WithLogger(logger),
	)
	job := refresh.NewJob(
		fetcher,
		splitter,
		embedder,
		cfg.Storage.IndexPath,
		cfg.PubMed.RecentDays,
		cfg.PubMed.MaxArticles,
		logger,
	)

	retr := retrieval.NewService(
		cfg.Storage.IndexPath,
		embedder,
		cfg.Retrieval.TopK,
		cfg.Retrieval.PreviewChars,
		logger,
	)
	completer := chat.NewCompletionClient(cfg.Completion.URL, cfg.Completion.Model)
	orchestrator := chat.NewOrchestrator(completer, retr, logger)

	return &Components{
		Storage:      store,
		Embedder:     embedder,
		Splitter:     splitter,
		Fetcher:      fetcher,
		RefreshJob:   job,
		Retrieval:    retr,
		Orchestrator: orchestrator,
		Auth:         auth.NewService(cfg.Auth.JwtSecret),
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Auth.JwtSecret == "" {
		logger.Fatal("auth.jwt_secret is required (config or MEDICHAT_JWT_SECRET)")
	}

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if cfg.Retrieval.WatchIndex {
		go func() {
			if err := components.Retrieval.Watch(bgCtx); err != nil && bgCtx.Err() == nil {
				logger.Warn("index watcher stopped", zap.Error(err))
			}
		}()
	}

	if cfg.Refresh.Interval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Refresh.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-bgCtx.Done():
					return
				case <-ticker.C:
					if err := components.RefreshJob.Run(bgCtx); err != nil {
						logger.Warn("scheduled refresh failed", zap.Error(err))
					} else if !cfg.Retrieval.WatchIndex {
						components.Retrieval.Invalidate()
					}
				}
			}
		}()
	}

	srv := server.NewServer(
		components.Storage,
		components.Auth,
		components.Orchestrator,
		components.Retrieval,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	bgCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runRefresh() {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	days := fs.Int("days", 0, "override lookback window in days")
	maxArticles := fs.Int("max-articles", 0, "override article cap")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *days > 0 {
		cfg.PubMed.RecentDays = *days
	}
	if *maxArticles > 0 {
		cfg.PubMed.MaxArticles = *maxArticles
	}

	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if err := components.RefreshJob.Run(context.Background()); err != nil {
		logger.Fatal("Refresh failed", zap.Error(err))
	}
	fmt.Printf("Index refreshed: %s\n", cfg.Storage.IndexPath)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}

	var status struct {
		Users           int64          `json:"users"`
		Chats           int64          `json:"chats"`
		VectorIndexSize *int           `json:"vector_index_size"`
		DiskUsageBytes  *int64         `json:"disk_usage_bytes"`
		Config          map[string]any `json:"config"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("users:              %d\n", status.Users)
		fmt.Printf("chats:              %d\n", status.Chats)
		if status.VectorIndexSize != nil {
			fmt.Printf("vector_index_size:  %d\n", *status.VectorIndexSize)
		}
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
		}
		if len(status.Config) > 0 {
			fmt.Println()
			fmt.Println("# configuration")
			for _, key := range []string{
				"pubmed_term", "recent_days", "max_articles",
				"chunk_size", "chunk_overlap", "embedding_dimensions",
				"retrieval_top_k", "database_path", "index_path",
			} {
				if v, ok := status.Config[key]; ok {
					fmt.Printf("%-20s%v\n", key+":", v)
				}
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`medichat - medical chat assistant grounded in recent PubMed literature

Usage:
  medichat server [flags]     Start the HTTP API server
  medichat refresh [flags]    Fetch recent literature and update the vector index
  medichat status [flags]     Show status of a running server
  medichat version            Show version
  medichat help               Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/medichat/config.yaml)
  --debug            Enable debug logging

Refresh Flags:
  --config string        Config file path
  --days int             Override lookback window in days
  --max-articles int     Override article cap

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Examples:
  medichat server
  medichat refresh --days 14 --max-articles 25
  medichat status --output json`)
}
