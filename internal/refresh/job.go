// Package refresh runs the literature ingestion pipeline: fetch, chunk, embed,
// persist.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"medichat/internal/chunker"
	"medichat/internal/embedding"
	"medichat/internal/models"
	"medichat/internal/vector"
)

// ErrRefreshRunning is returned when a refresh is requested while one is
// already in flight.
var ErrRefreshRunning = errors.New("refresh already running")

// Fetcher supplies documents to ingest.
type Fetcher interface {
	FetchDocuments(ctx context.Context, days, maxCount int) ([]models.Document, error)
}

// Job appends freshly fetched literature to the index snapshot on disk. Runs
// never overlap; a second Run while one is active fails fast with
// ErrRefreshRunning.
type Job struct {
	fetcher   Fetcher
	splitter  *chunker.Splitter
	embedder  embedding.Embedder
	indexPath string
	days      int
	maxCount  int
	logger    *zap.Logger

	running atomic.Bool
}

// NewJob creates a refresh job writing to the snapshot at indexPath.
func NewJob(fetcher Fetcher, splitter *chunker.Splitter, embedder embedding.Embedder, indexPath string, days, maxCount int, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		fetcher:   fetcher,
		splitter:  splitter,
		embedder:  embedder,
		indexPath: indexPath,
		days:      days,
		maxCount:  maxCount,
		logger:    logger,
	}
}

// Run executes one refresh: fetch recent documents, chunk them, embed the
// chunks into the existing snapshot (creating it on first run) and persist.
// An empty fetch batch leaves the snapshot untouched.
func (j *Job) Run(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrRefreshRunning
	}
	defer j.running.Store(false)

	j.logger.Info("refresh started", zap.Int("days", j.days), zap.Int("max_articles", j.maxCount))

	docs, err := j.fetcher.FetchDocuments(ctx, j.days, j.maxCount)
	if err != nil {
		return fmt.Errorf("fetch documents: %w", err)
	}
	if len(docs) == 0 {
		j.logger.Info("no new documents, snapshot unchanged")
		return nil
	}

	chunks := j.splitter.Split(docs)
	j.logger.Info("documents chunked", zap.Int("documents", len(docs)), zap.Int("chunks", len(chunks)))

	idx, err := vector.Load(j.indexPath, j.embedder)
	if err != nil {
		if !errors.Is(err, vector.ErrIndexNotFound) {
			return fmt.Errorf("load index: %w", err)
		}
		idx, err = vector.New(j.embedder)
		if err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		j.logger.Info("no snapshot found, building a new index")
	}

	if err := idx.Add(ctx, chunks); err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if err := idx.Save(j.indexPath); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	j.logger.Info("refresh complete",
		zap.String("path", j.indexPath),
		zap.Int("added", len(chunks)),
		zap.Int("total", idx.Size()))
	return nil
}
