// Package retrieval loads the persisted vector index and turns user queries
// into literature context for the completion prompt.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"medichat/internal/embedding"
	"medichat/internal/vector"
	"medichat/pkg/utils"
)

// Service answers similarity queries against the index snapshot on disk. The
// snapshot is loaded on first use and kept in memory until Invalidate is
// called; a refresh that rewrites the file does not affect a running service
// unless invalidation is wired up.
type Service struct {
	indexPath    string
	embedder     embedding.Embedder
	topK         int
	previewChars int
	logger       *zap.Logger

	mu     sync.Mutex
	idx    *vector.Index
	loaded bool
}

// NewService creates a retrieval service over the index snapshot at indexPath.
func NewService(indexPath string, embedder embedding.Embedder, topK, previewChars int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		indexPath:    indexPath,
		embedder:     embedder,
		topK:         topK,
		previewChars: previewChars,
		logger:       logger,
	}
}

// index returns the loaded index, loading the snapshot on first call. The
// load result, including a missing snapshot, is memoized until Invalidate.
func (s *Service) index() (*vector.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.idx, nil
	}
	idx, err := vector.Load(s.indexPath, s.embedder)
	if err != nil {
		if errors.Is(err, vector.ErrIndexNotFound) {
			s.logger.Warn("index snapshot not found, retrieval disabled until refresh",
				zap.String("path", s.indexPath))
			s.idx = nil
			s.loaded = true
			return nil, nil
		}
		return nil, fmt.Errorf("load index: %w", err)
	}
	s.logger.Info("index snapshot loaded",
		zap.String("path", s.indexPath),
		zap.Int("entries", idx.Size()))
	s.idx = idx
	s.loaded = true
	return idx, nil
}

// Context retrieves the passages most similar to query and formats them as a
// context block for prompt injection. It returns an empty string when the
// index is missing or the search fails; retrieval problems degrade the answer
// quality but never break the chat.
func (s *Service) Context(ctx context.Context, query string) string {
	idx, err := s.index()
	if err != nil {
		s.logger.Error("index load failed", zap.Error(err))
		return ""
	}
	if idx == nil || idx.Size() == 0 {
		return ""
	}

	results, err := idx.Search(ctx, query, s.topK)
	if err != nil {
		s.logger.Error("similarity search failed", zap.Error(err))
		return ""
	}

	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("Source: %s\n%s", r.Source, utils.Truncate(r.Content, s.previewChars)))
	}
	return strings.Join(blocks, "\n\n")
}

// Invalidate drops the in-memory index so the next query reloads the snapshot
// from disk.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx = nil
	s.loaded = false
}

// Size reports the number of indexed chunks, loading the snapshot if needed.
func (s *Service) Size() int {
	idx, err := s.index()
	if err != nil || idx == nil {
		return 0
	}
	return idx.Size()
}
