// Package vector provides a persistent cosine-similarity vector index.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"medichat/internal/embedding"
	"medichat/internal/models"
)

// ErrIndexNotFound is returned by Load when no snapshot exists at the path.
var ErrIndexNotFound = errors.New("vector index not found")

// Entry is the payload stored alongside each vector.
type Entry struct {
	ID      string
	Content string
	Source  string
}

// Index is an in-memory vector index with brute-force cosine similarity search
// and a binary on-disk snapshot. Entries are append-only: existing vectors are
// never mutated, only added. Duplicate source ingestion produces duplicate
// near-identical vectors; the index does not deduplicate.
//
// The embedder fixed at construction is used for every chunk and query so that
// all vectors live in the same embedding space.
type Index struct {
	dimensions int
	embedder   embedding.Embedder
	entries    []Entry
	vectors    [][]float32
	mu         sync.RWMutex
}

// New creates an empty index backed by the given embedder.
func New(embedder embedding.Embedder) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if embedder.Dimensions() <= 0 {
		return nil, fmt.Errorf("embedder dimensions must be positive")
	}
	return &Index{
		dimensions: embedder.Dimensions(),
		embedder:   embedder,
		entries:    make([]Entry, 0),
		vectors:    make([][]float32, 0),
	}, nil
}

// Build creates an index from chunks, embedding every chunk.
func Build(ctx context.Context, embedder embedding.Embedder, chunks []models.Chunk) (*Index, error) {
	idx, err := New(embedder)
	if err != nil {
		return nil, err
	}
	if err := idx.Add(ctx, chunks); err != nil {
		return nil, err
	}
	return idx, nil
}

// Add embeds chunks and appends them to the index. Prior entries are untouched.
func (ix *Index) Add(ctx context.Context, chunks []models.Chunk) error {
	for _, ch := range chunks {
		vec, err := ix.embedder.Embed(ctx, ch.Content)
		if err != nil {
			return fmt.Errorf("embed chunk %s: %w", ch.ID, err)
		}
		if len(vec) != ix.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), ix.dimensions)
		}
		v := make([]float32, ix.dimensions)
		copy(v, vec)
		ix.mu.Lock()
		ix.entries = append(ix.entries, Entry{ID: ch.ID, Content: ch.Content, Source: ch.Meta.Source})
		ix.vectors = append(ix.vectors, v)
		ix.mu.Unlock()
	}
	return nil
}

// Search embeds the query with the index's embedder and returns the k entries
// with highest cosine similarity, in non-increasing score order. Ties keep
// insertion order (stable sort). Repeated calls are deterministic.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]models.RetrievalResult, error) {
	queryVec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(queryVec) != ix.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(queryVec), ix.dimensions)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if k <= 0 || len(ix.entries) == 0 {
		return nil, nil
	}

	type scored struct {
		pos   int
		score float64
	}
	scores := make([]scored, len(ix.vectors))
	for i, vec := range ix.vectors {
		scores[i] = scored{pos: i, score: CosineSimilarity(queryVec, vec)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if k > len(scores) {
		k = len(scores)
	}
	results := make([]models.RetrievalResult, k)
	for i := 0; i < k; i++ {
		e := ix.entries[scores[i].pos]
		results[i] = models.RetrievalResult{
			Content: e.Content,
			Source:  e.Source,
			Score:   scores[i].score,
		}
	}
	return results, nil
}

// Size returns the number of vectors in the index.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Dimensions returns the embedding dimension of the index.
func (ix *Index) Dimensions() int {
	return ix.dimensions
}

// VectorAt returns a copy of the vector at position i, for inspection in tests
// and integrity checks.
func (ix *Index) VectorAt(i int) []float32 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	v := make([]float32, ix.dimensions)
	copy(v, ix.vectors[i])
	return v
}
