// Package embedding provides text embedding via a remote model service, with caching.
package embedding

import "context"

// Embedder produces vector embeddings for text. The same embedder must be
// used at index-build time and query time; mixing embedding models silently
// degrades relevance with no error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
