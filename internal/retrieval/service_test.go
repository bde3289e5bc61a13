package retrieval

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"medichat/internal/models"
	"medichat/internal/vector"
)

// stubEmbedder maps known texts to fixed vectors so similarity ranking in
// tests is fully controlled.
type stubEmbedder struct {
	dim     int
	vectors map[string][]float32
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", text)
	}
	return v, nil
}

func (e *stubEmbedder) Dimensions() int { return e.dim }

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{
		dim: 3,
		vectors: map[string][]float32{
			"fever basics":   {1, 0, 0},
			"sleep research": {0, 1, 0},
			"diet findings":  {0, 0, 1},
			"about fever":    {0.9, 0.1, 0},
			"about sleep":    {0.1, 0.9, 0},
		},
	}
}

func writeSnapshot(t *testing.T, path string, emb *stubEmbedder, chunks []models.Chunk) {
	t.Helper()
	idx, err := vector.Build(context.Background(), emb, chunks)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
}

func chunk(id, content, source string) models.Chunk {
	return models.Chunk{ID: id, Content: content, Meta: models.Metadata{Source: source}}
}

func TestService_ContextFormatting(t *testing.T) {
	emb := newStubEmbedder()
	path := filepath.Join(t.TempDir(), "index.bin")
	writeSnapshot(t, path, emb, []models.Chunk{
		chunk("c1", "fever basics", "PubMed:1"),
		chunk("c2", "sleep research", "PubMed:2"),
		chunk("c3", "diet findings", "PubMed:3"),
	})

	svc := NewService(path, emb, 2, 500, zap.NewNop())
	got := svc.Context(context.Background(), "about fever")

	want := "Source: PubMed:1\nfever basics\n\nSource: PubMed:2\nsleep research"
	if got != want {
		t.Errorf("context = %q, want %q", got, want)
	}
}

func TestService_ContextTruncatesPassages(t *testing.T) {
	emb := newStubEmbedder()
	long := "fever " + strings.Repeat("x", 100)
	emb.vectors[long] = []float32{1, 0, 0}

	path := filepath.Join(t.TempDir(), "index.bin")
	writeSnapshot(t, path, emb, []models.Chunk{chunk("c1", long, "PubMed:9")})

	svc := NewService(path, emb, 1, 20, zap.NewNop())
	got := svc.Context(context.Background(), "about fever")

	want := "Source: PubMed:9\n" + long[:20] + "..."
	if got != want {
		t.Errorf("context = %q, want %q", got, want)
	}
}

func TestService_MissingIndex(t *testing.T) {
	emb := newStubEmbedder()
	svc := NewService(filepath.Join(t.TempDir(), "absent.bin"), emb, 3, 500, zap.NewNop())

	if got := svc.Context(context.Background(), "about fever"); got != "" {
		t.Errorf("context = %q, want empty with no index", got)
	}
	if svc.Size() != 0 {
		t.Errorf("size = %d, want 0", svc.Size())
	}
}

func TestService_StaleUntilInvalidate(t *testing.T) {
	emb := newStubEmbedder()
	path := filepath.Join(t.TempDir(), "index.bin")

	svc := NewService(path, emb, 3, 500, zap.NewNop())

	// First query sees no snapshot; that result is memoized.
	if got := svc.Context(context.Background(), "about fever"); got != "" {
		t.Fatalf("context = %q before any snapshot exists", got)
	}

	writeSnapshot(t, path, emb, []models.Chunk{chunk("c1", "fever basics", "PubMed:1")})

	if got := svc.Context(context.Background(), "about fever"); got != "" {
		t.Errorf("context = %q, expected stale empty view until invalidation", got)
	}

	svc.Invalidate()

	want := "Source: PubMed:1\nfever basics"
	if got := svc.Context(context.Background(), "about fever"); got != want {
		t.Errorf("context after invalidate = %q, want %q", got, want)
	}
}

func TestService_QueryEmbeddingFailure(t *testing.T) {
	emb := newStubEmbedder()
	path := filepath.Join(t.TempDir(), "index.bin")
	writeSnapshot(t, path, emb, []models.Chunk{chunk("c1", "fever basics", "PubMed:1")})

	svc := NewService(path, emb, 3, 500, zap.NewNop())
	if got := svc.Context(context.Background(), "unknown text"); got != "" {
		t.Errorf("context = %q, want empty when query embedding fails", got)
	}
}
