// Package chunker splits documents into overlapping token-bounded passages.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"medichat/internal/models"
)

// separators in decreasing granularity: paragraph, line, sentence, word.
// Hard token splits are the last resort when no natural boundary fits.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter splits documents into chunks of at most chunkSize tokens, with
// adjacent chunks of the same document sharing roughly chunkOverlap tokens.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	tokenizer    Tokenizer
}

// NewSplitter creates a splitter with the given token budget and overlap.
func NewSplitter(chunkSize, chunkOverlap int, tokenizer Tokenizer) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", chunkOverlap, chunkSize)
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap, tokenizer: tokenizer}, nil
}

// Split chunks every document. Each chunk inherits its parent document's
// metadata unchanged and holds at most chunkSize tokens.
func (s *Splitter) Split(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		for _, text := range s.splitText(doc.Content, separators) {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{
				ID:      fmt.Sprintf("%s_%s", doc.Meta.Source, uuid.New().String()[:8]),
				Content: text,
				Meta:    doc.Meta,
			})
		}
	}
	return chunks
}

func (s *Splitter) tokenLen(text string) int {
	return len(s.tokenizer.Encode(text))
}

// splitText recursively splits text on the first separator that produces
// pieces, falling back to finer separators and finally to hard token splits.
func (s *Splitter) splitText(text string, seps []string) []string {
	if s.tokenLen(text) <= s.chunkSize {
		return []string{text}
	}
	if len(seps) == 0 {
		return s.hardSplit(text)
	}

	parts := splitKeepSeparator(text, seps[0])
	if len(parts) == 1 {
		return s.splitText(text, seps[1:])
	}

	var pieces []string
	for _, p := range parts {
		if s.tokenLen(p) <= s.chunkSize {
			pieces = append(pieces, p)
		} else {
			pieces = append(pieces, s.splitText(p, seps[1:])...)
		}
	}
	return s.merge(pieces)
}

// merge greedily packs pieces into chunks up to the token budget, carrying
// roughly chunkOverlap trailing tokens into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0
	fresh := 0 // pieces in window not yet emitted in a chunk

	for _, p := range pieces {
		l := s.tokenLen(p)
		if total+l > s.chunkSize && total > 0 {
			chunks = append(chunks, strings.Join(window, ""))
			fresh = 0
			for len(window) > 0 && (total > s.chunkOverlap || total+l > s.chunkSize) {
				total -= s.tokenLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += l
		fresh++
	}
	if fresh > 0 {
		chunks = append(chunks, strings.Join(window, ""))
	}
	return chunks
}

// hardSplit slices text into fixed token windows with overlap. Used only when
// no natural boundary fits the budget.
func (s *Splitter) hardSplit(text string) []string {
	tokens := s.tokenizer.Encode(text)
	step := s.chunkSize - s.chunkOverlap
	var out []string
	for i := 0; i < len(tokens); i += step {
		end := i + s.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, s.tokenizer.Decode(tokens[i:end]))
		if end >= len(tokens) {
			break
		}
	}
	return out
}

// splitKeepSeparator splits text on sep, keeping the separator attached to the
// end of each piece so that joining pieces reproduces the original text.
func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return parts
	}
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
