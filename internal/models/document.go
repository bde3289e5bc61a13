// Package models defines core data structures for documents, chunks, chats, and users.
package models

// Document represents raw text retrieved from an external literature source.
// Documents are immutable once created; Source is a stable external identifier
// (e.g. "PubMed:12345678") used for provenance and citation.
type Document struct {
	Content string   `json:"content"`
	Meta    Metadata `json:"metadata"`
}

// Metadata carries provenance for a document and every chunk derived from it.
type Metadata struct {
	Source string `json:"source"`
}

// Chunk is a token-bounded passage derived from a Document. It inherits the
// parent document's metadata unchanged.
type Chunk struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Meta    Metadata `json:"metadata"`
}

// RetrievalResult is a single similarity-search hit with its provenance.
type RetrievalResult struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}
