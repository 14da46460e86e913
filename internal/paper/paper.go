// Package paper defines the core domain types for ingested research papers
// and the content-addressed identity scheme shared by all components.
package paper

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// idPrefix namespaces document identifiers so they are recognizable in logs
// and in the vector index alongside other record kinds.
const idPrefix = "paper_"

// idHexLen is the number of hex characters kept from the content digest.
// Collisions between distinct contents are possible at this width and are
// not detected; see DESIGN.md.
const idHexLen = 8

// Metadata is the lightweight descriptive record attached to a Document.
type Metadata struct {
	Title       string    `json:"title"`
	Filename    string    `json:"filename"`
	WordCount   int       `json:"word_count"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Document is a single ingested paper. ID is a deterministic function of
// Content, so re-uploading identical bytes collapses to the same record.
// Documents are never mutated in place; re-ingestion replaces the whole
// record under the same ID.
type Document struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// SearchResult is a Document annotated with its distance to a query.
// Distance is non-negative; lower means more similar. Results are transient
// and never persisted.
type SearchResult struct {
	Document
	Distance float64 `json:"distance"`
	Query    string  `json:"query"`
}

// Source identifies one retrieved document that grounded an answer.
type Source struct {
	Title    string  `json:"title"`
	Distance float64 `json:"distance"`
}

// Message is one turn of a conversation. Conversations are owned by the
// caller's session; the core receives prior turns as input and holds none.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []Source  `json:"sources,omitempty"`
}

// Answer is the orchestrator's result: generated text plus the ordered
// sources that were supplied as context, most similar first.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// AssignID derives the stable content-addressed identifier for a document.
// It is a pure function of the content bytes: identical content yields an
// identical id regardless of filename, upload order, or time.
func AssignID(content []byte) string {
	sum := sha256.Sum256(content)
	return idPrefix + hex.EncodeToString(sum[:])[:idHexLen]
}
