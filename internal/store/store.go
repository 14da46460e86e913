// Package store is the single source of truth for ingested papers: a
// similarity-searchable index addressed by document id, queried by text.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/paperdesk/paperdesk/internal/paper"
)

// UnavailableError reports a connectivity failure to the underlying index or
// embedding service. Every store operation is independently fallible and a
// failed operation leaves no partial record.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Match is a document with its cosine similarity to a query vector
// (higher = more similar), as returned by index backends.
type Match struct {
	Doc   paper.Document
	Score float64
}

// Index is the vector index backend. Implementations: SQLiteIndex
// (brute-force cosine over local rows) and QdrantIndex (REST).
type Index interface {
	// Init ensures the backing collection exists. Idempotent; never
	// destroys existing data.
	Init(ctx context.Context) error

	// Upsert inserts or replaces the record at doc.ID atomically.
	Upsert(ctx context.Context, doc paper.Document, embedding []float32) error

	// Search returns up to k matches ordered by descending similarity.
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)

	// ListAll returns every stored document. Order is unspecified.
	ListAll(ctx context.Context) ([]paper.Document, error)

	// Get returns the document at id, reporting whether it exists.
	Get(ctx context.Context, id string) (paper.Document, bool, error)

	// Delete removes the record at id, reporting whether one existed.
	Delete(ctx context.Context, id string) (bool, error)
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store composes an Embedder with an Index so callers address the index by
// document id and query text. It owns the persistent index exclusively.
type Store struct {
	embedder Embedder
	index    Index
	logger   *slog.Logger
}

// New creates a Store over the given embedder and index backend.
func New(embedder Embedder, index Index) *Store {
	return &Store{embedder: embedder, index: index, logger: slog.Default()}
}

// Init initializes the backing collection. Safe to call on every startup.
func (s *Store) Init(ctx context.Context) error {
	if err := s.index.Init(ctx); err != nil {
		return &UnavailableError{Op: "init", Err: err}
	}
	return nil
}

// Upsert embeds the document content and inserts or replaces the record at
// doc.ID. The document is searchable and listable immediately after success.
func (s *Store) Upsert(ctx context.Context, doc paper.Document) error {
	vec, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return &UnavailableError{Op: "upsert", Err: fmt.Errorf("embedding content: %w", err)}
	}
	if err := s.index.Upsert(ctx, doc, vec); err != nil {
		return &UnavailableError{Op: "upsert", Err: err}
	}
	s.logger.Debug("upserted paper", "id", doc.ID, "title", doc.Metadata.Title)
	return nil
}

// Search embeds the query and returns up to k results ordered by
// non-decreasing distance (most similar first). An empty store yields an
// empty result, not an error.
func (s *Store) Search(ctx context.Context, query string, k int) ([]paper.SearchResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &UnavailableError{Op: "search", Err: fmt.Errorf("embedding query: %w", err)}
	}

	matches, err := s.index.Search(ctx, vec, k)
	if err != nil {
		return nil, &UnavailableError{Op: "search", Err: err}
	}

	results := make([]paper.SearchResult, len(matches))
	for i, m := range matches {
		results[i] = paper.SearchResult{
			Document: m.Doc,
			Distance: scoreToDistance(m.Score),
			Query:    query,
		}
	}
	// Backends return descending similarity; re-sorting by distance keeps
	// the ordering invariant independent of the backend.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results, nil
}

// ListAll returns every stored document. Order is unspecified.
func (s *Store) ListAll(ctx context.Context) ([]paper.Document, error) {
	docs, err := s.index.ListAll(ctx)
	if err != nil {
		return nil, &UnavailableError{Op: "list", Err: err}
	}
	return docs, nil
}

// Get returns the document stored at id, reporting whether it exists.
func (s *Store) Get(ctx context.Context, id string) (paper.Document, bool, error) {
	doc, ok, err := s.index.Get(ctx, id)
	if err != nil {
		return paper.Document{}, false, &UnavailableError{Op: "get", Err: err}
	}
	return doc, ok, nil
}

// Delete removes the record at id. Returns true if a record existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	existed, err := s.index.Delete(ctx, id)
	if err != nil {
		return false, &UnavailableError{Op: "delete", Err: err}
	}
	return existed, nil
}

// scoreToDistance converts cosine similarity (higher = closer) into the
// non-negative distance surface (lower = closer). Cosine similarity lies in
// [-1, 1], so 1-score lies in [0, 2]; floating error is clamped at zero.
func scoreToDistance(score float64) float64 {
	d := 1 - score
	if d < 0 {
		return 0
	}
	return d
}
