package store

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/paperdesk/paperdesk/internal/paper"
)

// Compile-time check that SQLiteIndex implements Index.
var _ Index = (*SQLiteIndex)(nil)

// SQLiteIndex provides vector storage and brute-force cosine similarity
// search backed by SQLite. This is the default Index implementation; a
// personal paper corpus stays far below the row counts where a dedicated
// ANN index would matter.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex wraps an existing *sql.DB for vector operations.
// The papers table must already exist (created via storage migrations).
func NewSQLiteIndex(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

// Init is a no-op: the papers table is created idempotently by the storage
// migrations when the database is opened.
func (s *SQLiteIndex) Init(ctx context.Context) error {
	return nil
}

// Upsert inserts or replaces the record at doc.ID in a single statement, so
// concurrent upserts of the same id resolve last-writer-wins with no torn
// state observable by readers.
func (s *SQLiteIndex) Upsert(ctx context.Context, doc paper.Document, embedding []float32) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata for %s: %w", doc.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO papers (id, content, metadata, embedding, indexed_at)
		VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Content, string(meta), encodeFloat32s(embedding), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting record %s: %w", doc.ID, err)
	}
	return nil
}

// idScore holds only the ID and score during the scan phase of Search.
// Full record details are fetched only for top-K winners.
type idScore struct {
	ID    string
	Score float64
}

// Search performs brute-force cosine similarity search over all vectors,
// returning the top-K most similar documents, best first.
func (s *SQLiteIndex) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	// Phase 1: scan only id + embedding to find top-K candidates.
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM papers`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < k {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full records for the winners, best first.
	ordered := make([]idScore, h.Len())
	for i := len(ordered) - 1; i >= 0; i-- {
		ordered[i] = heap.Pop(h).(idScore)
	}

	matches := make([]Match, 0, len(ordered))
	for _, is := range ordered {
		doc, ok, err := s.Get(ctx, is.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Row deleted between phases; skip.
			continue
		}
		matches = append(matches, Match{Doc: doc, Score: is.Score})
	}
	return matches, nil
}

// ListAll returns every stored document.
func (s *SQLiteIndex) ListAll(ctx context.Context) ([]paper.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata FROM papers`)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	var docs []paper.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Get returns the document at id, reporting whether it exists.
func (s *SQLiteIndex) Get(ctx context.Context, id string) (paper.Document, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, content, metadata FROM papers WHERE id = ?`, id)

	var doc paper.Document
	var meta string
	err := row.Scan(&doc.ID, &doc.Content, &meta)
	if err == sql.ErrNoRows {
		return paper.Document{}, false, nil
	}
	if err != nil {
		return paper.Document{}, false, fmt.Errorf("querying record %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
		return paper.Document{}, false, fmt.Errorf("unmarshalling metadata for %s: %w", id, err)
	}
	return doc, true, nil
}

// Delete removes the record at id, reporting whether one existed.
func (s *SQLiteIndex) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM papers WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type docScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row docScanner) (paper.Document, error) {
	var doc paper.Document
	var meta string
	if err := row.Scan(&doc.ID, &doc.Content, &meta); err != nil {
		return paper.Document{}, fmt.Errorf("scanning record: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
		return paper.Document{}, fmt.Errorf("unmarshalling metadata for %s: %w", doc.ID, err)
	}
	return doc, nil
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans. Returns an
// error if the byte length is not a multiple of 4 (data corruption).
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine computes dot(a,b) / (aNorm * |b|). aNorm is the precomputed L2 norm
// of vector a.
func cosine(a, b []float32, aNorm float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return dot / (aNorm * bNorm)
}

// idScoreHeap is a min-heap of idScore ordered by Score, used during the
// scan phase of Search to track top-K candidates by ID only.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
