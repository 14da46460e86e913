package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paperdesk/paperdesk/internal/paper"
)

// Compile-time check that QdrantIndex implements Index.
var _ Index = (*QdrantIndex)(nil)

// QdrantIndex is a minimal REST client for a Qdrant collection holding one
// point per paper. Qdrant point ids must be integers or UUIDs, so each paper
// id is mapped to a deterministic UUID; the paper id itself lives in the
// point payload.
type QdrantIndex struct {
	url        string
	collection string
	dimension  int
	client     *http.Client
}

// QdrantConfig holds connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL        string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// NewQdrantIndex creates a QdrantIndex. Timeout defaults to 15s.
func NewQdrantIndex(cfg QdrantConfig) *QdrantIndex {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		url:        strings.TrimRight(cfg.URL, "/"),
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}
}

// pointID maps a paper id to a deterministic UUID accepted by Qdrant.
// Same paper id always yields the same point, so upsert-by-id holds.
func pointID(paperID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("paperdesk:"+paperID)).String()
}

// Init creates the collection if it does not exist. Qdrant answers 200 for
// an existing collection with the same schema, so repeated startup reuses it
// without destroying data.
func (q *QdrantIndex) Init(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimension,
			"distance": "Cosine",
		},
	}
	err := q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collection), body, nil)
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	return err
}

type qdrantPayload struct {
	PaperID  string         `json:"paper_id"`
	Content  string         `json:"content"`
	Metadata paper.Metadata `json:"metadata"`
}

func (q *QdrantIndex) Upsert(ctx context.Context, doc paper.Document, embedding []float32) error {
	body := map[string]any{
		"points": []map[string]any{{
			"id":     pointID(doc.ID),
			"vector": embedding,
			"payload": qdrantPayload{
				PaperID:  doc.ID,
				Content:  doc.Content,
				Metadata: doc.Metadata,
			},
		}},
	}
	return q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collection), body, nil)
}

func (q *QdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collection), body, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, len(resp.Result))
	for i, r := range resp.Result {
		matches[i] = Match{Doc: payloadToDoc(r.Payload), Score: r.Score}
	}
	return matches, nil
}

func (q *QdrantIndex) ListAll(ctx context.Context) ([]paper.Document, error) {
	var docs []paper.Document
	var offset any

	for {
		body := map[string]any{
			"limit":        256,
			"with_payload": true,
		}
		if offset != nil {
			body["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					Payload qdrantPayload `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/scroll", q.collection), body, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			docs = append(docs, payloadToDoc(p.Payload))
		}
		if resp.Result.NextPageOffset == nil {
			return docs, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (q *QdrantIndex) Get(ctx context.Context, id string) (paper.Document, bool, error) {
	var resp struct {
		Result *struct {
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s/points/%s", q.collection, pointID(id)), nil, &resp)
	if err != nil {
		if strings.Contains(err.Error(), "status 404") {
			return paper.Document{}, false, nil
		}
		return paper.Document{}, false, err
	}
	if resp.Result == nil {
		return paper.Document{}, false, nil
	}
	return payloadToDoc(resp.Result.Payload), true, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, id string) (bool, error) {
	_, existed, err := q.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}

	body := map[string]any{"points": []string{pointID(id)}}
	if err := q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collection), body, nil); err != nil {
		return false, err
	}
	return true, nil
}

func payloadToDoc(p qdrantPayload) paper.Document {
	return paper.Document{ID: p.PaperID, Content: p.Content, Metadata: p.Metadata}
}

// do issues one JSON request and decodes the response into out (if non-nil).
// Non-2xx statuses are errors carrying the response body.
func (q *QdrantIndex) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.url+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
