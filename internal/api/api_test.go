package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paperdesk/paperdesk/internal/assistant"
	"github.com/paperdesk/paperdesk/internal/ingest"
	"github.com/paperdesk/paperdesk/internal/library"
	"github.com/paperdesk/paperdesk/internal/ollama"
	"github.com/paperdesk/paperdesk/internal/paper"
	"github.com/paperdesk/paperdesk/internal/store"
)

type fakeStore struct {
	docs      map[string]paper.Document
	searchErr error
	listErr   error
}

func (f *fakeStore) Search(ctx context.Context, query string, k int) ([]paper.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []paper.SearchResult
	for _, d := range f.docs {
		out = append(out, paper.SearchResult{Document: d, Distance: 0.1, Query: query})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListAll(ctx context.Context) ([]paper.Document, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []paper.Document
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (paper.Document, bool, error) {
	d, ok := f.docs[id]
	return d, ok, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) (bool, error) {
	if _, ok := f.docs[id]; !ok {
		return false, nil
	}
	delete(f.docs, id)
	return true, nil
}

type fakeAssistant struct {
	answer paper.Answer
	err    error
}

func (f *fakeAssistant) Answer(ctx context.Context, question string, useRetrieval bool, history []paper.Message) (paper.Answer, error) {
	return f.answer, f.err
}

func (f *fakeAssistant) Summarize(ctx context.Context, content, title string) (assistant.Summary, error) {
	if f.err != nil {
		return assistant.Summary{}, f.err
	}
	return assistant.Summary{Title: title, Summary: "summary of " + title, GeneratedAt: time.Now()}, nil
}

func (f *fakeAssistant) SuggestDirections(ctx context.Context, topic string, papers []string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []string{"direction one", "direction two"}, nil
}

type fakeIngestor struct{}

func (fakeIngestor) IngestBatch(ctx context.Context, files []ingest.File) ingest.Batch {
	batch := ingest.Batch{ID: "batch-1", Outcomes: make([]ingest.Outcome, len(files))}
	for i, f := range files {
		out := ingest.Outcome{Filename: f.Name}
		if strings.HasSuffix(f.Name, ".txt") {
			out.ID = paper.AssignID(f.Data)
			out.Title = "Title of " + f.Name
			out.Meta = paper.Metadata{Title: out.Title, Filename: f.Name}
		} else {
			out.Err = errors.New("unsupported format")
		}
		batch.Outcomes[i] = out
	}
	return batch
}

func testHandler(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Store == nil {
		deps.Store = &fakeStore{docs: map[string]paper.Document{}}
	}
	if deps.Assistant == nil {
		deps.Assistant = &fakeAssistant{}
	}
	if deps.Ingest == nil {
		deps.Ingest = fakeIngestor{}
	}
	if deps.Citations == nil {
		c, err := library.OpenCitations(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		deps.Citations = c
	}
	if deps.Deadlines == nil {
		d, err := library.OpenDeadlines(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		deps.Deadlines = d
	}
	return NewHandler(deps)
}

func multipartUpload(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestUploadPapers(t *testing.T) {
	h := testHandler(t, Deps{})

	body, contentType := multipartUpload(t, map[string]string{
		"paper.txt": "some paper content",
		"image.png": "binary junk",
	})
	req := httptest.NewRequest(http.MethodPost, "/papers", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		BatchID string         `json:"batch_id"`
		Results []uploadResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.BatchID == "" {
		t.Error("missing batch_id")
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	var okCount, failCount int
	for _, r := range resp.Results {
		if r.Success {
			okCount++
			if r.ID == "" || r.Title == "" {
				t.Errorf("successful result missing id/title: %+v", r)
			}
		} else {
			failCount++
			if r.Error == "" {
				t.Errorf("failed result missing error: %+v", r)
			}
		}
	}
	if okCount != 1 || failCount != 1 {
		t.Errorf("ok=%d fail=%d, want 1/1", okCount, failCount)
	}
}

func TestUploadNoFiles(t *testing.T) {
	h := testHandler(t, Deps{})

	body, contentType := multipartUpload(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/papers", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAsk(t *testing.T) {
	fa := &fakeAssistant{answer: paper.Answer{
		Text:    "the answer",
		Sources: []paper.Source{{Title: "Paper A", Distance: 0.2}},
	}}
	h := testHandler(t, Deps{Assistant: fa})

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"what?"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var ans paper.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &ans); err != nil {
		t.Fatal(err)
	}
	if ans.Text != "the answer" || len(ans.Sources) != 1 {
		t.Errorf("answer = %+v", ans)
	}
}

func TestAskGenerationFailureStill200(t *testing.T) {
	fa := &fakeAssistant{
		answer: paper.Answer{Text: "generation failed: model unavailable"},
		err:    &ollama.GenerationError{Err: errors.New("model unavailable")},
	}
	h := testHandler(t, Deps{Assistant: fa})

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"what?"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with failure text", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "generation failed") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAskMissingQuestion(t *testing.T) {
	h := testHandler(t, Deps{})
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_request_error") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestDeletePaper(t *testing.T) {
	fs := &fakeStore{docs: map[string]paper.Document{
		"paper_abc12345": {ID: "paper_abc12345"},
	}}
	h := testHandler(t, Deps{Store: fs})

	req := httptest.NewRequest(http.MethodDelete, "/papers/paper_abc12345", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete existing: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/papers/paper_abc12345", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing: status = %d, want 404", rec.Code)
	}
}

func TestListPapersStoreDown(t *testing.T) {
	fs := &fakeStore{docs: map[string]paper.Document{}}
	fs.listErr = &store.UnavailableError{Op: "list", Err: errors.New("connection refused")}
	h := testHandler(t, Deps{Store: fs})

	req := httptest.NewRequest(http.MethodGet, "/papers", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "store_unavailable") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSummarizePaper(t *testing.T) {
	fs := &fakeStore{docs: map[string]paper.Document{
		"paper_11112222": {ID: "paper_11112222", Content: "text", Metadata: paper.Metadata{Title: "A Paper"}},
	}}
	h := testHandler(t, Deps{Store: fs})

	req := httptest.NewRequest(http.MethodPost, "/papers/paper_11112222/summary", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "summary of A Paper") {
		t.Errorf("body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/papers/paper_nope/summary", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing paper: status = %d, want 404", rec.Code)
	}
}

func TestCitationRoutes(t *testing.T) {
	h := testHandler(t, Deps{})

	body := `{"title":"On Testing","authors":["Doe, J."],"year":2024,"journal":"J. Softw."}`
	req := httptest.NewRequest(http.MethodPost, "/citations", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("add: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var added map[string]string
	json.Unmarshal(rec.Body.Bytes(), &added)
	id := added["id"]
	if id == "" {
		t.Fatal("no id returned")
	}

	req = httptest.NewRequest(http.MethodGet, "/citations/"+id+"/format?style=mla", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("format: status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `Doe, J. \"On Testing.\" J. Softw., 2024.`) {
		t.Errorf("format body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/citations/export?format=bibtex", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "@article{"+id) {
		t.Errorf("export body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/citations/"+id, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/citations/"+id, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", rec.Code)
	}
}

func TestDeadlineRoutes(t *testing.T) {
	h := testHandler(t, Deps{})

	due := time.Now().Add(48 * time.Hour).Format(time.RFC3339)
	body := `{"title":"Conference submission","due":"` + due + `","priority":"High","category":"Conference"}`
	req := httptest.NewRequest(http.MethodPost, "/deadlines", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("add: status = %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/deadlines/upcoming?days=7", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upcoming: status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Conference submission") {
		t.Errorf("upcoming body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/deadlines/upcoming?days=1", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if strings.Contains(rec.Body.String(), "Conference submission") {
		t.Errorf("1-day window should exclude 48h deadline: %s", rec.Body.String())
	}
}

func TestBearerAuth(t *testing.T) {
	h := testHandler(t, Deps{Token: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/papers", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/papers", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/papers", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("good token: status = %d, want 200", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := testHandler(t, Deps{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
