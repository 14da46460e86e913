// Package api exposes the assistant over HTTP (chi) and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paperdesk/paperdesk/internal/assistant"
	"github.com/paperdesk/paperdesk/internal/extract"
	"github.com/paperdesk/paperdesk/internal/ingest"
	"github.com/paperdesk/paperdesk/internal/library"
	"github.com/paperdesk/paperdesk/internal/ollama"
	"github.com/paperdesk/paperdesk/internal/paper"
	"github.com/paperdesk/paperdesk/internal/store"
)

const maxRequestBodySize = 1 << 20 // 1MB

// PaperStore is the slice of the embedding store the API needs.
type PaperStore interface {
	Search(ctx context.Context, query string, k int) ([]paper.SearchResult, error)
	ListAll(ctx context.Context) ([]paper.Document, error)
	Get(ctx context.Context, id string) (paper.Document, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Assistant is the slice of the orchestrator the API needs.
type Assistant interface {
	Answer(ctx context.Context, question string, useRetrieval bool, history []paper.Message) (paper.Answer, error)
	Summarize(ctx context.Context, content, title string) (assistant.Summary, error)
	SuggestDirections(ctx context.Context, topic string, papers []string) ([]string, error)
}

// Ingestor runs batch paper ingestion.
type Ingestor interface {
	IngestBatch(ctx context.Context, files []ingest.File) ingest.Batch
}

type Deps struct {
	Store     PaperStore
	Assistant Assistant
	Ingest    Ingestor
	Citations *library.Citations
	Deadlines *library.Deadlines
	Token     string // empty disables auth
	MaxUpload int64  // per-request multipart limit; 0 means 32MB
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	if deps.Token != "" {
		r.Use(BearerAuth(deps.Token))
	}

	r.Post("/papers", handleUploadPapers(deps))
	r.Get("/papers", handleListPapers(deps))
	r.Delete("/papers/{id}", handleDeletePaper(deps))
	r.Post("/papers/{id}/summary", handleSummarizePaper(deps))
	r.Post("/ask", handleAsk(deps))
	r.Post("/suggest", handleSuggest(deps))

	r.Get("/citations", handleListCitations(deps))
	r.Post("/citations", handleAddCitation(deps))
	r.Delete("/citations/{id}", handleDeleteCitation(deps))
	r.Get("/citations/{id}/format", handleFormatCitation(deps))
	r.Get("/citations/export", handleExportCitations(deps))

	r.Get("/deadlines", handleListDeadlines(deps))
	r.Post("/deadlines", handleAddDeadline(deps))
	r.Delete("/deadlines/{id}", handleDeleteDeadline(deps))
	r.Get("/deadlines/upcoming", handleUpcomingDeadlines(deps))

	r.Get("/health", handleHealth(deps))

	return r
}

// uploadResult is the per-file outcome of a batch upload.
type uploadResult struct {
	Filename string          `json:"filename"`
	Success  bool            `json:"success"`
	ID       string          `json:"id,omitempty"`
	Title    string          `json:"title,omitempty"`
	Metadata *paper.Metadata `json:"metadata,omitempty"`
	Error    string          `json:"error,omitempty"`
	Type     string          `json:"error_type,omitempty"`
}

func handleUploadPapers(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := deps.MaxUpload
		if limit <= 0 {
			limit = 32 << 20
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		if err := r.ParseMultipartForm(limit); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no files uploaded (use multipart field %q)", "files")
			return
		}

		files := make([]ingest.File, 0, len(headers))
		for _, h := range headers {
			f, err := h.Open()
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "open %s: %v", h.Filename, err)
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "read %s: %v", h.Filename, err)
				return
			}
			files = append(files, ingest.File{Name: h.Filename, Data: data})
		}

		batch := deps.Ingest.IngestBatch(r.Context(), files)

		results := make([]uploadResult, len(batch.Outcomes))
		for i, out := range batch.Outcomes {
			res := uploadResult{Filename: out.Filename}
			if out.Err != nil {
				res.Error = out.Err.Error()
				res.Type = errorType(out.Err)
			} else {
				res.Success = true
				res.ID = out.ID
				res.Title = out.Title
				meta := out.Meta
				res.Metadata = &meta
			}
			results[i] = res
		}

		writeJSON(w, map[string]any{
			"batch_id": batch.ID,
			"results":  results,
		})
	}
}

func handleListPapers(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListAll(r.Context())
		if err != nil {
			storeError(w, err)
			return
		}

		type paperEntry struct {
			ID       string         `json:"id"`
			Metadata paper.Metadata `json:"metadata"`
		}
		entries := make([]paperEntry, len(docs))
		for i, d := range docs {
			entries[i] = paperEntry{ID: d.ID, Metadata: d.Metadata}
		}
		writeJSON(w, entries)
	}
}

func handleDeletePaper(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ok, err := deps.Store.Delete(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "paper %s not found", id)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleSummarizePaper(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, ok, err := deps.Store.Get(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "paper %s not found", id)
			return
		}

		summary, err := deps.Assistant.Summarize(r.Context(), doc.Content, doc.Metadata.Title)
		if err != nil {
			httpError(w, http.StatusBadGateway, "generation_error", "summarize: %v", err)
			return
		}
		writeJSON(w, summary)
	}
}

type askRequest struct {
	Question     string          `json:"question"`
	UseRetrieval *bool           `json:"use_retrieval"`
	History      []paper.Message `json:"history"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}
		useRetrieval := true
		if req.UseRetrieval != nil {
			useRetrieval = *req.UseRetrieval
		}

		answer, err := deps.Assistant.Answer(r.Context(), req.Question, useRetrieval, req.History)

		// Generation failures still produce an answer body carrying the
		// failure text plus any sources already retrieved.
		var genErr *ollama.GenerationError
		if err != nil && !errors.As(err, &genErr) {
			httpError(w, http.StatusInternalServerError, "api_error", "answer: %v", err)
			return
		}
		writeJSON(w, answer)
	}
}

type suggestRequest struct {
	Topic string `json:"topic"`
}

func handleSuggest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req suggestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Topic == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "topic is required")
			return
		}

		docs, err := deps.Store.ListAll(r.Context())
		if err != nil {
			storeError(w, err)
			return
		}
		titles := make([]string, len(docs))
		for i, d := range docs {
			titles[i] = d.Metadata.Title
		}

		directions, err := deps.Assistant.SuggestDirections(r.Context(), req.Topic, titles)
		if err != nil {
			httpError(w, http.StatusBadGateway, "generation_error", "suggest: %v", err)
			return
		}
		writeJSON(w, map[string]any{"directions": directions})
	}
}

func handleListCitations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var list []library.Citation
		if q := r.URL.Query().Get("q"); q != "" {
			list = deps.Citations.Search(q)
		} else {
			list = deps.Citations.List()
		}
		if list == nil {
			list = []library.Citation{}
		}
		writeJSON(w, list)
	}
}

func handleAddCitation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var cit library.Citation
		if err := json.NewDecoder(r.Body).Decode(&cit); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if cit.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}

		id, err := deps.Citations.Add(cit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "add citation: %v", err)
			return
		}
		writeJSON(w, map[string]string{"id": id})
	}
}

func handleDeleteCitation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ok, err := deps.Citations.Delete(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "delete citation: %v", err)
			return
		}
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "citation %s not found", id)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleFormatCitation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		cit, ok := deps.Citations.Get(id)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "citation %s not found", id)
			return
		}
		style := library.ParseStyle(r.URL.Query().Get("style"))
		writeJSON(w, map[string]string{
			"style":     style.String(),
			"formatted": library.Format(cit, style),
		})
	}
}

func handleExportCitations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := library.ParseExportFormat(r.URL.Query().Get("format"))
		out, err := deps.Citations.Export(format)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "export: %v", err)
			return
		}
		if format == library.ExportCSV {
			w.Header().Set("Content-Type", "text/csv")
		} else {
			w.Header().Set("Content-Type", "application/x-bibtex")
		}
		fmt.Fprint(w, out)
	}
}

func handleListDeadlines(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := deps.Deadlines.List()
		if list == nil {
			list = []library.Deadline{}
		}
		writeJSON(w, list)
	}
}

func handleAddDeadline(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var dl library.Deadline
		if err := json.NewDecoder(r.Body).Decode(&dl); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if dl.Title == "" || dl.Due.IsZero() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title and due are required")
			return
		}

		id, err := deps.Deadlines.Add(dl)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "add deadline: %v", err)
			return
		}
		writeJSON(w, map[string]string{"id": id})
	}
}

func handleDeleteDeadline(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ok, err := deps.Deadlines.Delete(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "delete deadline: %v", err)
			return
		}
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "deadline %s not found", id)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleUpcomingDeadlines(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := parseIntParam(r, "days", 7, 365)
		list := deps.Deadlines.Upcoming(time.Now(), time.Duration(days)*24*time.Hour)
		if list == nil {
			list = []library.Deadline{}
		}
		writeJSON(w, list)
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// errorType classifies an ingestion failure for the API envelope.
func errorType(err error) string {
	var extractErr *extract.Error
	var unavailable *store.UnavailableError
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.As(err, &extractErr):
		return "extraction_failed"
	case errors.As(err, &unavailable):
		return "store_unavailable"
	default:
		return "api_error"
	}
}

// storeError maps store failures onto the envelope; connectivity problems
// surface as 503.
func storeError(w http.ResponseWriter, err error) {
	var unavailable *store.UnavailableError
	if errors.As(err, &unavailable) {
		httpError(w, http.StatusServiceUnavailable, "store_unavailable", "%v", err)
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
