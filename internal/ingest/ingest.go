// Package ingest runs the paper ingestion pipeline: content extraction,
// identity assignment, and embedding-store upsert, with per-file outcomes
// for batches.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/paperdesk/paperdesk/internal/extract"
	"github.com/paperdesk/paperdesk/internal/paper"
)

// defaultConcurrency bounds how many files of a batch are processed at once.
const defaultConcurrency = 4

// Extractor turns raw file bytes into text and metadata.
type Extractor interface {
	Extract(raw []byte, filename string) (extract.Extraction, error)
}

// Upserter persists a document into the embedding store.
type Upserter interface {
	Upsert(ctx context.Context, doc paper.Document) error
}

// File is one uploaded file.
type File struct {
	Name string
	Data []byte
}

// Outcome is the per-file result of an ingestion. Err is nil on success.
type Outcome struct {
	Filename string
	ID       string
	Title    string
	Meta     paper.Metadata
	Err      error
}

// Batch collects the outcomes of one batch ingestion, in input order.
type Batch struct {
	ID       string
	Outcomes []Outcome
}

// Service wires the ingestion pipeline. Construct with New.
type Service struct {
	extractor   Extractor
	store       Upserter
	maxFileSize int64
	formats     map[string]bool
	concurrency int
	citations   CitationRecorder
	logger      *slog.Logger
}

// Config bounds what the service accepts.
type Config struct {
	// MaxFileSize in bytes; 0 disables the check.
	MaxFileSize int64
	// SupportedFormats are allowed extensions like ".pdf"; empty means the
	// extractor's own support decides.
	SupportedFormats []string
	// Concurrency bounds batch parallelism; <= 0 uses the default.
	Concurrency int
}

// New creates a Service.
func New(extractor Extractor, store Upserter, cfg Config) *Service {
	formats := make(map[string]bool, len(cfg.SupportedFormats))
	for _, f := range cfg.SupportedFormats {
		formats[strings.ToLower(f)] = true
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Service{
		extractor:   extractor,
		store:       store,
		maxFileSize: cfg.MaxFileSize,
		formats:     formats,
		concurrency: concurrency,
		logger:      slog.Default(),
	}
}

// IngestFile runs the full pipeline for one file: validate, extract, assign
// the content-addressed id, upsert. The returned Outcome carries a typed
// error on failure; it never panics or aborts anything beyond this file.
func (s *Service) IngestFile(ctx context.Context, f File) Outcome {
	out := Outcome{Filename: f.Name}

	if s.maxFileSize > 0 && int64(len(f.Data)) > s.maxFileSize {
		out.Err = fmt.Errorf("file %s exceeds maximum size (%d > %d bytes)", f.Name, len(f.Data), s.maxFileSize)
		return out
	}
	if len(s.formats) > 0 {
		ext := strings.ToLower(extOf(f.Name))
		if !s.formats[ext] {
			out.Err = fmt.Errorf("%w: %q", extract.ErrUnsupportedFormat, ext)
			return out
		}
	}

	ex, err := s.extractor.Extract(f.Data, f.Name)
	if err != nil {
		out.Err = err
		return out
	}

	doc := paper.Document{
		ID:       paper.AssignID([]byte(ex.Text)),
		Content:  ex.Text,
		Metadata: ex.Meta,
	}
	if err := s.store.Upsert(ctx, doc); err != nil {
		out.Err = err
		return out
	}

	out.ID = doc.ID
	out.Title = doc.Metadata.Title
	out.Meta = doc.Metadata
	if s.citations != nil {
		s.recordCitations(doc)
	}
	s.logger.Info("paper ingested", "id", doc.ID, "filename", f.Name, "words", doc.Metadata.WordCount)
	return out
}

// IngestBatch processes the files with bounded concurrency. One file's
// failure never aborts the rest; outcomes are returned in input order.
func (s *Service) IngestBatch(ctx context.Context, files []File) Batch {
	batch := Batch{
		ID:       uuid.New().String(),
		Outcomes: make([]Outcome, len(files)),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, f := range files {
		g.Go(func() error {
			batch.Outcomes[i] = s.IngestFile(gCtx, f)
			return nil // per-file errors live in the outcome
		})
	}
	g.Wait()

	return batch
}

func extOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}
