// Package extract turns raw uploaded files into normalized text plus
// lightweight metadata. It supports PDF and plain-text inputs and has no
// side effects; persisting raw files is the caller's concern.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/paperdesk/paperdesk/internal/paper"
)

// ErrUnsupportedFormat is returned for file extensions the extractor does
// not handle. Non-retryable: the user must convert the file.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Error reports a failed extraction for a single file, carrying the
// filename and the underlying cause. Batch callers skip the file and
// continue.
type Error struct {
	Filename string
	Err      error
}

func (e *Error) Error() string { return fmt.Sprintf("extracting %s: %v", e.Filename, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Extraction is the result of a successful extraction.
type Extraction struct {
	Text string
	Meta paper.Metadata
}

// Extractor extracts normalized text from uploaded files. The zero value is
// not usable; construct with New.
type Extractor struct {
	now func() time.Time
}

// New creates an Extractor stamping ProcessedAt with the wall clock.
func New() *Extractor {
	return &Extractor{now: time.Now}
}

// NewWithClock creates an Extractor with a fixed clock for tests.
func NewWithClock(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// Extract converts raw file bytes into text and metadata. Supported inputs
// are .pdf (per-page text concatenated in page order) and .txt (UTF-8).
// Unsupported extensions fail with ErrUnsupportedFormat; parse and decode
// failures fail with *Error.
func (e *Extractor) Extract(raw []byte, filename string) (Extraction, error) {
	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".pdf":
		text, err = extractPDF(raw)
	case ".txt":
		text, err = extractText(raw)
	default:
		return Extraction{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Extraction{}, &Error{Filename: filename, Err: err}
	}

	return Extraction{
		Text: text,
		Meta: paper.Metadata{
			Title:       titleFromContent(text, filename),
			Filename:    filename,
			WordCount:   len(strings.Fields(text)),
			ProcessedAt: e.now().UTC(),
		},
	}, nil
}

func extractPDF(raw []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("parsing pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extracting page %d: %w", i, err)
		}
		sb.WriteString(content)
	}
	return sb.String(), nil
}

func extractText(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", errors.New("invalid UTF-8 encoding")
	}
	return string(raw), nil
}

// titleScanLines bounds how far into the document the title heuristic looks.
const titleScanLines = 10

// titleFromContent picks the first of the leading lines whose trimmed length
// is strictly between 20 and 200 characters, falling back to the filename.
// Best-effort and possibly wrong, but deterministic for identical input.
func titleFromContent(text, filename string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > titleScanLines {
		lines = lines[:titleScanLines]
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 20 && len(trimmed) < 200 {
			return trimmed
		}
	}
	return filename
}
