package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/paperdesk/paperdesk/internal/library"
	"github.com/paperdesk/paperdesk/internal/paper"
)

// maxCitationsPerPaper caps how many inline references a single ingestion
// records; dense papers repeat the same handful of references anyway.
const maxCitationsPerPaper = 10

// citationPatterns match inline author-year references like (Doe, 2020)
// or [Doe & Smith, 2021]. Capture groups: author part, year.
var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\(([A-Z][a-zA-Z &,]+?),\s*(\d{4})\)`),
	regexp.MustCompile(`\[([A-Z][a-zA-Z &,]+?),\s*(\d{4})\]`),
}

// CitationRecorder stores citations discovered during ingestion.
type CitationRecorder interface {
	Add(cit library.Citation) (string, error)
}

// ExtractCitations scans paper text for inline author-year references and
// returns them as citation entries, deduplicated and capped. The parse is
// best effort: the reference text becomes the title and the author part is
// kept whole, ampersands and all.
func ExtractCitations(text, source string) []library.Citation {
	seen := make(map[string]bool)
	var out []library.Citation

	for _, pat := range citationPatterns {
		for _, m := range pat.FindAllStringSubmatch(text, -1) {
			raw := m[0]
			if seen[raw] {
				continue
			}
			seen[raw] = true

			year, _ := strconv.Atoi(m[2])
			out = append(out, library.Citation{
				Title:   raw,
				Authors: []string{strings.TrimSpace(m[1])},
				Year:    year,
				Notes:   "auto-extracted from " + source,
			})
			if len(out) == maxCitationsPerPaper {
				return out
			}
		}
	}
	return out
}

// RecordCitationsTo enables inline citation capture: every successfully
// ingested paper has its extracted references added to rec.
func (s *Service) RecordCitationsTo(rec CitationRecorder) {
	s.citations = rec
}

// recordCitations adds the references found in doc to the recorder. Failures
// are logged and swallowed; the paper itself is already stored.
func (s *Service) recordCitations(doc paper.Document) {
	for _, cit := range ExtractCitations(doc.Content, doc.Metadata.Title) {
		if _, err := s.citations.Add(cit); err != nil {
			s.logger.Warn("recording citation failed", "paper", doc.ID, "err", err)
			return
		}
	}
}
