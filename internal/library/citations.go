// Package library manages the researcher's citation list and deadline
// tracker. Both are small flat JSON files under the data directory;
// managers load on open and persist on every mutation.
package library

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Citation is one bibliography entry.
type Citation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Authors  []string  `json:"authors"`
	Year     int       `json:"year"`
	Journal  string    `json:"journal"`
	Volume   string    `json:"volume"`
	Pages    string    `json:"pages"`
	DOI      string    `json:"doi"`
	URL      string    `json:"url"`
	Keywords []string  `json:"keywords"`
	Notes    string    `json:"notes"`
	AddedAt  time.Time `json:"added_at"`
}

// Style selects a citation formatting convention.
type Style int

const (
	StyleAPA Style = iota
	StyleMLA
	StyleChicago
)

// ParseStyle maps a user-supplied style name to a Style. Unknown or empty
// names fall back to APA.
func ParseStyle(s string) Style {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mla":
		return StyleMLA
	case "chicago":
		return StyleChicago
	default:
		return StyleAPA
	}
}

func (s Style) String() string {
	switch s {
	case StyleMLA:
		return "mla"
	case StyleChicago:
		return "chicago"
	default:
		return "apa"
	}
}

// ExportFormat selects a bibliography export encoding.
type ExportFormat int

const (
	ExportBibTeX ExportFormat = iota
	ExportCSV
)

// ParseExportFormat maps a format name to an ExportFormat, defaulting to
// BibTeX for unknown or empty names.
func ParseExportFormat(s string) ExportFormat {
	if strings.EqualFold(strings.TrimSpace(s), "csv") {
		return ExportCSV
	}
	return ExportBibTeX
}

// Citations is a mutex-guarded manager over a flat citations.json file.
type Citations struct {
	mu   sync.Mutex
	path string
	list []Citation
	now  func() time.Time
}

// OpenCitations loads the citation list from dataDir, creating the
// directory if needed. A missing file means an empty list; a corrupt file
// is an error rather than silent data loss.
func OpenCitations(dataDir string) (*Citations, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	c := &Citations{
		path: filepath.Join(dataDir, "citations.json"),
		now:  time.Now,
	}
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read citations: %w", err)
	}
	if err := json.Unmarshal(raw, &c.list); err != nil {
		return nil, fmt.Errorf("parse citations: %w", err)
	}
	return c, nil
}

func (c *Citations) save() error {
	raw, err := json.MarshalIndent(c.list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, raw, 0o644); err != nil {
		return fmt.Errorf("write citations: %w", err)
	}
	return nil
}

// Add stores a citation and returns its id. An empty ID is assigned; an
// empty Year defaults to the current year.
func (c *Citations) Add(cit Citation) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cit.ID == "" {
		id := uuid.New()
		cit.ID = fmt.Sprintf("cite_%x", id[:4])
	}
	if cit.Year == 0 {
		cit.Year = c.now().Year()
	}
	cit.AddedAt = c.now()

	c.list = append(c.list, cit)
	if err := c.save(); err != nil {
		return "", err
	}
	return cit.ID, nil
}

// Get returns the citation with the given id.
func (c *Citations) Get(id string) (Citation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cit := range c.list {
		if cit.ID == id {
			return cit, true
		}
	}
	return Citation{}, false
}

// List returns all citations in insertion order.
func (c *Citations) List() []Citation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Citation, len(c.list))
	copy(out, c.list)
	return out
}

// Search matches the query as a case-insensitive substring of the title,
// any author, or any keyword. An empty query returns everything.
func (c *Citations) Search(query string) []Citation {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return c.List()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Citation
	for _, cit := range c.list {
		if citationMatches(cit, query) {
			out = append(out, cit)
		}
	}
	return out
}

func citationMatches(cit Citation, query string) bool {
	if strings.Contains(strings.ToLower(cit.Title), query) {
		return true
	}
	for _, a := range cit.Authors {
		if strings.Contains(strings.ToLower(a), query) {
			return true
		}
	}
	for _, k := range cit.Keywords {
		if strings.Contains(strings.ToLower(k), query) {
			return true
		}
	}
	return false
}

// Delete removes a citation, reporting whether it existed.
func (c *Citations) Delete(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cit := range c.list {
		if cit.ID == id {
			c.list = append(c.list[:i], c.list[i+1:]...)
			return true, c.save()
		}
	}
	return false, nil
}

// Format renders a citation in the given style.
func Format(cit Citation, style Style) string {
	switch style {
	case StyleMLA:
		return fmt.Sprintf("%s. \"%s.\" %s, %d.", authorList(cit), cit.Title, cit.Journal, cit.Year)
	case StyleChicago:
		return fmt.Sprintf("%s. \"%s.\" %s (%d).", authorList(cit), cit.Title, cit.Journal, cit.Year)
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "%s (%d). %s.", authorList(cit), cit.Year, cit.Title)
		if cit.Journal != "" {
			b.WriteString(" " + cit.Journal)
		}
		if cit.Volume != "" {
			b.WriteString(", " + cit.Volume)
		}
		if cit.Pages != "" {
			b.WriteString(", " + cit.Pages)
		}
		return b.String()
	}
}

func authorList(cit Citation) string {
	if len(cit.Authors) == 0 {
		return "Unknown"
	}
	return strings.Join(cit.Authors, ", ")
}

// Export renders the whole citation list in the given format.
func (c *Citations) Export(format ExportFormat) (string, error) {
	list := c.List()
	if len(list) == 0 {
		return "", nil
	}
	if format == ExportCSV {
		return exportCSV(list)
	}
	return exportBibTeX(list), nil
}

func exportBibTeX(list []Citation) string {
	entries := make([]string, 0, len(list))
	for _, cit := range list {
		entries = append(entries, fmt.Sprintf(`@article{%s,
    title = {%s},
    author = {%s},
    year = {%d},
    journal = {%s},
    volume = {%s},
    pages = {%s},
    doi = {%s}
}`, cit.ID, cit.Title, authorList(cit), cit.Year, cit.Journal, cit.Volume, cit.Pages, cit.DOI))
	}
	return strings.Join(entries, "\n\n")
}

func exportCSV(list []Citation) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write([]string{"id", "title", "authors", "year", "journal", "volume", "pages", "doi", "url", "keywords", "notes", "added_at"}); err != nil {
		return "", err
	}
	for _, cit := range list {
		rec := []string{
			cit.ID,
			cit.Title,
			strings.Join(cit.Authors, "; "),
			fmt.Sprintf("%d", cit.Year),
			cit.Journal,
			cit.Volume,
			cit.Pages,
			cit.DOI,
			cit.URL,
			strings.Join(cit.Keywords, "; "),
			cit.Notes,
			cit.AddedAt.Format(time.RFC3339),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	return b.String(), w.Error()
}
