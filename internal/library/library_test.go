package library

import (
	"strings"
	"testing"
	"time"
)

func TestCitationsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenCitations(dir)
	if err != nil {
		t.Fatalf("OpenCitations: %v", err)
	}

	id, err := c.Add(Citation{
		Title:    "Attention Is All You Need",
		Authors:  []string{"Vaswani, A.", "Shazeer, N."},
		Year:     2017,
		Journal:  "NeurIPS",
		Keywords: []string{"transformers"},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !strings.HasPrefix(id, "cite_") {
		t.Errorf("id = %q, want cite_ prefix", id)
	}

	// Reopen from disk, mutations must have persisted.
	c2, err := OpenCitations(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := c2.Get(id)
	if !ok {
		t.Fatal("citation lost across reopen")
	}
	if got.Title != "Attention Is All You Need" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.AddedAt.IsZero() {
		t.Error("AddedAt not set")
	}
}

func TestCitationsSearch(t *testing.T) {
	c, err := OpenCitations(t.TempDir())
	if err != nil {
		t.Fatalf("OpenCitations: %v", err)
	}
	mustAdd := func(cit Citation) {
		t.Helper()
		if _, err := c.Add(cit); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	mustAdd(Citation{Title: "Deep Residual Learning", Authors: []string{"He, K."}})
	mustAdd(Citation{Title: "Word Vectors", Authors: []string{"Mikolov, T."}, Keywords: []string{"embeddings"}})

	if got := c.Search("residual"); len(got) != 1 || got[0].Title != "Deep Residual Learning" {
		t.Errorf("title search: %+v", got)
	}
	if got := c.Search("mikolov"); len(got) != 1 {
		t.Errorf("author search: %+v", got)
	}
	if got := c.Search("EMBEDDINGS"); len(got) != 1 {
		t.Errorf("keyword search: %+v", got)
	}
	if got := c.Search(""); len(got) != 2 {
		t.Errorf("empty query should return all, got %d", len(got))
	}
	if got := c.Search("nope"); len(got) != 0 {
		t.Errorf("no-match search: %+v", got)
	}
}

func TestCitationsDelete(t *testing.T) {
	c, err := OpenCitations(t.TempDir())
	if err != nil {
		t.Fatalf("OpenCitations: %v", err)
	}
	id, _ := c.Add(Citation{Title: "To Be Removed"})

	ok, err := c.Delete(id)
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	if ok, _ := c.Delete(id); ok {
		t.Error("second delete reported true")
	}
	if _, found := c.Get(id); found {
		t.Error("citation still present after delete")
	}
}

func TestFormatStyles(t *testing.T) {
	cit := Citation{
		Title:   "On Testing",
		Authors: []string{"Doe, J."},
		Year:    2024,
		Journal: "J. Softw.",
		Volume:  "12",
		Pages:   "1-10",
	}

	if got := Format(cit, StyleAPA); got != "Doe, J. (2024). On Testing. J. Softw., 12, 1-10" {
		t.Errorf("APA = %q", got)
	}
	if got := Format(cit, StyleMLA); got != "Doe, J. \"On Testing.\" J. Softw., 2024." {
		t.Errorf("MLA = %q", got)
	}
	if got := Format(cit, StyleChicago); got != "Doe, J. \"On Testing.\" J. Softw. (2024)." {
		t.Errorf("Chicago = %q", got)
	}

	// Missing authors render as Unknown, optional APA parts drop out.
	sparse := Citation{Title: "Sparse", Year: 2020}
	if got := Format(sparse, StyleAPA); got != "Unknown (2020). Sparse." {
		t.Errorf("sparse APA = %q", got)
	}
}

func TestParseStyleDefaults(t *testing.T) {
	cases := map[string]Style{
		"apa":     StyleAPA,
		"MLA":     StyleMLA,
		"Chicago": StyleChicago,
		"":        StyleAPA,
		"ieee":    StyleAPA,
	}
	for in, want := range cases {
		if got := ParseStyle(in); got != want {
			t.Errorf("ParseStyle(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestExport(t *testing.T) {
	c, err := OpenCitations(t.TempDir())
	if err != nil {
		t.Fatalf("OpenCitations: %v", err)
	}

	// Empty list exports to empty output.
	if out, err := c.Export(ExportBibTeX); err != nil || out != "" {
		t.Errorf("empty export = %q, %v", out, err)
	}

	id, _ := c.Add(Citation{Title: "Entry One", Authors: []string{"A"}, Year: 2021, Journal: "J"})
	c.Add(Citation{Title: "Entry Two", Authors: []string{"B"}, Year: 2022, Journal: "K"})

	bib, err := c.Export(ExportBibTeX)
	if err != nil {
		t.Fatalf("bibtex export: %v", err)
	}
	if !strings.Contains(bib, "@article{"+id+",") {
		t.Errorf("bibtex missing entry id: %s", bib)
	}
	if !strings.Contains(bib, "title = {Entry Two}") {
		t.Errorf("bibtex missing second entry: %s", bib)
	}

	csvOut, err := c.Export(ParseExportFormat("csv"))
	if err != nil {
		t.Fatalf("csv export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(csvOut), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv has %d lines, want header + 2 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,title,authors") {
		t.Errorf("csv header = %q", lines[0])
	}
}

func TestDeadlinesLifecycle(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDeadlines(dir)
	if err != nil {
		t.Fatalf("OpenDeadlines: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later, _ := d.Add(Deadline{Title: "Journal revision", Due: now.AddDate(0, 0, 30), Priority: "Medium", Category: "Journal"})
	soon, _ := d.Add(Deadline{Title: "Conference submission", Due: now.AddDate(0, 0, 5), Priority: "High", Category: "Conference"})
	past, _ := d.Add(Deadline{Title: "Missed review", Due: now.AddDate(0, 0, -1), Priority: "Low", Category: "Review"})

	list := d.List()
	if len(list) != 3 {
		t.Fatalf("List returned %d, want 3", len(list))
	}
	if list[0].ID != past || list[1].ID != soon || list[2].ID != later {
		t.Errorf("list not sorted by due date: %v, %v, %v", list[0].ID, list[1].ID, list[2].ID)
	}

	up := d.Upcoming(now, 7*24*time.Hour)
	if len(up) != 1 || up[0].ID != soon {
		t.Errorf("Upcoming = %+v, want only the 5-day deadline", up)
	}

	// Persisted across reopen.
	d2, err := OpenDeadlines(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(d2.List()) != 3 {
		t.Error("deadlines lost across reopen")
	}

	ok, err := d2.Delete(past)
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	if ok, _ := d2.Delete("deadline_missing"); ok {
		t.Error("deleting unknown id reported true")
	}
}

func TestDeadlinesUpcoming_HonorsReminderDays(t *testing.T) {
	d, err := OpenDeadlines(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDeadlines: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reminded, _ := d.Add(Deadline{Title: "Grant report", Due: now.AddDate(0, 0, 20), ReminderDays: 30})
	quiet, _ := d.Add(Deadline{Title: "Thesis chapter", Due: now.AddDate(0, 0, 20), ReminderDays: 5})
	d.Add(Deadline{Title: "Workshop talk", Due: now.AddDate(0, 0, 2), ReminderDays: 1})

	up := d.Upcoming(now, 7*24*time.Hour)
	if len(up) != 2 {
		t.Fatalf("Upcoming = %+v, want 2 entries", up)
	}
	// Sorted by due date: the in-window deadline first, then the far one
	// whose own reminder window has started.
	if up[0].Title != "Workshop talk" || up[1].ID != reminded {
		t.Errorf("Upcoming = %v, %v", up[0].Title, up[1].Title)
	}
	for _, dl := range up {
		if dl.ID == quiet {
			t.Error("deadline outside both windows included")
		}
	}
}
