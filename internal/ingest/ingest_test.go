package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/paperdesk/paperdesk/internal/extract"
	"github.com/paperdesk/paperdesk/internal/paper"
)

// memStore records upserts keyed by id.
type memStore struct {
	mu   sync.Mutex
	docs map[string]paper.Document
	err  error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]paper.Document)}
}

func (m *memStore) Upsert(ctx context.Context, doc paper.Document) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func newService(t *testing.T, store Upserter, cfg Config) *Service {
	t.Helper()
	return New(extract.New(), store, cfg)
}

func TestIngestFile_Success(t *testing.T) {
	st := newMemStore()
	s := newService(t, st, Config{})

	content := "A Reasonable Research Paper Title For The Heuristic\nbody text"
	out := s.IngestFile(context.Background(), File{Name: "paper.txt", Data: []byte(content)})
	if out.Err != nil {
		t.Fatalf("IngestFile: %v", out.Err)
	}
	if out.ID != paper.AssignID([]byte(content)) {
		t.Errorf("ID = %q, want content-derived id", out.ID)
	}
	if out.Title != "A Reasonable Research Paper Title For The Heuristic" {
		t.Errorf("Title = %q", out.Title)
	}
	if _, ok := st.docs[out.ID]; !ok {
		t.Error("document not upserted")
	}
}

func TestIngestFile_IdempotentAcrossFilenames(t *testing.T) {
	st := newMemStore()
	s := newService(t, st, Config{})
	content := []byte("Identical Content Under Two Different Filenames Here\nbody")

	a := s.IngestFile(context.Background(), File{Name: "one.txt", Data: content})
	b := s.IngestFile(context.Background(), File{Name: "two.txt", Data: content})
	if a.Err != nil || b.Err != nil {
		t.Fatalf("errs: %v, %v", a.Err, b.Err)
	}
	if a.ID != b.ID {
		t.Errorf("ids differ for identical content: %q vs %q", a.ID, b.ID)
	}
	if len(st.docs) != 1 {
		t.Errorf("store has %d records, want exactly 1", len(st.docs))
	}
}

func TestIngestFile_SizeLimit(t *testing.T) {
	s := newService(t, newMemStore(), Config{MaxFileSize: 8})
	out := s.IngestFile(context.Background(), File{Name: "big.txt", Data: []byte("123456789")})
	if out.Err == nil {
		t.Error("expected size-limit error")
	}
}

func TestIngestFile_FormatRestriction(t *testing.T) {
	s := newService(t, newMemStore(), Config{SupportedFormats: []string{".pdf"}})
	out := s.IngestFile(context.Background(), File{Name: "notes.txt", Data: []byte("hi")})
	if !errors.Is(out.Err, extract.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", out.Err)
	}
}

func TestIngestBatch_PartialFailureContinues(t *testing.T) {
	st := newMemStore()
	s := newService(t, st, Config{})

	files := []File{
		{Name: "good.txt", Data: []byte("The First Valid Paper In This Batch Of Uploads\nbody")},
		{Name: "bad.docx", Data: []byte("unsupported")},
		{Name: "also-good.txt", Data: []byte("The Second Valid Paper In This Batch Of Uploads\nbody")},
	}
	batch := s.IngestBatch(context.Background(), files)

	if batch.ID == "" {
		t.Error("batch id not assigned")
	}
	if len(batch.Outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(batch.Outcomes))
	}
	if batch.Outcomes[0].Filename != "good.txt" || batch.Outcomes[2].Filename != "also-good.txt" {
		t.Error("outcomes not in input order")
	}
	if batch.Outcomes[0].Err != nil || batch.Outcomes[2].Err != nil {
		t.Errorf("valid files failed: %v, %v", batch.Outcomes[0].Err, batch.Outcomes[2].Err)
	}
	if !errors.Is(batch.Outcomes[1].Err, extract.ErrUnsupportedFormat) {
		t.Errorf("outcome[1].Err = %v, want ErrUnsupportedFormat", batch.Outcomes[1].Err)
	}
	if len(st.docs) != 2 {
		t.Errorf("store has %d records, want 2", len(st.docs))
	}
}

func TestIngestBatch_StoreFailureIsPerFile(t *testing.T) {
	st := newMemStore()
	st.err = errors.New("index unreachable")
	s := newService(t, st, Config{})

	batch := s.IngestBatch(context.Background(), []File{
		{Name: "a.txt", Data: []byte("A Paper That Will Fail To Reach The Index Today\nbody")},
	})
	if batch.Outcomes[0].Err == nil {
		t.Error("expected store failure in outcome")
	}
}
