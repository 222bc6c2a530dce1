package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/dgallion1/filingrag/internal/chunker"
	"github.com/dgallion1/filingrag/internal/edgar"
	"github.com/dgallion1/filingrag/internal/parser"
	"github.com/dgallion1/filingrag/internal/vectorstore"
)

var (
	businessText = strings.Repeat("The Company designs, manufactures and markets smartphones. ", 6)
	mdaText      = strings.Repeat("Net sales decreased due to foreign currency headwinds. ", 7)
)

func filingHTML() string {
	return `<html><body>
<p>Apple Inc. Annual Report</p>
<p>ITEM 1. BUSINESS</p><p>` + businessText + `</p>
<p>ITEM 7. MANAGEMENT'S DISCUSSION</p><p>` + mdaText + `</p>
<table>
<tr><th>Metric</th><th>2023</th><th>2022</th></tr>
<tr><td>Total net sales revenue</td><td>383,285</td><td>394,328</td></tr>
</table>
<p>ITEM 17. EXHIBITS</p><p>` + businessText + `</p>
</body></html>`
}

type fakeSource struct {
	subs      *edgar.Submissions
	subsErr   error
	docs      map[string]string
	mu        sync.Mutex
	downloads []string
}

func newFakeSource() *fakeSource {
	subs := &edgar.Submissions{CIK: "320193", Name: "Apple Inc."}
	subs.Filings.Recent = edgar.RecentFilings{
		AccessionNumber: []string{"0000320193-23-000106", "0000320193-23-000077", "0000320193-22-000108"},
		FilingDate:      []string{"2023-11-03", "2023-08-04", "2022-10-28"},
		Form:            []string{"10-K", "8-K", "10-K"},
		PrimaryDocument: []string{"aapl-20230930.htm", "aapl-8k.htm", "aapl-20220924.htm"},
	}
	return &fakeSource{
		subs: subs,
		docs: map[string]string{
			"0000320193-23-000106": filingHTML(),
			"0000320193-22-000108": filingHTML(),
		},
	}
}

func (f *fakeSource) Submissions(context.Context, string) (*edgar.Submissions, error) {
	return f.subs, f.subsErr
}

func (f *fakeSource) FilingDir(cik, accession string) (string, error) {
	return "https://www.sec.gov/Archives/edgar/data/" + cik + "/" + edgar.AccessionPath(accession) + "/", nil
}

func (f *fakeSource) DownloadFiling(_ context.Context, cik, accession, _ string) (string, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, accession)
	f.mu.Unlock()
	doc, ok := f.docs[accession]
	if !ok {
		return "", &edgar.StatusError{URL: accession, StatusCode: 404}
	}
	return doc, nil
}

type storedRecord struct {
	text string
	meta vectorstore.Metadata
}

type fakeStore struct {
	mu       sync.Mutex
	records  map[string]storedRecord
	upserts  int
	existing map[string]bool
	deleted  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]storedRecord{}, existing: map[string]bool{}}
}

func (s *fakeStore) Upsert(_ context.Context, ids, texts []string, _ [][]float32, metas []vectorstore.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	for i, id := range ids {
		s.records[id] = storedRecord{text: texts[i], meta: metas[i]}
	}
	return nil
}

func (s *fakeStore) HasAccession(_ context.Context, accession string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing[accession], nil
}

func (s *fakeStore) DeleteAccession(_ context.Context, accession string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, accession)
	return 0, nil
}

type fakeEmbedder struct{ fail bool }

func (e fakeEmbedder) Embed(_ context.Context, texts []string) [][]float32 {
	if e.fail {
		return nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out
}

func newTestWorker(t *testing.T, src *fakeSource, store *fakeStore, emb fakeEmbedder) *Worker {
	t.Helper()
	cfg := WorkerConfig{Chunk: chunker.DefaultConfig(), BatchSize: 1, TablesDir: t.TempDir()}
	return NewWorker(src, parser.New(nil), emb, store, edgar.NewRateLimiter(0), cfg, nil)
}

func tenK(src *fakeSource, i int) edgar.Filing {
	return src.subs.Recent("10-K")[i]
}

var chunkIDPattern = regexp.MustCompile(`^320193_10K_2023_000032019323000106_Item(1|7)_00000[0-9]_[0-9a-f]{32}$`)

func TestIndexFiling_IndexesTitledSections(t *testing.T) {
	src, store := newFakeSource(), newFakeStore()
	w := newTestWorker(t, src, store, fakeEmbedder{})

	rep, err := w.IndexFiling(context.Background(), "Apple Inc.", tenK(src, 0), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.ChunksIndexed != 2 || rep.ChunksFailed != 0 {
		t.Fatalf("expected 2 chunks indexed, got %+v", rep)
	}
	if rep.Sections != 4 {
		t.Errorf("expected preamble plus three item sections, got %d", rep.Sections)
	}
	if store.upserts != 2 {
		t.Errorf("expected one upsert per batch of 1, got %d", store.upserts)
	}
	if rep.TablesStored != 1 {
		t.Errorf("expected 1 table stored, got %d", rep.TablesStored)
	}
	if rep.ContentHash != ContentHashHex([]byte(filingHTML())) {
		t.Error("expected content hash of downloaded document")
	}

	sections := map[string]bool{}
	for id, rec := range store.records {
		if !chunkIDPattern.MatchString(id) {
			t.Errorf("unexpected chunk id %q", id)
		}
		m := rec.meta
		sections[m["section"].(string)] = true
		if m["fiscal_year"] != 2023 || m["company"] != "Apple Inc." || m["content_type"] != "narrative" {
			t.Errorf("unexpected metadata %v", m)
		}
		if m["accession"] != "0000320193-23-000106" || m["source"] != "SEC EDGAR" || m["filing_type"] != "10-K" {
			t.Errorf("unexpected filing metadata %v", m)
		}
		header := "[" + m["section"].(string) + " - " + m["section_title"].(string) + "]\n"
		if !strings.HasPrefix(rec.text, header) {
			t.Errorf("expected chunk to start with %q, got %q", header, rec.text[:40])
		}
		if strings.Contains(rec.text, "383,285") {
			t.Error("financial table leaked into a chunk")
		}
	}
	if !sections["Item 1"] || !sections["Item 7"] || len(sections) != 2 {
		t.Errorf("expected chunks for Item 1 and Item 7 only, got %v", sections)
	}

	base := filepath.Join(w.cfg.TablesDir, "320193", "000032019323000106")
	for _, ext := range []string{".xlsx", ".json"} {
		if _, err := os.Stat(base + ext); err != nil {
			t.Errorf("expected table export %s: %v", ext, err)
		}
	}
}

func TestIndexFiling_SkipsIndexedUnlessForced(t *testing.T) {
	src, store := newFakeSource(), newFakeStore()
	store.existing["0000320193-23-000106"] = true
	w := newTestWorker(t, src, store, fakeEmbedder{})

	rep, err := w.IndexFiling(context.Background(), "Apple Inc.", tenK(src, 0), false)
	if err != nil || !rep.Skipped {
		t.Fatalf("expected skip, got %+v %v", rep, err)
	}
	if len(src.downloads) != 0 {
		t.Error("expected no download for an indexed filing")
	}

	rep, err = w.IndexFiling(context.Background(), "Apple Inc.", tenK(src, 0), true)
	if err != nil || rep.Skipped || rep.ChunksIndexed != 2 {
		t.Fatalf("expected forced re-index, got %+v %v", rep, err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "0000320193-23-000106" {
		t.Errorf("expected prior records deleted, got %v", store.deleted)
	}
}

func TestIndexFiling_EmbeddingFailureCounted(t *testing.T) {
	src, store := newFakeSource(), newFakeStore()
	w := newTestWorker(t, src, store, fakeEmbedder{fail: true})

	rep, err := w.IndexFiling(context.Background(), "Apple Inc.", tenK(src, 0), false)
	if err != nil {
		t.Fatalf("expected batch failure to be absorbed, got %v", err)
	}
	if rep.ChunksIndexed != 0 || rep.ChunksFailed != 2 {
		t.Errorf("expected 2 lost chunks, got %+v", rep)
	}
	if store.upserts != 0 {
		t.Errorf("expected no upserts, got %d", store.upserts)
	}
}

func TestProcess_Completed(t *testing.T) {
	src, store := newFakeSource(), newFakeStore()
	w := newTestWorker(t, src, store, fakeEmbedder{})
	job := NewJob("job-1", Request{CIK: "320193"})

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s: %v", snap.Status, snap.Progress.Errors)
	}
	if snap.Company != "Apple Inc." {
		t.Errorf("expected company recorded, got %q", snap.Company)
	}
	if snap.Progress.FilingsTotal != 2 || snap.Progress.FilingsProcessed != 2 {
		t.Errorf("expected the two 10-K filings processed, got %+v", snap.Progress)
	}
	if snap.Progress.ChunksIndexed != 4 || snap.Progress.TablesStored != 2 {
		t.Errorf("unexpected totals %+v", snap.Progress)
	}
	for _, acc := range src.downloads {
		if acc == "0000320193-23-000077" {
			t.Error("expected 8-K filing ignored")
		}
	}
}

func TestProcess_PartialOnDownloadFailure(t *testing.T) {
	src, store := newFakeSource(), newFakeStore()
	delete(src.docs, "0000320193-22-000108")
	w := newTestWorker(t, src, store, fakeEmbedder{})
	job := NewJob("job-2", Request{CIK: "320193"})

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusPartial {
		t.Fatalf("expected partial, got %s", snap.Status)
	}
	if snap.Progress.FilingsFailed != 1 || len(snap.Progress.Errors) != 1 {
		t.Errorf("expected one failed filing, got %+v", snap.Progress)
	}
	if !strings.Contains(snap.Progress.Errors[0], "0000320193-22-000108") {
		t.Errorf("expected error to name the accession, got %q", snap.Progress.Errors[0])
	}
	if snap.Progress.Filings[1].Error == "" {
		t.Error("expected filing report to carry the error")
	}
}

func TestProcess_LimitAndAccessions(t *testing.T) {
	src, store := newFakeSource(), newFakeStore()
	w := newTestWorker(t, src, store, fakeEmbedder{})

	job := NewJob("job-3", Request{CIK: "320193", Limit: 1})
	w.Process(context.Background(), job)
	if len(src.downloads) != 1 || src.downloads[0] != "0000320193-23-000106" {
		t.Errorf("expected only the latest filing, got %v", src.downloads)
	}

	src.downloads = nil
	job = NewJob("job-4", Request{CIK: "320193", Accessions: []string{"0000320193-22-000108"}})
	w.Process(context.Background(), job)
	if len(src.downloads) != 1 || src.downloads[0] != "0000320193-22-000108" {
		t.Errorf("expected only the named filing, got %v", src.downloads)
	}

	job = NewJob("job-5", Request{CIK: "320193", FormType: "20-F"})
	w.Process(context.Background(), job)
	if snap := job.Snapshot(); snap.Status != StatusFailed || snap.Progress.FilingsTotal != 0 {
		t.Errorf("expected failure with no matching filings, got %+v", snap)
	}
}

func TestProcess_SubmissionsFailure(t *testing.T) {
	src, store := newFakeSource(), newFakeStore()
	src.subsErr = errors.New("connection reset")
	w := newTestWorker(t, src, store, fakeEmbedder{})
	job := NewJob("job-6", Request{CIK: "320193"})

	w.Process(context.Background(), job)

	if snap := job.Snapshot(); snap.Status != StatusFailed || snap.Phase != "submissions" {
		t.Errorf("expected submissions failure, got %s/%s", snap.Status, snap.Phase)
	}
}

func TestProcess_AllSkipped(t *testing.T) {
	src, store := newFakeSource(), newFakeStore()
	store.existing["0000320193-23-000106"] = true
	store.existing["0000320193-22-000108"] = true
	w := newTestWorker(t, src, store, fakeEmbedder{})
	job := NewJob("job-7", Request{CIK: "320193"})

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusSkipped || snap.Progress.FilingsSkipped != 2 {
		t.Errorf("expected all filings skipped, got %s %+v", snap.Status, snap.Progress)
	}
}
