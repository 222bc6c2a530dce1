package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgallion1/filingrag/internal/doctree"
	"github.com/dgallion1/filingrag/internal/llm"
	"github.com/dgallion1/filingrag/internal/parser"
	"github.com/dgallion1/filingrag/internal/pipeline"
	"github.com/dgallion1/filingrag/internal/retrieval"
	"github.com/dgallion1/filingrag/internal/vectorstore"
)

const testKey = "test-key"

type fakeJobs struct {
	jobs map[string]*pipeline.Job
	full bool
}

func (f *fakeJobs) Submit(req pipeline.Request) (*pipeline.Job, error) {
	job := pipeline.NewJob("job-1", req)
	f.jobs[job.ID] = job
	if f.full {
		return job, errors.New("job queue is full (1)")
	}
	return job, nil
}

func (f *fakeJobs) GetJob(id string) *pipeline.Job { return f.jobs[id] }
func (f *fakeJobs) QueueDepth() int { return len(f.jobs) }

type fakeRetriever struct {
	res *retrieval.Result
	err error
	got retrieval.Request
}

func (f *fakeRetriever) Retrieve(_ context.Context, req retrieval.Request) (*retrieval.Result, error) {
	f.got = req
	return f.res, f.err
}

type fakeIndex struct {
	accessions map[string]int64
}

func (f *fakeIndex) HasAccession(_ context.Context, acc string) (bool, error) {
	return f.accessions[acc] > 0, nil
}

func (f *fakeIndex) DeleteAccession(_ context.Context, acc string) (int64, error) {
	n := f.accessions[acc]
	delete(f.accessions, acc)
	return n, nil
}

func (f *fakeIndex) Count(context.Context) (int, error) {
	total := 0
	for _, n := range f.accessions {
		total += int(n)
	}
	return total, nil
}

type fakeGenerator struct{ prompt string }

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return "Revenue grew.", nil
}

type testEnv struct {
	srv       *Server
	jobs      *fakeJobs
	retriever *fakeRetriever
	index     *fakeIndex
	gen       *fakeGenerator
}

func newTestEnv() *testEnv {
	env := &testEnv{
		jobs: &fakeJobs{jobs: map[string]*pipeline.Job{}},
		retriever: &fakeRetriever{res: &retrieval.Result{
			IDs:       []string{"c1"},
			Documents: []string{"Net sales increased 8%."},
			Metadatas: []vectorstore.Metadata{{"fiscal_year": 2023, "accession": "0000320193-23-000106", "chunk_index": 0}},
			Distances: []float64{0.12},
		}},
		index: &fakeIndex{accessions: map[string]int64{"0000320193-23-000106": 42}},
		gen:   &fakeGenerator{},
	}
	env.srv = NewServer(Deps{
		Jobs:      env.jobs,
		Retriever: env.retriever,
		Index:     env.index,
		Parser:    parser.New(nil),
		Generator: env.gen,
		Stats:     llm.NewStats(0),
	}, Config{APIKey: testKey, GenerationModel: "llama3.1:8b"}, nil)
	return env
}

func (env *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv()
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv()

	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/retrieve", strings.NewReader(`{"query":"x"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/retrieve", strings.NewReader(`{"query":"x"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", rec.Code)
	}
}

func TestIngest(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/ingest", `{"cik":"320193","limit":2}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	out := decodeBody(t, rec)
	if out["job_id"] != "job-1" || out["poll_url"] != "/api/jobs/job-1" {
		t.Errorf("unexpected response %v", out)
	}

	rec = env.do(http.MethodGet, "/api/jobs/job-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	snap := decodeBody(t, rec)
	if snap["status"] != string(pipeline.StatusQueued) {
		t.Errorf("expected queued status, got %v", snap["status"])
	}

	if rec := env.do(http.MethodGet, "/api/jobs/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestIngest_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		full bool
		want int
	}{
		{"bad json", `{"cik":`, false, http.StatusBadRequest},
		{"unknown field", `{"cik":"320193","user_id":"x"}`, false, http.StatusBadRequest},
		{"non numeric cik", `{"cik":"AAPL"}`, false, http.StatusBadRequest},
		{"negative limit", `{"cik":"320193","limit":-1}`, false, http.StatusBadRequest},
		{"queue full", `{"cik":"320193"}`, true, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.jobs.full = tt.full
			if rec := env.do(http.MethodPost, "/api/ingest", tt.body); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRetrieve(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/retrieve", `{"query":"revenue growth","filters":{"and":[{"company":"Apple Inc."}]},"top_k":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.retriever.got.TopK != 3 || env.retriever.got.Query != "revenue growth" {
		t.Errorf("unexpected request passed through: %+v", env.retriever.got)
	}
	var res retrieval.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Len() != 1 || res.IDs[0] != "c1" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRetrieve_Answer(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/retrieve?answer=true", `{"query":"How did revenue change?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	out := decodeBody(t, rec)
	if out["answer"] != "Revenue grew." || out["model"] != "llama3.1:8b" {
		t.Errorf("unexpected answer response %v", out)
	}
	if !strings.Contains(env.gen.prompt, "Net sales increased 8%.") {
		t.Error("expected retrieved chunk in prompt")
	}
}

func TestRetrieve_Errors(t *testing.T) {
	t.Run("missing query", func(t *testing.T) {
		env := newTestEnv()
		rec := env.do(http.MethodPost, "/api/retrieve", `{"filters":{}}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if got := decodeBody(t, rec)["error"]; got != retrieval.ErrMissingQuery.Error() {
			t.Errorf("unexpected error %v", got)
		}
	})

	t.Run("unknown filter field", func(t *testing.T) {
		env := newTestEnv()
		rec := env.do(http.MethodPost, "/api/retrieve", `{"query":"q","filters":{"and":[{"ticker":"AAPL"}]}}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if got := decodeBody(t, rec)["error"]; got != retrieval.ErrInvalidFilter.Error() {
			t.Errorf("unexpected error %v", got)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		env := newTestEnv()
		env.retriever.err = &retrieval.QueryError{Err: retrieval.ErrStoreQuery, Cause: errors.New("disk I/O error"), Query: "q"}
		rec := env.do(http.MethodPost, "/api/retrieve", `{"query":"q"}`)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		out := decodeBody(t, rec)
		if out["exception"] != "disk I/O error" || out["query"] != "q" {
			t.Errorf("unexpected error body %v", out)
		}
	})
}

func TestParse(t *testing.T) {
	env := newTestEnv()
	html := `<html><body><p>ITEM 1. BUSINESS</p><p>We design smartphones.</p></body></html>`

	req := httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader(html))
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", "text/html; charset=utf-8")
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res doctree.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(res.Text, "We design smartphones.") {
		t.Errorf("expected narrative text, got %q", res.Text)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader("%PDF-1.4"))
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", "application/pdf")
	rec = httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", rec.Code)
	}
}

func TestFilings(t *testing.T) {
	env := newTestEnv()
	acc := "0000320193-23-000106"

	if rec := env.do(http.MethodGet, "/api/filings/"+acc, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := env.do(http.MethodGet, "/api/stats", "")
	if got := decodeBody(t, rec)["records"]; got != float64(42) {
		t.Errorf("expected 42 records, got %v", got)
	}

	rec = env.do(http.MethodDelete, "/api/filings/"+acc, "")
	if got := decodeBody(t, rec)["records_deleted"]; got != float64(42) {
		t.Errorf("expected 42 deleted, got %v", got)
	}
	if rec := env.do(http.MethodGet, "/api/filings/"+acc, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestLLMStats(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/api/stats/llm", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := decodeBody(t, rec)["stats"]; !ok {
		t.Error("expected stats key")
	}
}
