package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dgallion1/filingrag/internal/vectorstore"
)

func TestNormalizeFilters_ListExpandsToOr(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"query":"legal proceedings","filters":{"and":[{"fiscal_year":[2019,2020]}]}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	where, err := NormalizeFilters(req.Filters)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := json.Marshal(where)
	want := `{"and":[],"or":[{"fiscal_year":2019},{"fiscal_year":2020}]}`
	if string(b) != want {
		t.Errorf("expected %s, got %s", want, b)
	}
}

func TestNormalizeFilters_DigitStringsInLists(t *testing.T) {
	where, err := NormalizeFilters(&Filters{
		And: []map[string]any{
			{"company": "Apple Inc."},
			{"fiscal_year": []any{"2021", 2022}, "section": []string{"Item 7", "Item 7A"}},
		},
		Or: []map[string]any{{"content_type": "narrative"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := json.Marshal(where)
	want := `{"and":[{"company":"Apple Inc."}],"or":[{"fiscal_year":2021},{"fiscal_year":2022},{"section":"Item 7"},{"section":"Item 7A"},{"content_type":"narrative"}]}`
	if string(b) != want {
		t.Errorf("expected %s, got %s", want, b)
	}
}

func TestNormalizeFilters_Rejects(t *testing.T) {
	cases := map[string]*Filters{
		"unknown field":  {And: []map[string]any{{"ticker": "AAPL"}}},
		"repeated field": {And: []map[string]any{{"company": "Apple Inc."}, {"company": "Microsoft"}}},
		"float value":    {Or: []map[string]any{{"fiscal_year": 2020.5}}},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NormalizeFilters(f); !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("expected ErrInvalidFilter, got %v", err)
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"query":"revenue","filters":{"or":[{"company":"Apple Inc."}]},"top_k":3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Query != "revenue" || req.TopK != 3 || len(req.Filters.Or) != 1 {
		t.Errorf("unexpected request %+v", req)
	}

	cases := []struct {
		name string
		body string
		want error
	}{
		{"missing query", `{"filters":{}}`, ErrMissingQuery},
		{"blank query", `{"query":"  "}`, ErrMissingQuery},
		{"extra property", `{"query":"q","limit":3}`, ErrInvalidRequest},
		{"zero top_k", `{"query":"q","top_k":0}`, ErrInvalidRequest},
		{"not json", `{"query":`, ErrInvalidRequest},
		{"disallowed field", `{"query":"q","filters":{"and":[{"ticker":"AAPL"}]}}`, ErrInvalidFilter},
		{"list in or", `{"query":"q","filters":{"or":[{"fiscal_year":[2019]}]}}`, ErrInvalidFilter},
		{"unknown filter key", `{"query":"q","filters":{"not":[]}}`, ErrInvalidFilter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeRequest([]byte(tc.body)); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

type fakeStore struct {
	topK  int
	where vectorstore.Where
	recs  []vectorstore.Record
	err   error
}

func (f *fakeStore) Query(_ context.Context, _ []float32, topK int, where vectorstore.Where) ([]vectorstore.Record, error) {
	f.topK = topK
	f.where = where
	return f.recs, f.err
}

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) EmbedOne(context.Context, string) []float32 { return f.vec }

func appleRecords() []vectorstore.Record {
	return []vectorstore.Record{
		{ID: "320193_10K_2019_a_Item3_000000_x", Document: "[Item 3 - Legal Proceedings]\nThe Company is subject to claims.",
			Metadata: vectorstore.Metadata{"fiscal_year": json.Number("2019"), "accession": "0000320193-19-000119", "chunk_index": json.Number("0")}, Distance: 0.12},
		{ID: "320193_10K_2019_a_Item3_000001_y", Document: "Legal reserves were recorded.",
			Metadata: vectorstore.Metadata{"fiscal_year": json.Number("2019"), "accession": "0000320193-19-000119", "chunk_index": json.Number("1")}, Distance: 0.2},
	}
}

func TestRetrieve(t *testing.T) {
	store := &fakeStore{recs: appleRecords()}
	svc := NewService(store, fakeEmbedder{vec: []float32{1, 0}}, 0, nil)

	res, err := svc.Retrieve(context.Background(), Request{
		Query:   "legal proceedings",
		Filters: &Filters{And: []map[string]any{{"company": "Apple Inc."}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.topK != DefaultTopK {
		t.Errorf("expected default top_k %d, got %d", DefaultTopK, store.topK)
	}
	if len(store.where.And) != 1 || store.where.And[0].Field != "company" {
		t.Errorf("unexpected where %+v", store.where)
	}
	if res.Len() != 2 || res.IDs[1] != "320193_10K_2019_a_Item3_000001_y" || res.Distances[0] != 0.12 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestNewService_ConfiguredTopK(t *testing.T) {
	store := &fakeStore{recs: appleRecords()}
	svc := NewService(store, fakeEmbedder{vec: []float32{1, 0}}, 7, nil)

	if _, err := svc.Retrieve(context.Background(), Request{Query: "legal proceedings"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.topK != 7 {
		t.Errorf("expected configured top_k 7, got %d", store.topK)
	}

	if _, err := svc.Retrieve(context.Background(), Request{Query: "legal proceedings", TopK: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.topK != 2 {
		t.Errorf("expected request top_k 2, got %d", store.topK)
	}
}

func TestRetrieve_Errors(t *testing.T) {
	svc := NewService(&fakeStore{}, fakeEmbedder{}, 5, nil)
	_, err := svc.Retrieve(context.Background(), Request{Query: "q"})
	if !errors.Is(err, ErrEmbedQuery) {
		t.Errorf("expected ErrEmbedQuery, got %v", err)
	}

	boom := errors.New("disk I/O error")
	svc = NewService(&fakeStore{err: boom}, fakeEmbedder{vec: []float32{1}}, 5, nil)
	_, err = svc.Retrieve(context.Background(), Request{Query: "q", Filters: &Filters{Or: []map[string]any{{"fiscal_year": 2020}}}})
	if !errors.Is(err, ErrStoreQuery) || !errors.Is(err, boom) {
		t.Fatalf("expected store error wrapping cause, got %v", err)
	}

	er := NewErrorResult(err)
	b, _ := json.Marshal(er)
	want := `{"error":"retrieval: vector store query failed","exception":"disk I/O error","query":"q","where":{"and":[],"or":[{"fiscal_year":2020}]}}`
	if string(b) != want {
		t.Errorf("expected %s, got %s", want, b)
	}

	_, err = svc.Retrieve(context.Background(), Request{})
	if er := NewErrorResult(err); er.Error != ErrMissingQuery.Error() || er.Where != nil {
		t.Errorf("unexpected error result %+v", er)
	}
}

func TestBuildContext(t *testing.T) {
	res := &Result{}
	for _, r := range appleRecords() {
		res.IDs = append(res.IDs, r.ID)
		res.Documents = append(res.Documents, r.Document)
		res.Metadatas = append(res.Metadatas, r.Metadata)
		res.Distances = append(res.Distances, r.Distance)
	}
	got := BuildContext(res)
	want := "[Fiscal Year: 2019 | Accession: 0000320193-19-000119 | Chunk: 0]\n[Item 3 - Legal Proceedings]\nThe Company is subject to claims." +
		"\n\n[Fiscal Year: 2019 | Accession: 0000320193-19-000119 | Chunk: 1]\nLegal reserves were recorded."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if got := BuildContext(nil); got != NoResults {
		t.Errorf("expected fallback, got %q", got)
	}
	if !strings.Contains(Prompt("What happened?", res), "Question:\nWhat happened?") {
		t.Error("expected question in prompt")
	}
}

type fakeGenerator struct{ calls int }

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.calls++
	return "Apple disclosed claims.", nil
}

func TestAnswer(t *testing.T) {
	g := &fakeGenerator{}
	got, err := Answer(context.Background(), g, "q", &Result{})
	if err != nil || got != NoResults || g.calls != 0 {
		t.Errorf("expected fallback without model call, got %q %v calls=%d", got, err, g.calls)
	}

	res := &Result{IDs: []string{"x"}, Documents: []string{"text"}, Metadatas: []vectorstore.Metadata{{}}, Distances: []float64{0}}
	got, err = Answer(context.Background(), g, "q", res)
	if err != nil || got != "Apple disclosed claims." || g.calls != 1 {
		t.Errorf("unexpected answer %q %v calls=%d", got, err, g.calls)
	}
}
