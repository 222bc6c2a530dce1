package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dgallion1/filingrag/internal/vectorstore"
)

// Searcher runs a filtered nearest-neighbour query.
type Searcher interface {
	Query(ctx context.Context, embedding []float32, topK int, where vectorstore.Where) ([]vectorstore.Record, error)
}

// QueryEmbedder embeds a query string, returning nil on failure.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) []float32
}

// Result lists retrieved chunks nearest first. The slices are parallel.
type Result struct {
	IDs       []string               `json:"ids"`
	Documents []string               `json:"documents"`
	Metadatas []vectorstore.Metadata `json:"metadatas"`
	Distances []float64              `json:"distances"`
}

// Len returns the number of retrieved chunks.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.IDs)
}

// Service answers retrieval requests against the vector store.
type Service struct {
	store       Searcher
	embedder    QueryEmbedder
	defaultTopK int
	log         *slog.Logger
}

// NewService uses defaultTopK when a request leaves top_k unset.
func NewService(store Searcher, embedder QueryEmbedder, defaultTopK int, log *slog.Logger) *Service {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{store: store, embedder: embedder, defaultTopK: defaultTopK, log: log}
}

// Retrieve normalizes the request filters, embeds the query and returns
// the nearest chunks. Failures are *QueryError values; see NewErrorResult.
func (s *Service) Retrieve(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, &QueryError{Err: ErrMissingQuery}
	}

	where, err := NormalizeFilters(req.Filters)
	if err != nil {
		return nil, &QueryError{Err: ErrInvalidFilter, Cause: err, Query: req.Query}
	}
	var wherePtr *vectorstore.Where
	if !where.Empty() {
		wherePtr = &where
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}

	s.log.Debug("retrieve", "query", req.Query, "top_k", topK, "where", where)

	vec := s.embedder.EmbedOne(ctx, req.Query)
	if vec == nil {
		return nil, &QueryError{Err: ErrEmbedQuery, Query: req.Query, Where: wherePtr}
	}

	recs, err := s.store.Query(ctx, vec, topK, where)
	if err != nil {
		s.log.Error("vector store query failed", "query", req.Query, "error", err)
		return nil, &QueryError{Err: ErrStoreQuery, Cause: err, Query: req.Query, Where: wherePtr}
	}

	res := &Result{
		IDs:       make([]string, 0, len(recs)),
		Documents: make([]string, 0, len(recs)),
		Metadatas: make([]vectorstore.Metadata, 0, len(recs)),
		Distances: make([]float64, 0, len(recs)),
	}
	for _, r := range recs {
		res.IDs = append(res.IDs, r.ID)
		res.Documents = append(res.Documents, r.Document)
		res.Metadatas = append(res.Metadatas, r.Metadata)
		res.Distances = append(res.Distances, r.Distance)
	}
	return res, nil
}
