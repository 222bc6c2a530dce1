package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/dgallion1/filingrag/internal/doctree"
	"github.com/dgallion1/filingrag/internal/llm"
	"github.com/dgallion1/filingrag/internal/pipeline"
	"github.com/dgallion1/filingrag/internal/retrieval"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Jobs queues and tracks ingest jobs.
type Jobs interface {
	Submit(req pipeline.Request) (*pipeline.Job, error)
	GetJob(id string) *pipeline.Job
	QueueDepth() int
}

// Retriever answers retrieval requests.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
}

// Index exposes per-filing bookkeeping of the vector store.
type Index interface {
	HasAccession(ctx context.Context, accession string) (bool, error)
	DeleteAccession(ctx context.Context, accession string) (int64, error)
	Count(ctx context.Context) (int, error)
}

// DocumentParser parses one filing document.
type DocumentParser interface {
	Parse(ctx context.Context, r io.Reader, baseURL string) (*doctree.Result, error)
}

// Deps are the services behind the HTTP API. Generator and Stats may be nil.
type Deps struct {
	Jobs      Jobs
	Retriever Retriever
	Index     Index
	Parser    DocumentParser
	Generator llm.Generator
	Stats     *llm.Stats
}

// Config configures the HTTP API.
type Config struct {
	APIKey          string
	MaxBodyBytes    int64 // Limit for uploaded filing documents
	GenerationModel string
}

// Server is the HTTP API server for filingrag.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 20
	}
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/ingest", s.handleIngest)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)
		r.Post("/api/parse", s.handleParse)

		r.Post("/api/retrieve", s.handleRetrieve)

		r.Get("/api/filings/{accession}", s.handleGetFiling)
		r.Delete("/api/filings/{accession}", s.handleDeleteFiling)

		r.Get("/api/stats", s.handleStats)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
