package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgallion1/filingrag/internal/chunker"
	"github.com/dgallion1/filingrag/internal/config"
	"github.com/dgallion1/filingrag/internal/edgar"
	"github.com/dgallion1/filingrag/internal/llm"
	"github.com/dgallion1/filingrag/internal/parser"
	"github.com/dgallion1/filingrag/internal/pipeline"
	"github.com/dgallion1/filingrag/internal/retrieval"
	"github.com/dgallion1/filingrag/internal/vectorstore"
)

// app holds the services one command invocation needs.
type app struct {
	cm       *config.Manager
	cfg      *config.Config
	log      *slog.Logger
	logLevel *slog.LevelVar

	stats      *llm.Stats
	classifier *parser.CaptionClassifier
	parser     *parser.Parser
	edgar      *edgar.Client
	store      *vectorstore.Store
	embedder   *llm.EmbeddingManager
}

// newApp loads configuration and builds the parsing stack. The vector
// store and embedder are opened only when withStore is set.
func newApp(withStore bool) (*app, error) {
	level := new(slog.LevelVar)
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cm, err := config.NewManager(cfgFile, log)
	if err != nil {
		return nil, err
	}
	cfg := cm.Get()
	level.Set(cfg.SlogLevel())

	a := &app{
		cm:         cm,
		cfg:        cfg,
		log:        log,
		logLevel:   level,
		stats:      llm.NewStats(time.Hour),
		classifier: parser.NewCaptionClassifier(cfg.Images.NonInformativePhrases),
	}

	var captioner parser.Captioner
	if cfg.Images.Caption {
		captioner = llm.NewOllamaVision(llm.OllamaConfig{
			BaseURL: cfg.Vision.BaseURL,
			Model:   cfg.Vision.Model,
			Timeout: cfg.Images.CaptionTimeout,
		}, a.stats)
	}
	a.parser = parser.New(parser.NewImageExtractor(parser.ImageConfig{
		Dir:            cfg.ImagesDir,
		FetchTimeout:   cfg.Images.FetchTimeout,
		CaptionTimeout: cfg.Images.CaptionTimeout,
		UserAgent:      cfg.SEC.UserAgent,
		MaxBytes:       cfg.Images.MaxBytes,
	}, captioner, a.classifier, log))

	a.edgar = edgar.NewClient(edgar.Config{
		UserAgent:      cfg.SEC.UserAgent,
		ArchiveBaseURL: cfg.SEC.ArchiveBaseURL,
		DataBaseURL:    cfg.SEC.DataBaseURL,
		SubmissionsDir: cfg.SubmissionsDir,
		Timeout:        cfg.SEC.FilingTimeout,
	}, log)

	if withStore {
		store, err := vectorstore.Open(cfg.DBPath, cfg.Embedding.Dim)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		a.store = store
		a.embedder = llm.NewEmbeddingManager(newEmbedder(cfg.Embedding, a.stats), cfg.Embedding.MaxChars, log)
	}

	// Phrase list and log level follow config reloads.
	cm.OnChange(func(c *config.Config) {
		a.classifier.SetPhrases(c.Images.NonInformativePhrases)
		level.Set(c.SlogLevel())
	})

	return a, nil
}

func newEmbedder(cfg config.EmbeddingConfig, stats *llm.Stats) llm.Embedder {
	switch cfg.Provider {
	case llm.ProviderOpenAI:
		return llm.NewOpenAIEmbedder(llm.OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}, stats)
	default:
		return llm.NewOllamaEmbedder(llm.OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}, stats)
	}
}

func (a *app) worker() *pipeline.Worker {
	return pipeline.NewWorker(a.edgar, a.parser, a.embedder, a.store,
		edgar.NewRateLimiter(a.cfg.SEC.RequestsPerSecond),
		pipeline.WorkerConfig{
			Chunk: chunker.Config{
				ChunkSize:    a.cfg.Chunk.Size,
				ChunkOverlap: a.cfg.Chunk.Overlap,
				MinChunk:     a.cfg.Chunk.Min,
			},
			BatchSize: a.cfg.Embedding.BatchSize,
			FormType:  a.cfg.SEC.FormType,
			TablesDir: a.cfg.TablesDir,
		}, a.log)
}

func (a *app) retriever() *retrieval.Service {
	return retrieval.NewService(a.store, a.embedder, a.cfg.Retrieval.DefaultTopK, a.log)
}

func (a *app) generator() *llm.OllamaGenerator {
	return llm.NewOllamaGenerator(llm.OllamaConfig{
		BaseURL: a.cfg.Generation.BaseURL,
		Model:   a.cfg.Generation.Model,
	}, a.stats)
}

func (a *app) Close() {
	a.edgar.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing vector store", "error", err)
		}
	}
}
