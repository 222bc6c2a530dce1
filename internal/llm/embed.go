package llm

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

// DefaultMaxChars bounds the text sent to the embedding model per input.
const DefaultMaxChars = 8000

// EmbeddingManager truncates inputs and turns embedding failures into an
// empty result so a failed batch never aborts the caller.
type EmbeddingManager struct {
	embedder Embedder
	maxChars int
	log      *slog.Logger
}

// NewEmbeddingManager truncates each text to maxChars before embedding.
func NewEmbeddingManager(e Embedder, maxChars int, log *slog.Logger) *EmbeddingManager {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &EmbeddingManager{embedder: e, maxChars: maxChars, log: log}
}

// Embed returns one vector per text, or nil when the model call fails.
func (m *EmbeddingManager) Embed(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}
	in := make([]string, len(texts))
	for i, t := range texts {
		in[i] = truncateRunes(t, m.maxChars)
	}

	vecs, err := m.embedder.Embed(ctx, in)
	if err != nil {
		m.log.Error("embedding_failed", "texts", len(texts), "error", err)
		return nil
	}
	return vecs
}

// EmbedOne embeds a single query string.
func (m *EmbeddingManager) EmbedOne(ctx context.Context, text string) []float32 {
	vecs := m.Embed(ctx, []string{text})
	if len(vecs) != 1 {
		return nil
	}
	return vecs[0]
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
