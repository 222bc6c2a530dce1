// Package llm wraps the external models the ingest pipeline depends on:
// a vision model that captions filing images and an embedding model that
// turns chunks into vectors.
package llm

import "context"

// Captioner describes the image stored at path.
type Captioner interface {
	Caption(ctx context.Context, path string) (string, error)
}

// Embedder returns one vector per input text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider names accepted in configuration.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)
