package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const openAIDefaultEmbeddingModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI embeddings client.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string        // Optional (compatible servers, tests)
	Timeout    time.Duration // HTTP timeout
	MaxRetries int           // SDK transport retries
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIEmbedder implements Embedder using the official OpenAI SDK.
type OpenAIEmbedder struct {
	model  string
	client openai.Client
	stats  *Stats
}

// NewOpenAIEmbedder builds an embedder on the OpenAI embeddings API.
// BaseURL points it at any compatible server.
func NewOpenAIEmbedder(cfg OpenAIConfig, stats *Stats) *OpenAIEmbedder {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultEmbeddingModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEmbedder{
		model:  cfg.Model,
		client: openai.NewClient(opts...),
		stats:  stats,
	}
}

// Embed returns one vector per text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		e.stats.RecordError(OpEmbed)
		return nil, mapOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		e.stats.RecordError(OpEmbed)
		return nil, fmt.Errorf("openai embed: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	e.stats.Record(OpEmbed, time.Since(start))

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai embed: index %d out of range", d.Index)
		}
		out[d.Index] = float64sToFloat32s(d.Embedding)
	}
	return out, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return &RetryableError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
		}
		if apiErr.Message != "" {
			return fmt.Errorf("openai embed error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("openai embed error (status %d)", apiErr.StatusCode)
	}
	return fmt.Errorf("openai embed: %w", err)
}
