package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaConfig configures a client for Ollama's native API.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Attempts   uint          // Caption attempts on retryable errors
	RetryDelay time.Duration // Base delay between caption attempts
	HTTPClient *http.Client  // Optional (tests)
}

type ollamaClient struct {
	cfg        OllamaConfig
	httpClient *http.Client
	stats      *Stats
}

func newOllamaClient(cfg OllamaConfig, stats *Stats) ollamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return ollamaClient{cfg: cfg, httpClient: hc, stats: stats}
}

func (c *ollamaClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError("ollama "+path, resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// OllamaVision captions images with a multimodal Ollama model.
type OllamaVision struct {
	ollamaClient
	prompt string
}

// NewOllamaVision returns a captioner using SECImagePrompt.
func NewOllamaVision(cfg OllamaConfig, stats *Stats) *OllamaVision {
	return &OllamaVision{ollamaClient: newOllamaClient(cfg, stats), prompt: SECImagePrompt}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Caption sends the image to /api/generate. Rate limiting and server
// errors are retried; anything else fails immediately.
func (v *OllamaVision) Caption(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	req := generateRequest{
		Model:   v.cfg.Model,
		Prompt:  v.prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(data)},
		Options: map[string]any{"temperature": 0},
	}

	start := time.Now()
	text, err := retry.DoWithData(
		func() (string, error) {
			var resp generateResponse
			if err := v.post(ctx, "/api/generate", req, &resp); err != nil {
				return "", err
			}
			return strings.TrimSpace(resp.Response), nil
		},
		retry.Context(ctx),
		retry.Attempts(v.cfg.Attempts),
		retry.Delay(v.cfg.RetryDelay),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		v.stats.RecordError(OpCaption)
		return "", fmt.Errorf("caption %s: %w", path, err)
	}
	v.stats.Record(OpCaption, time.Since(start))
	return text, nil
}

// Generator completes a text prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OllamaGenerator answers prompts with a text Ollama model.
type OllamaGenerator struct {
	ollamaClient
}

// NewOllamaGenerator returns a generator for cfg.Model.
func NewOllamaGenerator(cfg OllamaConfig, stats *Stats) *OllamaGenerator {
	return &OllamaGenerator{ollamaClient: newOllamaClient(cfg, stats)}
}

// Generate runs one deterministic completion, retrying transient failures.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := generateRequest{
		Model:   g.cfg.Model,
		Prompt:  prompt,
		Options: map[string]any{"temperature": 0},
	}

	start := time.Now()
	text, err := retry.DoWithData(
		func() (string, error) {
			var resp generateResponse
			if err := g.post(ctx, "/api/generate", req, &resp); err != nil {
				return "", err
			}
			return strings.TrimSpace(resp.Response), nil
		},
		retry.Context(ctx),
		retry.Attempts(g.cfg.Attempts),
		retry.Delay(g.cfg.RetryDelay),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		g.stats.RecordError(OpGenerate)
		return "", fmt.Errorf("generate: %w", err)
	}
	g.stats.Record(OpGenerate, time.Since(start))
	return text, nil
}

// OllamaEmbedder embeds text batches through /api/embed.
type OllamaEmbedder struct {
	ollamaClient
}

// NewOllamaEmbedder returns an embedder for cfg.Model.
func NewOllamaEmbedder(cfg OllamaConfig, stats *Stats) *OllamaEmbedder {
	return &OllamaEmbedder{ollamaClient: newOllamaClient(cfg, stats)}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed returns one vector per text, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var resp embedResponse
	if err := e.post(ctx, "/api/embed", embedRequest{Model: e.cfg.Model, Input: texts}, &resp); err != nil {
		e.stats.RecordError(OpEmbed)
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		e.stats.RecordError(OpEmbed)
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	e.stats.Record(OpEmbed, time.Since(start))

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		out[i] = float64sToFloat32s(emb)
	}
	return out, nil
}

func float64sToFloat32s(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
