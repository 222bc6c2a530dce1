package config

import (
	"time"

	"github.com/dgallion1/filingrag/internal/parser"
)

// Config holds filingrag configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	Port     string `mapstructure:"port" yaml:"port"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"` // Bearer token for the HTTP API

	DataDir        string `mapstructure:"data_dir" yaml:"data_dir"`
	SubmissionsDir string `mapstructure:"submissions_dir" yaml:"submissions_dir"` // Default: {data_dir}/submissions
	ImagesDir      string `mapstructure:"images_dir" yaml:"images_dir"`           // Default: {data_dir}/images
	TablesDir      string `mapstructure:"tables_dir" yaml:"tables_dir"`           // Default: {data_dir}/tables
	DBPath         string `mapstructure:"db_path" yaml:"db_path"`                 // Default: {data_dir}/filingrag.db

	SEC        SECConfig       `mapstructure:"sec" yaml:"sec"`
	Images     ImagesConfig    `mapstructure:"images" yaml:"images"`
	Vision     ModelConfig     `mapstructure:"vision" yaml:"vision"`
	Generation ModelConfig     `mapstructure:"generation" yaml:"generation"`
	Embedding  EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Chunk      ChunkConfig     `mapstructure:"chunk" yaml:"chunk"`
	Retrieval  RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`

	// Ingest worker pool
	Workers      int           `mapstructure:"workers" yaml:"workers"`
	MaxQueueSize int           `mapstructure:"max_queue_size" yaml:"max_queue_size"`
	JobTTL       time.Duration `mapstructure:"job_ttl" yaml:"job_ttl"`
}

// SECConfig configures EDGAR access.
type SECConfig struct {
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"` // "Company Name admin@example.com"
	ArchiveBaseURL    string        `mapstructure:"archive_base_url" yaml:"archive_base_url"`
	DataBaseURL       string        `mapstructure:"data_base_url" yaml:"data_base_url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	FilingTimeout     time.Duration `mapstructure:"filing_timeout" yaml:"filing_timeout"`
	FormType          string        `mapstructure:"form_type" yaml:"form_type"`
}

// ImagesConfig configures image download and captioning.
type ImagesConfig struct {
	Caption               bool          `mapstructure:"caption" yaml:"caption"`
	FetchTimeout          time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	CaptionTimeout        time.Duration `mapstructure:"caption_timeout" yaml:"caption_timeout"`
	MaxBytes              int64         `mapstructure:"max_bytes" yaml:"max_bytes"`
	NonInformativePhrases []string      `mapstructure:"non_informative_phrases" yaml:"non_informative_phrases"`
}

// ModelConfig selects an Ollama model.
type ModelConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
}

// EmbeddingConfig selects the embedding model.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"` // "ollama" or "openai"
	Model     string `mapstructure:"model" yaml:"model"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	Dim       int    `mapstructure:"dim" yaml:"dim"`
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"`
	MaxChars  int    `mapstructure:"max_chars" yaml:"max_chars"`
}

// ChunkConfig sizes narrative chunks, in characters.
type ChunkConfig struct {
	Size    int `mapstructure:"size" yaml:"size"`
	Overlap int `mapstructure:"overlap" yaml:"overlap"`
	Min     int `mapstructure:"min" yaml:"min"`
}

type RetrievalConfig struct {
	DefaultTopK int `mapstructure:"default_top_k" yaml:"default_top_k"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Port:     "8090",
		DataDir:  "./data",
		SEC: SECConfig{
			ArchiveBaseURL:    "https://www.sec.gov",
			DataBaseURL:       "https://data.sec.gov",
			RequestsPerSecond: 2,
			FilingTimeout:     30 * time.Second,
			FormType:          "10-K",
		},
		Images: ImagesConfig{
			Caption:               true,
			FetchTimeout:          15 * time.Second,
			CaptionTimeout:        30 * time.Second,
			MaxBytes:              parser.DefaultMaxImageBytes,
			NonInformativePhrases: append([]string(nil), parser.DefaultNonInformativePhrases...),
		},
		Vision: ModelConfig{
			Provider: "ollama",
			Model:    "qwen2.5vl:3b",
			BaseURL:  "http://localhost:11434",
		},
		Generation: ModelConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BaseURL:   "http://localhost:11434",
			Dim:       768,
			BatchSize: 128,
			MaxChars:  8000,
		},
		Chunk: ChunkConfig{
			Size:    800,
			Overlap: 160,
			Min:     200,
		},
		Retrieval:    RetrievalConfig{DefaultTopK: 5},
		Workers:      2,
		MaxQueueSize: 50,
		JobTTL:       time.Hour,
	}
}
