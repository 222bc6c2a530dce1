package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. FILINGRAG_SEC_USER_AGENT.
const EnvPrefix = "FILINGRAG"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v   *viper.Viper
	log *slog.Logger

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a config manager and loads the initial config.
// cfgFile may be empty, in which case filingrag.yaml is searched for in
// the working directory and $HOME/.filingrag. A missing file is not an error.
func NewManager(cfgFile string, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	cm := &Manager{
		v:   viper.New(),
		log: log,
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper registers defaults and reads the config file.
func (cm *Manager) initViper(cfgFile string) error {
	for key, value := range defaultValues(DefaultConfig()) {
		cm.v.SetDefault(key, value)
	}

	cm.v.SetEnvPrefix(EnvPrefix)
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("filingrag")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		cm.v.AddConfigPath("$HOME/.filingrag")
	}

	if err := cm.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	if used := cm.v.ConfigFileUsed(); used != "" {
		cm.log.Debug("config file loaded", "path", used)
	}

	return nil
}

// defaultValues flattens cfg into dotted viper keys. Every leaf must be
// registered so AutomaticEnv can resolve nested keys.
func defaultValues(cfg *Config) map[string]any {
	return map[string]any{
		"log_level":       cfg.LogLevel,
		"port":            cfg.Port,
		"api_key":         cfg.APIKey,
		"data_dir":        cfg.DataDir,
		"submissions_dir": cfg.SubmissionsDir,
		"images_dir":      cfg.ImagesDir,
		"tables_dir":      cfg.TablesDir,
		"db_path":         cfg.DBPath,

		"sec.user_agent":          cfg.SEC.UserAgent,
		"sec.archive_base_url":    cfg.SEC.ArchiveBaseURL,
		"sec.data_base_url":       cfg.SEC.DataBaseURL,
		"sec.requests_per_second": cfg.SEC.RequestsPerSecond,
		"sec.filing_timeout":      cfg.SEC.FilingTimeout,
		"sec.form_type":           cfg.SEC.FormType,

		"images.caption":                 cfg.Images.Caption,
		"images.fetch_timeout":           cfg.Images.FetchTimeout,
		"images.caption_timeout":         cfg.Images.CaptionTimeout,
		"images.max_bytes":               cfg.Images.MaxBytes,
		"images.non_informative_phrases": cfg.Images.NonInformativePhrases,

		"vision.provider":     cfg.Vision.Provider,
		"vision.model":        cfg.Vision.Model,
		"vision.base_url":     cfg.Vision.BaseURL,
		"generation.provider": cfg.Generation.Provider,
		"generation.model":    cfg.Generation.Model,
		"generation.base_url": cfg.Generation.BaseURL,

		"embedding.provider":   cfg.Embedding.Provider,
		"embedding.model":      cfg.Embedding.Model,
		"embedding.base_url":   cfg.Embedding.BaseURL,
		"embedding.api_key":    cfg.Embedding.APIKey,
		"embedding.dim":        cfg.Embedding.Dim,
		"embedding.batch_size": cfg.Embedding.BatchSize,
		"embedding.max_chars":  cfg.Embedding.MaxChars,

		"chunk.size":    cfg.Chunk.Size,
		"chunk.overlap": cfg.Chunk.Overlap,
		"chunk.min":     cfg.Chunk.Min,

		"retrieval.default_top_k": cfg.Retrieval.DefaultTopK,

		"workers":        cfg.Workers,
		"max_queue_size": cfg.MaxQueueSize,
		"job_ttl":        cfg.JobTTL,
	}
}

// load parses the current viper state into a validated Config.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.resolvePaths()
	cfg.Embedding.APIKey = ResolveEnvVars(cfg.Embedding.APIKey)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// Override sets a key above every other source and reloads. Used for
// command-line flags.
func (cm *Manager) Override(key string, value any) error {
	cm.v.Set(key, value)
	cfg, err := cm.load()
	if err != nil {
		return err
	}
	cm.mu.Lock()
	cm.config = cfg
	cm.mu.Unlock()
	return nil
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of the config file. An invalid
// reload is logged and the previous config stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.log.Warn("config reload rejected", "path", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		cm.log.Info("config reloaded", "path", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// resolvePaths fills unset storage paths beneath DataDir.
func (c *Config) resolvePaths() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.SubmissionsDir == "" {
		c.SubmissionsDir = filepath.Join(c.DataDir, "submissions")
	}
	if c.ImagesDir == "" {
		c.ImagesDir = filepath.Join(c.DataDir, "images")
	}
	if c.TablesDir == "" {
		c.TablesDir = filepath.Join(c.DataDir, "tables")
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "filingrag.db")
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.Chunk.Size <= 0 {
		return fmt.Errorf("chunk.size must be positive, got %d", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("chunk.overlap must be in [0, chunk.size), got %d", c.Chunk.Overlap)
	}
	if c.Chunk.Min < 0 {
		return fmt.Errorf("chunk.min must not be negative, got %d", c.Chunk.Min)
	}
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("embedding.provider %q must be ollama or openai", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("embedding.dim must be positive, got %d", c.Embedding.Dim)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Retrieval.DefaultTopK <= 0 {
		return fmt.Errorf("retrieval.default_top_k must be positive, got %d", c.Retrieval.DefaultTopK)
	}
	if c.SEC.RequestsPerSecond < 0 {
		return fmt.Errorf("sec.requests_per_second must not be negative")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be positive, got %d", c.MaxQueueSize)
	}
	return nil
}

// ValidateForIngest checks settings needed to talk to EDGAR.
func (c *Config) ValidateForIngest() error {
	if strings.TrimSpace(c.SEC.UserAgent) == "" {
		return fmt.Errorf("sec.user_agent is required (set %s_SEC_USER_AGENT)", EnvPrefix)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required for the openai provider")
	}
	return nil
}

// ValidateForServe checks settings needed by the HTTP server.
func (c *Config) ValidateForServe() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (set %s_API_KEY)", EnvPrefix)
	}
	return c.ValidateForIngest()
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	cfg.Embedding.APIKey = "${OPENAI_API_KEY}"
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# filingrag configuration
# Every key can be overridden with a FILINGRAG_ environment variable,
# e.g. FILINGRAG_SEC_USER_AGENT or FILINGRAG_EMBEDDING_MODEL.
# embedding.api_key uses ${ENV_VAR} syntax.

`)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, append(header, data...), 0o644)
}
