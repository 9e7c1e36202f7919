package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChunkerConfig configures the word window used to split documents.
type ChunkerConfig struct {
	MaxTokens int `yaml:"max_tokens"`
	Overlap   int `yaml:"overlap"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	Dimension         int     `yaml:"dimension,omitempty"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// GeminiEmbedderConfig holds configuration for the Gemini embedder.
type GeminiEmbedderConfig struct {
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// LocalEmbedderConfig configures the Ollama-served local model tier.
type LocalEmbedderConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// StubEmbedderConfig configures the deterministic last-resort tier.
type StubEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// CacheConfig configures the query embedding cache. Size 0 disables it.
type CacheConfig struct {
	Size    int `yaml:"size"`
	TTLSecs int `yaml:"ttl_secs"`
}

// EmbedderConfig lists the tiers of the embedding chain.
// Provider picks the remote tier: "openai", "gemini" or "none".
type EmbedderConfig struct {
	Provider string               `yaml:"provider"`
	OpenAI   OpenAIEmbedderConfig `yaml:"openai"`
	Gemini   GeminiEmbedderConfig `yaml:"gemini"`
	Local    LocalEmbedderConfig  `yaml:"local"`
	Stub     StubEmbedderConfig   `yaml:"stub"`
	Cache    CacheConfig          `yaml:"cache"`
}

// PineconeConfig contains connection details for the remote index.
type PineconeConfig struct {
	APIKeyEnv         string  `yaml:"api_key_env"`
	Index             string  `yaml:"index"`
	Dimension         int     `yaml:"dimension"`
	Cloud             string  `yaml:"cloud"`
	Region            string  `yaml:"region"`
	Namespace         string  `yaml:"namespace,omitempty"`
	ControlURL        string  `yaml:"control_url,omitempty"`
	ContentChars      int     `yaml:"content_chars"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// VectorStoreConfig selects the vector store backend: "local" or "remote".
type VectorStoreConfig struct {
	Backend  string         `yaml:"backend"`
	Pinecone PineconeConfig `yaml:"pinecone"`
}

// RetrievalConfig configures the query path.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// CorpusConfig points at the CSV loaded by the ingest command.
type CorpusConfig struct {
	Path string `yaml:"path"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log         LogConfig         `yaml:"log"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Corpus      CorpusConfig      `yaml:"corpus"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			ApplyEnv(cfg, os.Getenv)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	ApplyEnv(&cfg, os.Getenv)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	ApplyEnv(cfg, os.Getenv)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragqa", "config.yaml"), nil
}

// Default returns the built-in configuration without environment overrides.
func Default() *AppConfig { return defaultConfig() }

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Provider: "openai", Local: LocalEmbedderConfig{Enabled: true}},
		VectorStore: VectorStoreConfig{Backend: "local"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = 400
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 60
	}
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = "openai"
	}
	o := &cfg.Embedder.OpenAI
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.Model == "" {
		o.Model = "text-embedding-3-small"
	}
	if o.TimeoutSecs == 0 {
		o.TimeoutSecs = 30
	}
	if o.BatchSize == 0 {
		o.BatchSize = 100
	}
	g := &cfg.Embedder.Gemini
	if g.APIKeyEnv == "" {
		g.APIKeyEnv = "GEMINI_API_KEY"
	}
	if g.Model == "" {
		g.Model = "text-embedding-004"
	}
	if g.TimeoutSecs == 0 {
		g.TimeoutSecs = 30
	}
	if g.BatchSize == 0 {
		g.BatchSize = 100
	}
	l := &cfg.Embedder.Local
	if l.BaseURL == "" {
		l.BaseURL = "http://localhost:11434"
	}
	if l.Model == "" {
		l.Model = "all-minilm"
	}
	if l.Dimension == 0 {
		l.Dimension = 384
	}
	if l.TimeoutSecs == 0 {
		l.TimeoutSecs = 30
	}
	if cfg.Embedder.Cache.TTLSecs == 0 {
		cfg.Embedder.Cache.TTLSecs = 600
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "local"
	}
	p := &cfg.VectorStore.Pinecone
	if p.APIKeyEnv == "" {
		p.APIKeyEnv = "PINECONE_API_KEY"
	}
	if p.Index == "" {
		p.Index = "ragqa"
	}
	if p.Dimension == 0 {
		p.Dimension = 1536
	}
	if p.Cloud == "" {
		p.Cloud = "aws"
	}
	if p.Region == "" {
		p.Region = "us-east-1"
	}
	if p.TimeoutSecs == 0 {
		p.TimeoutSecs = 15
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
}

// ApplyEnv overrides file settings from environment variables.
func ApplyEnv(cfg *AppConfig, getenv func(string) string) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v, err := strconv.Atoi(strings.TrimSpace(getenv(key))); err == nil && v > 0 {
			*dst = v
		}
	}
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Embedder.Provider, "EMBEDDING_PROVIDER")
	setString(&cfg.Embedder.OpenAI.Model, "OPENAI_EMBED_MODEL")
	setString(&cfg.Embedder.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Embedder.Local.BaseURL, "OLLAMA_HOST")
	setString(&cfg.VectorStore.Backend, "VECTOR_BACKEND")
	setString(&cfg.VectorStore.Pinecone.Index, "PINECONE_INDEX")
	setInt(&cfg.VectorStore.Pinecone.Dimension, "PINECONE_DIMENSION")
	setString(&cfg.VectorStore.Pinecone.Cloud, "PINECONE_CLOUD")
	setString(&cfg.VectorStore.Pinecone.Region, "PINECONE_REGION")
	setString(&cfg.Corpus.Path, "CORPUS_CSV")
}

// Seconds converts a config value in seconds to a duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c OpenAIEmbedderConfig) APIKey() string { return os.Getenv(c.APIKeyEnv) }

func (c GeminiEmbedderConfig) APIKey() string { return os.Getenv(c.APIKeyEnv) }

func (c PineconeConfig) APIKey() string { return os.Getenv(c.APIKeyEnv) }
