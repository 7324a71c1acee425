package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LogConfig configures the zap logger initialized through xxxsen/common/logger.
type LogConfig struct {
	File      string `yaml:"file"`
	Level     string `yaml:"level"`
	FileCount int    `yaml:"file_count"`
	FileSize  int    `yaml:"file_size"`
	KeepDays  int    `yaml:"keep_days"`
	Console   bool   `yaml:"console"`
}

// ChunkerConfig configures token window chunking.
type ChunkerConfig struct {
	Tokenizer string `yaml:"tokenizer"`
	ChunkSize int    `yaml:"chunk_size"`
	Overlap   int    `yaml:"overlap"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	MaxRetries  int    `yaml:"max_retries"`
}

// GeminiEmbedderConfig holds configuration for the Gemini embedder.
type GeminiEmbedderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// HashingEmbedderConfig configures the local feature hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type         string                `yaml:"type"`
	Hashing      HashingEmbedderConfig `yaml:"hashing"`
	OpenAI       *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Gemini       *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
	CacheSize    int                   `yaml:"cache_size"`
	CacheTTLSecs int                   `yaml:"cache_ttl_secs"`
	Persistent   bool                  `yaml:"persistent_cache"`
}

// OpenAIGeneratorConfig configures an OpenAI-compatible chat endpoint (OpenAI, Groq).
type OpenAIGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// GeminiGeneratorConfig configures the Gemini generator.
type GeminiGeneratorConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// GeneratorConfig selects the generation provider.
type GeneratorConfig struct {
	Type        string                 `yaml:"type"`
	OpenAI      *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
	Gemini      *GeminiGeneratorConfig `yaml:"gemini,omitempty"`
	TimeoutSecs int                    `yaml:"timeout_secs"`
	MaxRetries  int                    `yaml:"max_retries"`
}

// TEIConfig points at a cross-encoder rerank server.
type TEIConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RerankerConfig selects between MMR diversification ("none") and a cross-encoder ("tei").
type RerankerConfig struct {
	Type   string     `yaml:"type"`
	Lambda *float64   `yaml:"lambda,omitempty"`
	TEI    *TEIConfig `yaml:"tei,omitempty"`
}

// RetrievalConfig bounds candidate breadth and the final passage count.
type RetrievalConfig struct {
	Candidates int      `yaml:"candidates"`
	DefaultK   int      `yaml:"default_k"`
	MaxK       int      `yaml:"max_k"`
	Blocklist  []string `yaml:"blocklist"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// ScheduleConfig holds cron specs for background jobs. Empty specs disable a job.
type ScheduleConfig struct {
	Ingest        string `yaml:"ingest"`
	CacheCleanup  string `yaml:"cache_cleanup"`
	CacheTTLHours int    `yaml:"cache_ttl_hours"`
}

// SnapshotConfig configures S3 backup of the index artifacts.
type SnapshotConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataDirs  []string        `yaml:"data_dirs"`
	IndexDir  string          `yaml:"index_dir"`
	DBPath    string          `yaml:"db_path"`
	Log       LogConfig       `yaml:"log"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Reranker  RerankerConfig  `yaml:"reranker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Server    ServerConfig    `yaml:"server"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied on top of the file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return finalize(&AppConfig{})
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config data and applies environment overrides and defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finalize(&cfg)
}

// Provider specific defaults depend on the final provider types, so the
// environment is applied first.
func finalize(cfg *AppConfig) (*AppConfig, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
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
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := finalize(&AppConfig{})
	return cfg, userPath, err
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

// Secret resolves the value of the environment variable named by envName.
func Secret(envName string) string {
	if envName == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envName))
}

// DatabasePath returns the sqlite path, defaulting to a file inside the index directory.
func (c *AppConfig) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.IndexDir, "docqa.db")
}

// Lambda returns the configured MMR lambda.
func (c *AppConfig) Lambda() float64 {
	if c.Reranker.Lambda == nil {
		return DefaultLambda
	}
	return *c.Reranker.Lambda
}

// Validate reports configuration errors. A failing config must not serve requests.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.IndexDir == "" {
		errs = append(errs, errors.New("index_dir is required"))
	}
	if c.Chunker.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize))
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker.overlap must be in [0, chunk_size), got %d", c.Chunker.Overlap))
	}
	switch c.Embedder.Type {
	case "hashing":
	case "openai":
		if c.Embedder.OpenAI == nil {
			errs = append(errs, errors.New("embedder.openai config missing"))
		}
	case "gemini":
		if c.Embedder.Gemini == nil {
			errs = append(errs, errors.New("embedder.gemini config missing"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedder: %s", c.Embedder.Type))
	}
	switch c.Generator.Type {
	case "groq", "openai":
		if c.Generator.OpenAI == nil {
			errs = append(errs, fmt.Errorf("generator.openai config missing for %s", c.Generator.Type))
		}
	case "gemini":
		if c.Generator.Gemini == nil {
			errs = append(errs, errors.New("generator.gemini config missing"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown generator: %s", c.Generator.Type))
	}
	switch c.Reranker.Type {
	case "none":
	case "tei":
		if c.Reranker.TEI == nil || c.Reranker.TEI.URL == "" {
			errs = append(errs, errors.New("reranker.tei.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown reranker: %s", c.Reranker.Type))
	}
	if l := c.Lambda(); l < 0 || l > 1 {
		errs = append(errs, fmt.Errorf("reranker.lambda must be in [0, 1], got %v", l))
	}
	if c.Retrieval.MaxK < 1 {
		errs = append(errs, errors.New("retrieval.max_k must be at least 1"))
	}
	if c.Retrieval.DefaultK < 1 || c.Retrieval.DefaultK > c.Retrieval.MaxK {
		errs = append(errs, fmt.Errorf("retrieval.default_k must be in [1, %d]", c.Retrieval.MaxK))
	}
	if c.Retrieval.Candidates < c.Retrieval.MaxK {
		errs = append(errs, errors.New("retrieval.candidates must be >= retrieval.max_k"))
	}
	if c.Snapshot.Enabled && c.Snapshot.Bucket == "" {
		errs = append(errs, errors.New("snapshot.bucket is required when snapshot is enabled"))
	}
	return errors.Join(errs...)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

const (
	DefaultChunkSize  = 450
	DefaultOverlap    = 50
	DefaultLambda     = 0.65
	DefaultCandidates = 20
	DefaultK          = 5
	DefaultMaxK       = 10
)

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if len(cfg.DataDirs) == 0 {
		cfg.DataDirs = []string{"data"}
	}
	if cfg.IndexDir == "" {
		cfg.IndexDir = "store"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Chunker.Tokenizer == "" {
		cfg.Chunker.Tokenizer = "cl100k_base"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = DefaultChunkSize
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = DefaultOverlap
		}
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Hashing.Dimension == 0 {
		cfg.Embedder.Hashing.Dimension = 384
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI == nil {
		cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
	}
	if cfg.Embedder.Type == "gemini" && cfg.Embedder.Gemini == nil {
		cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Embedder.Type == "gemini" {
		if cfg.Embedder.Gemini.APIKeyEnv == "" {
			cfg.Embedder.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Embedder.Gemini.Model == "" {
			cfg.Embedder.Gemini.Model = "text-embedding-004"
		}
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "groq"
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	if (cfg.Generator.Type == "groq" || cfg.Generator.Type == "openai") && cfg.Generator.OpenAI == nil {
		cfg.Generator.OpenAI = &OpenAIGeneratorConfig{}
	}
	if g := cfg.Generator.OpenAI; g != nil {
		switch cfg.Generator.Type {
		case "groq":
			if g.BaseURL == "" {
				g.BaseURL = "https://api.groq.com/openai/v1"
			}
			if g.APIKeyEnv == "" {
				g.APIKeyEnv = "GROQ_API_KEY"
			}
			if g.Model == "" {
				g.Model = "llama-3.1-8b-instant"
			}
		case "openai":
			if g.APIKeyEnv == "" {
				g.APIKeyEnv = "OPENAI_API_KEY"
			}
			if g.Model == "" {
				g.Model = "gpt-4o-mini"
			}
		}
	}
	if cfg.Generator.Type == "gemini" && cfg.Generator.Gemini == nil {
		cfg.Generator.Gemini = &GeminiGeneratorConfig{}
	}
	if g := cfg.Generator.Gemini; g != nil {
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "GEMINI_API_KEY"
		}
		if g.Model == "" {
			g.Model = "gemini-2.0-flash"
		}
	}
	if cfg.Reranker.Type == "" {
		cfg.Reranker.Type = "none"
	}
	if cfg.Retrieval.Candidates == 0 {
		cfg.Retrieval.Candidates = DefaultCandidates
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = DefaultK
	}
	if cfg.Retrieval.MaxK == 0 {
		cfg.Retrieval.MaxK = DefaultMaxK
	}
	if cfg.Retrieval.Blocklist == nil {
		cfg.Retrieval.Blocklist = []string{"index", "glossary", "sources"}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.APIKeyEnv == "" {
		cfg.Server.APIKeyEnv = "BACKEND_API_KEY"
	}
	if cfg.Schedule.CacheTTLHours == 0 {
		cfg.Schedule.CacheTTLHours = 24 * 30
	}
	if cfg.Snapshot.Prefix == "" {
		cfg.Snapshot.Prefix = "docqa/index"
	}
	if cfg.Snapshot.AccessKeyEnv == "" {
		cfg.Snapshot.AccessKeyEnv = "S3_ACCESS_KEY"
	}
	if cfg.Snapshot.SecretKeyEnv == "" {
		cfg.Snapshot.SecretKeyEnv = "S3_SECRET_KEY"
	}
}

// Provider names accepted from the environment, mapped onto config types.
var providerAliases = map[string]string{
	"local": "hashing",
}

var rerankAliases = map[string]string{
	"local": "tei",
	"":      "none",
}

func applyEnvOverrides(cfg *AppConfig) error {
	if v := os.Getenv("INDEX_DIR"); v != "" {
		cfg.IndexDir = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDirs = strings.Split(v, string(os.PathListSeparator))
	}
	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHUNK_SIZE: %w", err)
		}
		cfg.Chunker.ChunkSize = n
	}
	if v := os.Getenv("CHUNK_OVERLAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHUNK_OVERLAP: %w", err)
		}
		cfg.Chunker.Overlap = n
	}
	if v, ok := os.LookupEnv("EMBEDDING_PROVIDER"); ok {
		v = strings.ToLower(strings.TrimSpace(v))
		if alias, ok := providerAliases[v]; ok {
			v = alias
		}
		cfg.Embedder.Type = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("GENERATION_PROVIDER"))); v != "" {
		cfg.Generator.Type = v
	}
	if v, ok := os.LookupEnv("RERANK_PROVIDER"); ok {
		v = strings.ToLower(strings.TrimSpace(v))
		if alias, ok := rerankAliases[v]; ok {
			v = alias
		}
		cfg.Reranker.Type = v
	}
	if v := os.Getenv("RERANK_URL"); v != "" {
		if cfg.Reranker.TEI == nil {
			cfg.Reranker.TEI = &TEIConfig{}
		}
		cfg.Reranker.TEI.URL = v
	}
	return nil
}
