// Package config loads service settings from the environment, an optional .env file, and an
// optional YAML file named by DOCRAG_CONFIG. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderHash      = "hash"

	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreQdrant = "qdrant"

	defaultOpenAIURL       = "https://api.openai.com/v1"
	defaultAnthropicModel  = "claude-sonnet-4-5-20250929"
	defaultGenerationModel = "gpt-4o-mini"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Embedding service
	EmbeddingProvider   string
	EmbeddingBaseURL    string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingRPS        float64
	EmbeddingTimeout    time.Duration
	EmbeddingWorkers    int
	EmbeddingMaxRetries int

	// Generation service
	GenerationProvider    string
	GenerationBaseURL     string
	GenerationAPIKey      string
	GenerationModel       string
	GenerationTemperature float64
	GenerationMaxTokens   int
	GenerationTimeout     time.Duration

	// Chunking
	Tokenizer         string
	TokenizerFallback bool
	MaxTokens         int
	MergePeers        bool

	// Retrieval
	TopK               int
	MinScore           float64
	ContextTokenBudget int

	// Vector store
	VectorStore      string
	SQLitePath       string
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Ingestion
	WorkerCount          int
	MaxQueueSize         int
	MaxUploadBytes       int64
	IngestTimeout        time.Duration
	PDFFallbackPdftotext bool

	// State
	JobTTL     time.Duration
	SessionTTL time.Duration
}

// Load reads .env (if present), the DOCRAG_CONFIG file (if set), and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	src := source{}
	if path := os.Getenv("DOCRAG_CONFIG"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, ragerr.InvalidConfiguration("load config", "%v", err)
		}
		src.file = file
	}
	return src.build(), nil
}

func (s source) build() Config {
	cfg := Config{
		Port:   s.envOr("PORT", "8090"),
		APIKey: s.envOr("DOCRAG_API_KEY", ""),

		EmbeddingProvider:   strings.ToLower(s.envOr("EMBEDDING_PROVIDER", ProviderOpenAI)),
		EmbeddingBaseURL:    s.envOr("EMBEDDING_BASE_URL", defaultOpenAIURL),
		EmbeddingAPIKey:     s.envOr("EMBEDDING_API_KEY", s.envOr("OPENAI_API_KEY", "")),
		EmbeddingModel:      s.envOr("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: s.envInt("EMBEDDING_DIMENSIONS", 0),
		EmbeddingRPS:        s.envFloat("EMBEDDING_RPS", 0),
		EmbeddingTimeout:    s.envDuration("EMBEDDING_TIMEOUT", 60*time.Second),
		EmbeddingWorkers:    s.envInt("EMBEDDING_WORKERS", 4),
		EmbeddingMaxRetries: s.envInt("EMBEDDING_MAX_RETRIES", 3),

		GenerationProvider:    strings.ToLower(s.envOr("GENERATION_PROVIDER", ProviderOpenAI)),
		GenerationBaseURL:     s.envOr("GENERATION_BASE_URL", ""),
		GenerationModel:       s.envOr("GENERATION_MODEL", ""),
		GenerationTemperature: s.envFloat("GENERATION_TEMPERATURE", 0.3),
		GenerationMaxTokens:   s.envInt("GENERATION_MAX_TOKENS", 0),
		GenerationTimeout:     s.envDuration("GENERATION_TIMEOUT", 2*time.Minute),

		Tokenizer:         s.envOr("TOKENIZER", "cl100k_base"),
		TokenizerFallback: s.envBool("TOKENIZER_FALLBACK", true),
		MaxTokens:         s.envInt("MAX_TOKENS", 8191),
		MergePeers:        s.envBool("MERGE_PEERS", true),

		TopK:               s.envInt("TOP_K", 5),
		MinScore:           s.envFloat("MIN_SCORE", 0),
		ContextTokenBudget: s.envInt("CONTEXT_TOKEN_BUDGET", 0),

		VectorStore:      strings.ToLower(s.envOr("VECTOR_STORE", StoreSQLite)),
		SQLitePath:       s.envOr("SQLITE_PATH", "data/docrag.db"),
		QdrantURL:        s.envOr("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     s.envOr("QDRANT_API_KEY", ""),
		QdrantCollection: s.envOr("QDRANT_COLLECTION", "docrag"),

		WorkerCount:          s.envInt("WORKER_COUNT", 2),
		MaxQueueSize:         s.envInt("MAX_QUEUE_SIZE", 100),
		MaxUploadBytes:       s.envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		IngestTimeout:        s.envDuration("INGEST_TIMEOUT", 10*time.Minute),
		PDFFallbackPdftotext: s.envBool("PDF_FALLBACK_PDFTOTEXT", true),

		JobTTL:     s.envDuration("JOB_TTL", 1*time.Hour),
		SessionTTL: s.envDuration("SESSION_TTL", 2*time.Hour),
	}

	switch cfg.GenerationProvider {
	case ProviderAnthropic:
		cfg.GenerationAPIKey = s.envOr("GENERATION_API_KEY", s.envOr("ANTHROPIC_API_KEY", ""))
		if cfg.GenerationModel == "" {
			cfg.GenerationModel = defaultAnthropicModel
		}
	default:
		cfg.GenerationAPIKey = s.envOr("GENERATION_API_KEY", s.envOr("OPENAI_API_KEY", ""))
		if cfg.GenerationModel == "" {
			cfg.GenerationModel = defaultGenerationModel
		}
		if cfg.GenerationBaseURL == "" {
			cfg.GenerationBaseURL = defaultOpenAIURL
		}
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}

	return cfg
}

// Validate checks settings every entry point needs.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return ragerr.InvalidConfiguration("validate config", format, args...)
	}
	if c.MaxTokens <= 0 {
		return invalid("MAX_TOKENS must be positive, got %d", c.MaxTokens)
	}
	if c.TopK < 0 {
		return invalid("TOP_K must not be negative, got %d", c.TopK)
	}
	if c.EmbeddingWorkers <= 0 {
		return invalid("EMBEDDING_WORKERS must be positive, got %d", c.EmbeddingWorkers)
	}
	if c.GenerationTemperature < 0 || c.GenerationTemperature > 2 {
		return invalid("GENERATION_TEMPERATURE must be within [0, 2], got %v", c.GenerationTemperature)
	}

	switch c.EmbeddingProvider {
	case ProviderOpenAI:
		if c.EmbeddingAPIKey == "" && c.EmbeddingBaseURL == defaultOpenAIURL {
			return invalid("EMBEDDING_API_KEY or OPENAI_API_KEY is required for the OpenAI embeddings API")
		}
	case ProviderHash:
	default:
		return invalid("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}

	switch c.GenerationProvider {
	case ProviderOpenAI:
		if c.GenerationAPIKey == "" && c.GenerationBaseURL == defaultOpenAIURL {
			return invalid("GENERATION_API_KEY or OPENAI_API_KEY is required for the OpenAI chat API")
		}
	case ProviderAnthropic:
		if c.GenerationAPIKey == "" {
			return invalid("ANTHROPIC_API_KEY is required")
		}
	default:
		return invalid("unknown GENERATION_PROVIDER %q", c.GenerationProvider)
	}

	switch c.VectorStore {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return invalid("SQLITE_PATH is required")
		}
	case StoreQdrant:
		if c.QdrantURL == "" || c.QdrantCollection == "" {
			return invalid("QDRANT_URL and QDRANT_COLLECTION are required")
		}
	default:
		return invalid("unknown VECTOR_STORE %q", c.VectorStore)
	}
	return nil
}

// ValidateServer additionally requires the bearer token protecting the HTTP API.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return ragerr.InvalidConfiguration("validate config", "DOCRAG_API_KEY is required")
	}
	return nil
}

// source resolves keys from the environment first, then the config file.
type source struct {
	file map[string]string
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func (s source) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) envOr(key, fallback string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return fallback
}

func (s source) envInt(key string, fallback int) int {
	if v := s.get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (s source) envInt64(key string, fallback int64) int64 {
	if v := s.get(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func (s source) envFloat(key string, fallback float64) float64 {
	if v := s.get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func (s source) envBool(key string, fallback bool) bool {
	if v := s.get(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func (s source) envDuration(key string, fallback time.Duration) time.Duration {
	if v := s.get(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
