// Package config loads and validates application configuration.
//
// Values are layered: Default, then an optional TOML file, then environment
// variables (env wins). Load finishes with Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is read when no config file is named and it exists.
const DefaultPath = "wikiagent.toml"

// Config holds all application configuration.
type Config struct {
	Environment string `toml:"environment"`

	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Index     IndexConfig     `toml:"index"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Corpus    CorpusConfig    `toml:"corpus"`
	Cache     CacheConfig     `toml:"cache"`
	Weather   WeatherConfig   `toml:"weather"`
	Agent     AgentConfig     `toml:"agent"`
	Server    ServerConfig    `toml:"server"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
}

// LLMConfig selects the reasoning provider.
type LLMConfig struct {
	Provider    string        `toml:"provider"` // "openai", "anthropic"
	Model       string        `toml:"model"`
	APIKey      string        `toml:"api_key"`
	BaseURL     string        `toml:"base_url"`
	Temperature float64       `toml:"temperature"`
	MaxTokens   int           `toml:"max_tokens"`
	Timeout     time.Duration `toml:"timeout"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string        `toml:"provider"` // "openai", "hash"
	Model      string        `toml:"model"`
	Dimensions int           `toml:"dimensions"`
	APIKey     string        `toml:"api_key"`
	BaseURL    string        `toml:"base_url"`
	Timeout    time.Duration `toml:"timeout"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend    string `toml:"backend"` // "memory", "sqlite", "qdrant", "postgres"
	Path       string `toml:"path"`    // sqlite
	URL        string `toml:"url"`     // qdrant
	APIKey     string `toml:"api_key"` // qdrant
	Collection string `toml:"collection"`
	DSN        string `toml:"dsn"` // postgres
}

// RetrievalConfig tunes ingestion and query.
type RetrievalConfig struct {
	ChunkSize         int     `toml:"chunk_size"`
	ChunkOverlap      int     `toml:"chunk_overlap"`
	TopK              int     `toml:"top_k"`
	MinScore          float64 `toml:"min_score"`
	BatchSize         int     `toml:"batch_size"`
	MinDocumentLength int     `toml:"min_document_length"`
	MinChunkLength    int     `toml:"min_chunk_length"`
	MaxDocuments      int     `toml:"max_documents"`
}

// CorpusConfig names the documents ingested by "serve" and "ingest".
type CorpusConfig struct {
	Path string `toml:"path"`
}

// CacheConfig configures the Redis embedding cache. An empty RedisURL
// disables it.
type CacheConfig struct {
	RedisURL string        `toml:"redis_url"`
	TTL      time.Duration `toml:"ttl"`
}

// WeatherConfig configures the OpenWeatherMap client.
type WeatherConfig struct {
	APIKey        string        `toml:"api_key"`
	BaseURL       string        `toml:"base_url"`
	Timeout       time.Duration `toml:"timeout"`
	RatePerSecond float64       `toml:"rate_per_second"`
}

// AgentConfig tunes the reasoning loop and sessions.
type AgentConfig struct {
	MaxRounds     int           `toml:"max_rounds"`
	HistoryTurns  int           `toml:"history_turns"`
	ParallelTools int           `toml:"parallel_tools"`
	ToolTimeout   time.Duration `toml:"tool_timeout"`
	SessionIdle   time.Duration `toml:"session_idle"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr                string        `toml:"addr"`
	CORSOrigins         []string      `toml:"cors_origins"`
	ReadTimeout         time.Duration `toml:"read_timeout"`
	WriteTimeout        time.Duration `toml:"write_timeout"`
	MaxRequestBodyBytes int64         `toml:"max_request_body_bytes"`
}

// TelemetryConfig configures OTLP export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	Insecure     bool   `toml:"insecure"`
	ServiceName  string `toml:"service_name"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text", "json"
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Environment: "development",
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.1,
			Timeout:     60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			Timeout:    30 * time.Second,
		},
		Index: IndexConfig{
			Backend:    "memory",
			Path:       "wikiagent.db",
			URL:        "localhost:6334",
			Collection: "wiki_collection",
		},
		Retrieval: RetrievalConfig{
			ChunkSize:         1000,
			ChunkOverlap:      200,
			TopK:              3,
			BatchSize:         5,
			MinDocumentLength: 100,
			MinChunkLength:    50,
			MaxDocuments:      5,
		},
		Cache:   CacheConfig{TTL: 7 * 24 * time.Hour},
		Weather: WeatherConfig{Timeout: 10 * time.Second, RatePerSecond: 1},
		Agent: AgentConfig{
			MaxRounds:    3,
			HistoryTurns: 10,
			ToolTimeout:  30 * time.Second,
			SessionIdle:  2 * time.Hour,
		},
		Server: ServerConfig{
			Addr:                ":8000",
			CORSOrigins:         []string{"http://localhost:8501"},
			ReadTimeout:         30 * time.Second,
			WriteTimeout:        2 * time.Minute,
			MaxRequestBodyBytes: 1 << 20,
		},
		Telemetry: TelemetryConfig{ServiceName: "wikiagent"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
//
// path names the TOML file; when empty, WIKIAGENT_CONFIG is used, then
// DefaultPath if it exists. A named file that cannot be read is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("WIKIAGENT_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	c.Environment = envStr("ENVIRONMENT", c.Environment)

	c.LLM.Provider = envStr("WIKIAGENT_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = envStr("WIKIAGENT_LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = envStr("WIKIAGENT_LLM_BASE_URL", c.LLM.BaseURL)
	switch c.LLM.Provider {
	case "anthropic":
		c.LLM.APIKey = envStr("ANTHROPIC_API_KEY", c.LLM.APIKey)
	default:
		c.LLM.APIKey = envStr("OPENAI_API_KEY", c.LLM.APIKey)
	}
	var err error
	c.LLM.Temperature, err = envFloat("OPENAI_TEMPERATURE", c.LLM.Temperature)
	collect(err)
	c.LLM.MaxTokens, err = envInt("OPENAI_MAX_TOKENS", c.LLM.MaxTokens)
	collect(err)

	c.Embedding.Provider = envStr("WIKIAGENT_EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = envStr("WIKIAGENT_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.APIKey = envStr("OPENAI_API_KEY", c.Embedding.APIKey)
	c.Embedding.Dimensions, err = envInt("WIKIAGENT_EMBEDDING_DIMENSIONS", c.Embedding.Dimensions)
	collect(err)

	c.Index.Backend = envStr("WIKIAGENT_INDEX_BACKEND", c.Index.Backend)
	c.Index.Path = envStr("WIKIAGENT_INDEX_PATH", c.Index.Path)
	c.Index.URL = envStr("QDRANT_URL", c.Index.URL)
	c.Index.APIKey = envStr("QDRANT_API_KEY", c.Index.APIKey)
	c.Index.Collection = envStr("COLLECTION_NAME", c.Index.Collection)
	c.Index.DSN = envStr("DATABASE_URL", c.Index.DSN)

	c.Retrieval.ChunkSize, err = envInt("CHUNK_SIZE", c.Retrieval.ChunkSize)
	collect(err)
	c.Retrieval.ChunkOverlap, err = envInt("CHUNK_OVERLAP", c.Retrieval.ChunkOverlap)
	collect(err)
	c.Retrieval.TopK, err = envInt("RETRIEVAL_K", c.Retrieval.TopK)
	collect(err)
	c.Retrieval.BatchSize, err = envInt("BATCH_SIZE", c.Retrieval.BatchSize)
	collect(err)
	c.Retrieval.MaxDocuments, err = envInt("MAX_DOCUMENTS", c.Retrieval.MaxDocuments)
	collect(err)

	c.Corpus.Path = envStr("WIKIAGENT_CORPUS", c.Corpus.Path)
	c.Cache.RedisURL = envStr("REDIS_URL", c.Cache.RedisURL)

	c.Weather.APIKey = envStr("OPENWEATHER_API_KEY", c.Weather.APIKey)
	c.Weather.BaseURL = envStr("OPENWEATHER_BASE_URL", c.Weather.BaseURL)

	c.Agent.MaxRounds, err = envInt("WIKIAGENT_MAX_ROUNDS", c.Agent.MaxRounds)
	collect(err)
	c.Agent.HistoryTurns, err = envInt("WIKIAGENT_HISTORY_TURNS", c.Agent.HistoryTurns)
	collect(err)
	c.Agent.ParallelTools, err = envInt("WIKIAGENT_PARALLEL_TOOLS", c.Agent.ParallelTools)
	collect(err)

	c.Server.Addr = envStr("WIKIAGENT_ADDR", c.Server.Addr)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	c.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)
	c.Telemetry.Insecure, err = envBool("WIKIAGENT_OTLP_INSECURE", c.Telemetry.Insecure)
	collect(err)

	c.Log.Level = strings.ToLower(envStr("LOG_LEVEL", c.Log.Level))
	c.Log.Format = envStr("WIKIAGENT_LOG_FORMAT", c.Log.Format)

	return errors.Join(errs...)
}

// Validate checks that values are usable. Provider credentials are checked by
// the commands that need them.
func (c Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("config: llm.provider %q must be openai or anthropic", c.LLM.Provider))
	}
	switch c.Embedding.Provider {
	case "openai", "hash":
	default:
		errs = append(errs, fmt.Errorf("config: embedding.provider %q must be openai or hash", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("config: embedding.dimensions must be positive"))
	}
	switch c.Index.Backend {
	case "memory", "sqlite", "qdrant", "postgres":
	default:
		errs = append(errs, fmt.Errorf("config: index.backend %q is not supported", c.Index.Backend))
	}
	if c.Index.Backend == "postgres" && c.Index.DSN == "" {
		errs = append(errs, errors.New("config: index.dsn (DATABASE_URL) is required for the postgres backend"))
	}
	if c.Retrieval.ChunkSize <= 0 {
		errs = append(errs, errors.New("config: retrieval.chunk_size must be positive"))
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		errs = append(errs, errors.New("config: retrieval.chunk_overlap must be in [0, chunk_size)"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, errors.New("config: retrieval.top_k must be positive"))
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		errs = append(errs, errors.New("config: retrieval.min_score must be in [0, 1]"))
	}
	if c.Retrieval.BatchSize <= 0 {
		errs = append(errs, errors.New("config: retrieval.batch_size must be positive"))
	}
	if c.Agent.MaxRounds <= 0 {
		errs = append(errs, errors.New("config: agent.max_rounds must be positive"))
	}
	if c.Agent.HistoryTurns <= 0 {
		errs = append(errs, errors.New("config: agent.history_turns must be positive"))
	}
	if c.Server.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("config: server.max_request_body_bytes must be positive"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
