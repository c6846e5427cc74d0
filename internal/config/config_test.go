package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wikiagent.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// chdirTemp isolates the test from a wikiagent.toml in the working directory.
func chdirTemp(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, 1000, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 200, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, 5, cfg.Retrieval.BatchSize)
	assert.Equal(t, 3, cfg.Agent.MaxRounds)
	assert.Equal(t, 10, cfg.Agent.HistoryTurns)
}

func TestLoad_TOMLThenEnv(t *testing.T) {
	chdirTemp(t)
	path := writeConfig(t, `
environment = "staging"

[llm]
provider = "anthropic"
model = "claude-3-5-sonnet-20241022"
timeout = "45s"

[index]
backend = "sqlite"
path = "/data/index.db"

[retrieval]
top_k = 4
min_score = 0.2

[agent]
max_rounds = 5
parallel_tools = 2

[server]
cors_origins = ["https://a.example", "https://b.example"]
`)

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("RETRIEVAL_K", "6")
	t.Setenv("CORS_ORIGINS", "https://c.example, https://d.example")
	t.Setenv("OPENWEATHER_API_KEY", "owm")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-ant", cfg.LLM.APIKey)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, "/data/index.db", cfg.Index.Path)
	assert.Equal(t, 6, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.2, cfg.Retrieval.MinScore, 1e-9)
	assert.Equal(t, 5, cfg.Agent.MaxRounds)
	assert.Equal(t, 2, cfg.Agent.ParallelTools)
	assert.Equal(t, []string{"https://c.example", "https://d.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "owm", cfg.Weather.APIKey)
}

func TestLoad_ConfigFromEnvPath(t *testing.T) {
	chdirTemp(t)
	path := writeConfig(t, "[log]\nlevel = \"debug\"\nformat = \"json\"\n")
	t.Setenv("WIKIAGENT_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_MalformedFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load(writeConfig(t, "[llm\nprovider = "))
	assert.Error(t, err)
}

func TestLoad_InvalidEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CHUNK_SIZE", "big")
	t.Setenv("WIKIAGENT_OTLP_INSECURE", "maybe")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `CHUNK_SIZE="big" is not a valid integer`)
	assert.Contains(t, err.Error(), `WIKIAGENT_OTLP_INSECURE="maybe" is not a valid boolean`)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"provider", func(c *Config) { c.LLM.Provider = "gemini" }, "llm.provider"},
		{"embedding provider", func(c *Config) { c.Embedding.Provider = "x" }, "embedding.provider"},
		{"backend", func(c *Config) { c.Index.Backend = "chroma" }, "index.backend"},
		{"postgres dsn", func(c *Config) { c.Index.Backend = "postgres" }, "index.dsn"},
		{"overlap", func(c *Config) { c.Retrieval.ChunkOverlap = c.Retrieval.ChunkSize }, "chunk_overlap"},
		{"min score", func(c *Config) { c.Retrieval.MinScore = 1.5 }, "min_score"},
		{"rounds", func(c *Config) { c.Agent.MaxRounds = 0 }, "max_rounds"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = envInt("TEST_INT_MISSING", 99)
	require.NoError(t, err)
	assert.Equal(t, 99, v)

	t.Setenv("TEST_FLOAT", "0.5")
	f, err := envFloat("TEST_FLOAT", 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f, 1e-9)

	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
}
