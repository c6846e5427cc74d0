// Package app assembles a WikiAgent and its collaborators from config.
package app

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/wikiagent"
	"github.com/hupe1980/wikiagent/agent"
	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/internal/config"
	"github.com/hupe1980/wikiagent/internal/telemetry"
	"github.com/hupe1980/wikiagent/logging"
	"github.com/hupe1980/wikiagent/model"
	"github.com/hupe1980/wikiagent/model/anthropic"
	"github.com/hupe1980/wikiagent/model/openai"
	"github.com/hupe1980/wikiagent/observer"
	"github.com/hupe1980/wikiagent/retrieval"
	"github.com/hupe1980/wikiagent/tool"
	"github.com/hupe1980/wikiagent/vectorindex"
	"github.com/hupe1980/wikiagent/vectorindex/postgres"
	"github.com/hupe1980/wikiagent/vectorindex/qdrant"
	"github.com/hupe1980/wikiagent/vectorindex/sqlite"
	"github.com/hupe1980/wikiagent/weather"
)

// Options overrides providers built from config. Nil fields use config.
type Options struct {
	Model    model.Model
	Embedder model.Embedder
	Weather  tool.WeatherProvider
	Logger   logging.Logger
	Version  string

	// SkipTelemetry leaves the global otel providers untouched.
	SkipTelemetry bool
}

// App holds the assembled components. Close releases them.
type App struct {
	Config    config.Config
	Logger    logging.Logger
	Telemetry telemetry.Status
	Index     vectorindex.Index
	Retriever *retrieval.Retriever
	Registry  *tool.Registry
	Agent     *wikiagent.WikiAgent

	sink              *observer.AsyncSink
	cache             *retrieval.RedisEmbeddingCache
	telemetryShutdown telemetry.Shutdown
}

// New builds every component named by cfg. On error, everything built so
// far is released.
func New(ctx context.Context, cfg config.Config, optFns ...func(o *Options)) (a *App, err error) {
	opts := Options{Version: "dev"}
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger, err = NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
	}

	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	telemetryCfg := telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     opts.Version,
		Insecure:    cfg.Telemetry.Insecure,
	}
	if !opts.SkipTelemetry {
		a.telemetryShutdown, err = telemetry.Init(ctx, telemetryCfg)
		if err != nil {
			return nil, err
		}
		a.Telemetry = telemetry.StatusOf(telemetryCfg)
	}

	llm := opts.Model
	if llm == nil {
		llm, err = newModel(cfg.LLM)
		if err != nil {
			return nil, err
		}
	}
	llm = model.WithRetry(llm, func(o *model.RetryOptions) {
		o.Timeout = cfg.LLM.Timeout
		o.Logger = logging.WithComponent(logger, "llm")
	})

	embedder := opts.Embedder
	if embedder == nil {
		embedder, err = newEmbedder(cfg.Embedding)
		if err != nil {
			return nil, err
		}
	}
	embedder = model.WithEmbeddingRetry(embedder, func(o *model.RetryOptions) {
		o.Timeout = cfg.Embedding.Timeout
		o.Logger = logging.WithComponent(logger, "embedding")
	})

	if cfg.Cache.RedisURL != "" {
		a.cache, err = retrieval.NewRedisEmbeddingCache(ctx, cfg.Cache.RedisURL, func(o *retrieval.RedisCacheOptions) {
			if cfg.Cache.TTL > 0 {
				o.TTL = cfg.Cache.TTL
			}
		})
		if err != nil {
			return nil, fmt.Errorf("app: embedding cache: %w", err)
		}
		embedder = retrieval.NewCachedEmbedder(embedder, a.cache, cfg.Embedding.Model, logging.WithComponent(logger, "cache"))
	}

	a.Index, err = newIndex(ctx, cfg.Index, embedder.Dimensions(), logging.WithComponent(logger, "index"))
	if err != nil {
		return nil, err
	}

	a.Retriever = retrieval.New(a.Index, embedder, func(o *retrieval.Options) {
		o.ChunkSize = cfg.Retrieval.ChunkSize
		o.ChunkOverlap = cfg.Retrieval.ChunkOverlap
		o.BatchSize = cfg.Retrieval.BatchSize
		o.MinDocumentLength = cfg.Retrieval.MinDocumentLength
		o.MinChunkLength = cfg.Retrieval.MinChunkLength
		o.MaxDocuments = cfg.Retrieval.MaxDocuments
		o.TopK = cfg.Retrieval.TopK
		o.MinScore = float32(cfg.Retrieval.MinScore)
		o.Logger = logging.WithComponent(logger, "retrieval")
	})

	a.Registry, err = newRegistry(cfg.Weather, a.Retriever, opts.Weather, logging.WithComponent(logger, "weather"))
	if err != nil {
		return nil, err
	}

	inst, err := observer.NewInstruments()
	if err != nil {
		return nil, fmt.Errorf("app: instruments: %w", err)
	}
	a.sink = observer.NewAsyncSink(
		core.MultiSink{observer.NewOTelSink(inst), observer.NewLogSink(logging.WithComponent(logger, "trace"))},
		func(o *observer.AsyncOptions) { o.Logger = logging.WithComponent(logger, "observer") },
	)

	a.Agent = wikiagent.New(llm, a.Registry, func(o *wikiagent.Options) {
		o.HistoryTurns = cfg.Agent.HistoryTurns
		o.Logger = logging.WithComponent(logger, "agent")
		o.AgentOptions = append(o.AgentOptions,
			agent.WithMaxRounds(cfg.Agent.MaxRounds),
			agent.WithParallelTools(cfg.Agent.ParallelTools),
			agent.WithEventSink(a.sink),
			func(o *agent.Options) { o.ToolTimeout = cfg.Agent.ToolTimeout },
		)
	})

	logger.Info("app.ready",
		"llm", llm.Info().Provider,
		"index", cfg.Index.Backend,
		"tools", a.Registry.Names(),
	)
	return a, nil
}

// EnsureCorpus ingests the configured corpus when the index is empty.
// It reports whether an ingest ran.
func (a *App) EnsureCorpus(ctx context.Context) (bool, error) {
	if a.Config.Corpus.Path == "" {
		return false, nil
	}
	n, err := a.Index.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("app: count index: %w", err)
	}
	if n > 0 {
		a.Logger.Info("app.corpus.present", "chunks", n)
		return false, nil
	}
	if _, err := a.Ingest(ctx, a.Config.Corpus.Path); err != nil {
		return false, err
	}
	return true, nil
}

// Ingest loads and indexes every supported file below path.
func (a *App) Ingest(ctx context.Context, path string) (retrieval.IngestStats, error) {
	defer logging.StartTimer(a.Logger, "corpus.ingest")()
	stats, err := a.Retriever.IngestPath(ctx, path)
	if err != nil {
		return stats, fmt.Errorf("app: ingest %s: %w", path, err)
	}
	a.Logger.Info("app.corpus.ingested",
		"path", path,
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

// Close flushes trace delivery and releases storage and telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.sink != nil {
		errs = append(errs, a.sink.Close(ctx))
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	if a.telemetryShutdown != nil {
		errs = append(errs, a.telemetryShutdown(ctx))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.LogConfig) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return logging.NewSlogLogger(level, cfg.Format, false), nil
}

func newModel(cfg config.LLMConfig) (model.Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("app: no API key configured for llm provider %s", cfg.Provider)
	}
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.Model = cfg.Model
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Model)
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("app: unsupported llm provider %q", cfg.Provider)
	}
}

func newEmbedder(cfg config.EmbeddingConfig) (model.Embedder, error) {
	switch cfg.Provider {
	case "hash":
		return model.NewHashEmbedder(cfg.Dimensions), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("app: OPENAI_API_KEY is required for openai embeddings")
		}
		return openai.NewEmbedder(func(o *openai.EmbedderOptions) {
			o.Model = cfg.Model
			o.Dimensions = cfg.Dimensions
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("app: unsupported embedding provider %q", cfg.Provider)
	}
}

func newIndex(ctx context.Context, cfg config.IndexConfig, dims int, logger logging.Logger) (vectorindex.Index, error) {
	switch cfg.Backend {
	case "memory":
		return vectorindex.NewMemory(), nil
	case "sqlite":
		idx, err := sqlite.New(ctx, cfg.Path, func(o *sqlite.Options) { o.Logger = logger })
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "qdrant":
		idx, err := qdrant.New(qdrant.Config{
			URL:        cfg.URL,
			APIKey:     cfg.APIKey,
			Collection: cfg.Collection,
			Dims:       uint64(dims),
		}, func(o *qdrant.Options) { o.Logger = logger })
		if err != nil {
			return nil, err
		}
		if err := idx.EnsureCollection(ctx); err != nil {
			_ = idx.Close()
			return nil, err
		}
		return idx, nil
	case "postgres":
		idx, err := postgres.New(ctx, cfg.DSN, dims, func(o *postgres.Options) {
			o.Table = cfg.Collection
			o.Logger = logger
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("app: unsupported index backend %q", cfg.Backend)
	}
}

func newRegistry(cfg config.WeatherConfig, r *retrieval.Retriever, provider tool.WeatherProvider, logger logging.Logger) (*tool.Registry, error) {
	tools := []tool.Tool{tool.NewKnowledgeTool(r)}

	if provider == nil && cfg.APIKey != "" {
		provider = weather.New(cfg.APIKey, func(o *weather.Options) {
			if cfg.BaseURL != "" {
				o.BaseURL = cfg.BaseURL
			}
			if cfg.Timeout > 0 {
				o.Timeout = cfg.Timeout
			}
			o.RatePerSecond = cfg.RatePerSecond
			o.Logger = logger
		})
	}
	if provider != nil {
		tools = append(tools, tool.NewWeatherTools(provider)...)
	} else {
		logger.Warn("app.weather.disabled", "reason", "OPENWEATHER_API_KEY not set")
	}

	tools = append(tools, tool.NewCalculatorTool())
	return tool.NewRegistry(tools...)
}
