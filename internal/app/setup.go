package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dreamland/sherlock/db"
	"github.com/dreamland/sherlock/internal/config"
	"github.com/dreamland/sherlock/internal/database"
	"github.com/dreamland/sherlock/internal/embedding"
	"github.com/dreamland/sherlock/internal/hyde"
	"github.com/dreamland/sherlock/internal/knowledge"
	"github.com/dreamland/sherlock/internal/normalize"
	"github.com/dreamland/sherlock/internal/vectorindex"
)

// Setup creates and initializes the application.
// On error everything already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, model, embedder, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Model = model
	a.Embedder = embedder

	store, err := knowledge.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating entry store: %w", err)
	}
	a.Store = store

	index, err := vectorindex.New(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector index: %w", err)
	}
	a.Index = index

	a.Embeddings = embedding.New(embedder, embedding.Config{}, logger)
	a.Expander = hyde.New(g, model, logger)
	a.Normalizer = normalize.New(g, model, logger)

	svc, err := knowledge.NewService(store, index, a.Embeddings, a.Expander, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge service: %w", err)
	}
	a.Service = svc

	return a, nil
}

// provideOtelShutdown wires an OTLP HTTP span exporter into Genkit's
// TracerProvider. Must run before provideGenkit so spans are captured
// from the first Generate call. Returns a shutdown func, a no-op when
// tracing is disabled or the exporter cannot be created.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	tc := cfg.Tracing
	if !tc.Enabled {
		return func() {}
	}

	endpoint := tc.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	// OTEL env vars are read by Genkit's TracerProvider. Setup runs once,
	// before any goroutines are spawned, so os.Setenv is safe here.
	if tc.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", tc.ServiceName)
	}
	if tc.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+tc.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", tc.ServiceName,
		"environment", tc.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and opens the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// provideGenkit initializes Genkit with the configured provider plugin and
// resolves the generation model and the embedder. Each provider registers
// its artifacts differently:
//   - openai: models and embedders auto-registered in Init, looked up by name
//   - gemini: models auto-registered, embedder via GoogleAIEmbedder
//   - ollama: no auto-discovery, model and embedder defined explicitly
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, ai.Model, ai.Embedder, error) {
	var (
		g        *genkit.Genkit
		model    ai.Model
		embedder ai.Embedder
	)

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, nil, nil, errors.New("initializing genkit with ollama provider")
		}
		model = ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		embedder = ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)

	case config.ProviderGemini, config.ProviderGoogleAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, nil, errors.New("initializing genkit with gemini provider")
		}
		model = genkit.LookupModel(g, cfg.FullModelName())
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)

	default: // openai
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, nil, nil, errors.New("initializing genkit with openai provider")
		}
		model = genkit.LookupModel(g, cfg.FullModelName())
		embedder = genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	}

	if model == nil {
		return nil, nil, nil, fmt.Errorf("model %q not found for provider %q", cfg.ModelName, cfg.Provider)
	}
	if embedder == nil {
		return nil, nil, nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}

	logger.Info("initialized Genkit",
		"provider", cfg.Provider,
		"model", cfg.ModelName,
		"embedder", cfg.EmbedderModel,
	)
	return g, model, embedder, nil
}
