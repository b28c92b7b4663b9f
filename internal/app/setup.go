package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadgate/leadgate/db"
	"github.com/leadgate/leadgate/internal/api"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/conversation"
	"github.com/leadgate/leadgate/internal/extract"
	"github.com/leadgate/leadgate/internal/history"
	"github.com/leadgate/leadgate/internal/lead"
	"github.com/leadgate/leadgate/internal/validate"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	historyStore, err := history.NewStore(pool, logger.With("component", "history"))
	if err != nil {
		return nil, fmt.Errorf("creating history store: %w", err)
	}
	a.History = historyStore

	leadStore, err := lead.NewStore(pool, logger.With("component", "lead"))
	if err != nil {
		return nil, fmt.Errorf("creating lead store: %w", err)
	}
	a.Leads = leadStore

	// Extraction runs on the app lifecycle context, not per-request
	// contexts, so jobs finish after the HTTP response is sent.
	appCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	pipeline, err := extract.NewPipeline(extract.Config{
		Genkit:    g,
		Leads:     leadStore,
		Logger:    logger.With("component", "extract"),
		ModelName: cfg.FullModelName(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating extraction pipeline: %w", err)
	}

	a.Worker = extract.NewWorker(extract.WorkerConfig{
		Runner:  pipeline,
		Logger:  logger.With("component", "extract"),
		Workers: cfg.ExtractWorkers,
		Queue:   cfg.ExtractQueueSize,
		Ctx:     appCtx,
	})

	engine, err := conversation.New(conversation.Config{
		Genkit:       g,
		Turns:        historyStore,
		Logger:       logger.With("component", "conversation"),
		ModelName:    cfg.FullModelName(),
		Extractor:    a.Worker,
		ModelTimeout: time.Duration(cfg.ModelTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating conversation engine: %w", err)
	}
	a.Engine = engine

	server, err := api.NewServer(api.ServerConfig{
		Logger:      logger.With("component", "api"),
		Engine:      engine,
		History:     historyStore,
		Leads:       leadStore,
		Validator:   validate.New(cfg.MaxInputLength),
		Pool:        pool,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	return a, nil
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
// Pool is configured with sensible defaults for connection management.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider plugin.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(_ context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	// Genkit owns the plugin lifecycle; Init must not inherit a cancelable
	// context or provider clients die with the first request.
	ctx := context.Background()

	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini" / "googleai"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}
