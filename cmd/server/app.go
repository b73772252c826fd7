package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/docgen-api/internal/config"
	"github.com/phrazzld/docgen-api/internal/events"
	"github.com/phrazzld/docgen-api/internal/generation"
	"github.com/phrazzld/docgen-api/internal/platform/gemini"
	"github.com/phrazzld/docgen-api/internal/platform/memory"
	"github.com/phrazzld/docgen-api/internal/platform/openai"
	"github.com/phrazzld/docgen-api/internal/platform/postgres"
	"github.com/phrazzld/docgen-api/internal/service"
	"github.com/phrazzld/docgen-api/internal/source"
	"github.com/phrazzld/docgen-api/internal/store"
	"github.com/phrazzld/docgen-api/internal/task"
)

// application holds the shared dependencies of every command and owns
// their lifecycle.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is nil when the memory driver is configured.
	db       *sql.DB
	store    store.Store
	listener *postgres.Listener

	emitter *events.Broadcaster
	hub     *events.Hub

	chain        *generation.Chain
	source       source.Provider
	orchestrator *task.Orchestrator
	runner       *task.JobRunner
	waiter       *task.CompletionWaiter
	docService   service.DocumentationService

	// backendOverride replaces the configured backends; tests use it.
	backendOverride []generation.Backend
}

// appOption customizes newApplication.
type appOption func(*application)

// withBackends replaces the configured generation backends.
func withBackends(backends ...generation.Backend) appOption {
	return func(app *application) {
		app.backendOverride = backends
	}
}

// newApplication builds every component from cfg. Nothing runs until start.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...appOption) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(app)
	}

	app.hub = events.NewHub()
	app.emitter = events.NewBroadcaster(logger)
	app.emitter.Register(app.hub)

	if err := app.setupStore(ctx); err != nil {
		return nil, err
	}

	backends := app.backendOverride
	if backends == nil {
		var err error
		backends, err = buildBackends(ctx, cfg.LLM, logger)
		if err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to initialize generation backends: %w", err)
		}
	}

	prompts, err := generation.LoadPrompts(cfg.LLM.PromptDir)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	app.chain, err = generation.NewChain(backends, generation.ChainConfig{
		Timeout:   cfg.LLM.RequestTimeout,
		RateLimit: cfg.LLM.RateLimit,
		Prompts:   prompts,
		Logger:    logger,
	})
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create generation chain: %w", err)
	}
	logger.Info("generation chain initialized", "backends", app.chain.BackendNames())

	app.source, err = buildSource(ctx, cfg.Source, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize unit source: %w", err)
	}

	filter := source.Filter{
		Categories: cfg.Source.Categories,
		Exclude:    cfg.Source.Exclude,
		MaxBytes:   cfg.Source.MaxBytes,
	}
	if _, err := filter.Compile(); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("invalid source filter: %w", err)
	}

	app.orchestrator, err = task.NewOrchestrator(app.source, app.chain, app.store, task.OrchestratorConfig{
		UnitWorkerCount: cfg.Jobs.UnitWorkerCount,
		Filter:          filter,
	}, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	app.runner = task.NewJobRunner(app.orchestrator, task.JobRunnerConfig{
		WorkerCount: cfg.Jobs.JobWorkerCount,
		QueueSize:   cfg.Jobs.QueueSize,
	}, logger)

	app.waiter, err = task.NewCompletionWaiter(app.store, app.hub, cfg.Jobs.PollInterval, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create completion waiter: %w", err)
	}

	app.docService, err = service.NewDocumentationService(app.store, app.runner, app.waiter, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create documentation service: %w", err)
	}

	logger.Info("application initialized",
		"database_driver", cfg.Database.Driver,
		"unit_workers", cfg.Jobs.UnitWorkerCount,
		"job_workers", cfg.Jobs.JobWorkerCount)
	return app, nil
}

// setupStore opens the configured persistence backend.
func (app *application) setupStore(ctx context.Context) error {
	switch app.config.Database.Driver {
	case "memory":
		app.store = memory.NewStore(app.emitter, app.logger)
		app.logger.Warn("using in-memory store; documents are lost on exit")
	case "postgres":
		db, err := openDatabase(ctx, app.config.Database, app.logger)
		if err != nil {
			return err
		}
		app.db = db
		app.store = postgres.NewStore(db, app.logger)
		app.listener = postgres.NewListener(app.config.Database.URL, app.emitter, app.logger)
	default:
		return fmt.Errorf("unsupported database driver %q", app.config.Database.Driver)
	}
	return nil
}

// buildBackends creates the generation backends in configured order.
func buildBackends(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) ([]generation.Backend, error) {
	backends := make([]generation.Backend, 0, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		var (
			b   generation.Backend
			err error
		)
		switch bc.Kind {
		case "gemini":
			b, err = gemini.New(ctx, gemini.Config{
				Name:        bc.Name,
				Model:       bc.Model,
				APIKey:      bc.APIKey,
				Temperature: bc.Temperature,
			}, logger)
		case "openai", "azure_openai":
			b, err = openai.New(openai.Config{
				Name:        bc.Name,
				APIKey:      bc.APIKey,
				BaseURL:     bc.Endpoint,
				Model:       bc.Model,
				Temperature: bc.Temperature,
				Azure:       bc.Kind == "azure_openai",
				Deployment:  bc.Deployment,
				APIVersion:  bc.APIVersion,
			}, logger)
		default:
			err = fmt.Errorf("%w: unknown backend kind %q", generation.ErrInvalidConfig, bc.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", bc.Name, err)
		}
		backends = append(backends, b)
	}
	return backends, nil
}

// buildSource routes repository IDs to the filesystem or S3 provider by
// scheme.
func buildSource(ctx context.Context, cfg config.SourceConfig, logger *slog.Logger) (source.Provider, error) {
	mux := source.NewMux()
	mux.Handle("file", source.NewFilesystemProvider(logger))

	s3Provider, err := source.NewS3Provider(ctx, source.S3Config{
		Region:           cfg.S3.Region,
		Profile:          cfg.S3.Profile,
		Endpoint:         cfg.S3.Endpoint,
		AccessKeyID:      cfg.S3.AccessKeyID,
		SecretAccessKey:  cfg.S3.SecretAccessKey,
		UsePathStyle:     cfg.S3.UsePathStyle,
		FetchConcurrency: cfg.S3.FetchConcurrency,
	}, logger)
	if err != nil {
		return nil, err
	}
	mux.Handle("s3", s3Provider)
	return mux, nil
}

// start launches the job workers and, with postgres, the status listener.
// Jobs are not tied to ctx so that shutdown can drain them.
func (app *application) start(ctx context.Context) {
	app.runner.Start(context.WithoutCancel(ctx))
	if app.listener != nil {
		go func() {
			if err := app.listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				app.logger.Error("status listener stopped", "error", err)
			}
		}()
	}
}

// shutdown drains the job runner until ctx expires and releases resources.
func (app *application) shutdown(ctx context.Context) error {
	err := app.runner.Shutdown(ctx)
	if err != nil {
		app.logger.Warn("job runner did not drain before shutdown deadline", "error", err)
	}
	app.cleanup()
	return err
}

// cleanup releases resources held by the application.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
		app.db = nil
	}
}
