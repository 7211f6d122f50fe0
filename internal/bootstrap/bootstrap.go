package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/slide-rag-assistant/internal/config"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
	"github.com/kirillkom/slide-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/llm/imageload"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
)

// Options carry process-specific hooks into the composition root.
type Options struct {
	Logger *slog.Logger
	// RetryObserver is attached to every backend executor.
	RetryObserver resilience.RetryObserver
	// Instrument wraps each query engine built for endpoint. Nil leaves engines bare.
	Instrument func(endpoint string, next ports.QueryService) ports.QueryService
}

type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Formatter usecase.ResponseFormatter
	Sessions  *usecase.SessionManager

	engineCfg usecase.EngineConfig
	retriever ports.Retriever
	completer ports.MultimodalCompleter
	opts      Options
	closers   []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	app := &App{
		Config:    cfg,
		Logger:    opts.Logger,
		Formatter: usecase.NewResponseFormatter(usecase.FormatOptions{SourcePreviewChars: cfg.SourcePreviewChars}),
		opts:      opts,
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.engineCfg, err = engineConfig(cfg)
	if err != nil {
		return nil, err
	}

	resCfg := resilienceConfig(cfg)
	images := imageload.NewLoader(&http.Client{Timeout: 30 * time.Second}, cfg.ImageFetchMaxBytes)

	var db *sql.DB
	openDB := func() (*sql.DB, error) {
		if db != nil {
			return db, nil
		}
		opened, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db = opened
		app.closers = append(app.closers, func() { _ = opened.Close() })
		return db, nil
	}

	embedder, err := buildEmbedder(ctx, cfg, app.newExecutor(resCfg))
	if err != nil {
		return nil, err
	}
	app.retriever, err = buildRetriever(cfg, embedder, app.newExecutor(resCfg), openDB, app.addCloser)
	if err != nil {
		return nil, err
	}
	completer, err := buildCompleter(ctx, cfg, images, app.newExecutor(resCfg.ForCompletion()))
	if err != nil {
		return nil, err
	}
	app.completer = completer

	var store ports.ConversationStore
	if cfg.SessionHistoryEnabled {
		historyDB, err := openDB()
		if err != nil {
			return nil, err
		}
		repo := postgres.NewConversationRepository(historyDB)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure conversation schema: %w", err)
		}
		store = repo
	}

	app.Sessions = usecase.NewSessionManager(
		func() ports.QueryService { return app.NewEngine("session") },
		app.Formatter,
		store,
		usecase.SessionConfig{Greeting: cfg.SessionGreeting, IdleTTL: cfg.SessionIdleTTL},
	)

	app.Logger.Info("bootstrap_ready",
		"retriever", cfg.RetrieverBackend,
		"retrieval_mode", cfg.RAGRetrievalMode,
		"embedder", cfg.EmbedderProvider,
		"completion", cfg.CompletionProvider,
		"top_k", app.engineCfg.TopK,
		"history", store != nil,
	)
	return app, nil
}

// NewEngine builds a query engine over the shared backends. Engines hold no per-query
// state, so one may serve concurrent callers.
func (a *App) NewEngine(endpoint string) ports.QueryService {
	engine := usecase.NewQueryEngine(a.retriever, a.completer, a.engineCfg, usecase.WithLogger(a.Logger))
	if a.opts.Instrument == nil {
		return engine
	}
	return a.opts.Instrument(endpoint, engine)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) addCloser(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) newExecutor(cfg resilience.Config) *resilience.Executor {
	if a.opts.RetryObserver == nil {
		return resilience.NewExecutor(cfg)
	}
	return resilience.NewExecutor(cfg, resilience.WithRetryObserver(a.opts.RetryObserver))
}

func engineConfig(cfg config.Config) (usecase.EngineConfig, error) {
	engineCfg := usecase.EngineConfig{TopK: cfg.RAGTopK}
	if cfg.PromptTemplate == "" {
		engineCfg.Template = usecase.DefaultPromptTemplate()
		return engineCfg, nil
	}
	tmpl, err := usecase.NewPromptTemplate(cfg.PromptTemplate)
	if err != nil {
		return usecase.EngineConfig{}, err
	}
	engineCfg.Template = tmpl
	return engineCfg, nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff:     cfg.ResilienceRetryInitialBackoff,
		RetryMaxBackoff:         cfg.ResilienceRetryMaxBackoff,
		RetryMultiplier:         cfg.ResilienceRetryMultiplier,
		BreakerEnabled:          cfg.ResilienceBreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:      cfg.ResilienceBreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: 2,
	}
}
