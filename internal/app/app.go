// Package app wires configuration into a running pipeline and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/deusflow/opbop/internal/apperr"
	"github.com/deusflow/opbop/internal/cache"
	"github.com/deusflow/opbop/internal/completion"
	"github.com/deusflow/opbop/internal/config"
	"github.com/deusflow/opbop/internal/logger"
	"github.com/deusflow/opbop/internal/metrics"
	"github.com/deusflow/opbop/internal/pipeline"
	"github.com/deusflow/opbop/internal/ratelimit"
	"github.com/deusflow/opbop/internal/related"
	"github.com/deusflow/opbop/internal/reliability"
	"github.com/deusflow/opbop/internal/rss"
	"github.com/deusflow/opbop/internal/scraper"
	"github.com/deusflow/opbop/internal/server"
	"github.com/deusflow/opbop/internal/storage"
)

type App struct {
	mu         sync.Mutex
	cfg        *config.Config
	log        *slog.Logger
	metrics    *metrics.Metrics
	gateway    *cache.Gateway
	completion *completion.Switchable
	limiter    *ratelimit.Limiter
	pipeline   *pipeline.Orchestrator
}

// New opens the configured store and builds the pipeline. A missing
// reliability table or completion key is logged, not fatal.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		cfg:     cfg,
		log:     logger.Component("app"),
		metrics: metrics.Global,
	}

	store, err := storage.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, logger.Component("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	a.gateway = cache.New(store)
	a.log.Info("Cache store ready", "driver", cfg.Store.Driver, "dsn", storage.MaskDSN(cfg.Store.DSN))

	table, err := reliability.Load(cfg.Reliability.Path)
	if err != nil {
		a.log.Warn("Reliability table not loaded, every source will be unknown", "path", cfg.Reliability.Path, "error", err)
		table = reliability.Empty()
	} else {
		a.log.Info("Reliability table loaded", "domains", table.Len())
	}

	limit := cfg.Completion.DailyLimit
	a.limiter = ratelimit.NewLimiter(map[string]int{
		"gemini":    limit,
		"openai":    limit,
		"anthropic": limit,
	}, 0, logger.Component("ratelimit"))

	a.completion = completion.NewSwitchable(nil)
	if svc, err := a.buildCompletion(ctx, cfg.Completion); err != nil {
		a.log.Warn("Completion provider not configured", "provider", cfg.Completion.Provider, "error", err)
	} else {
		a.completion.Swap(svc)
	}

	fetcher := scraper.NewFetcher(&http.Client{Timeout: cfg.Timeouts.Fetch}, cfg.Feed.UserAgent, logger.Component("scraper"))
	feed := rss.NewClient(&http.Client{Timeout: cfg.Timeouts.Feed}, rss.Options{
		BaseURL:   cfg.Feed.BaseURL,
		Language:  cfg.Feed.Language,
		Region:    cfg.Feed.Region,
		Edition:   cfg.Feed.Edition,
		UserAgent: cfg.Feed.UserAgent,
	}, logger.Component("rss"))
	finder := related.NewFinder(feed, fetcher, related.Options{
		Concurrency:  cfg.Feed.ImageConcurrency,
		ImageTimeout: cfg.Timeouts.Image,
	}, logger.Component("related"))

	a.pipeline = pipeline.New(pipeline.Deps{
		Fetcher:     fetcher,
		Completion:  a.completion,
		Related:     finder,
		Reliability: table,
		Cache:       a.gateway,
		Metrics:     a.metrics,
		Logger:      logger.Logger,
	}, pipeline.OptionsFromConfig(cfg))

	return a, nil
}

func (a *App) buildCompletion(ctx context.Context, cfg config.Completion) (completion.Service, error) {
	svc, err := completion.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return completion.WithBudget(svc, cfg.Provider, a.limiter), nil
}

func (a *App) Pipeline() *pipeline.Orchestrator {
	return a.pipeline
}

func (a *App) Server() *server.Server {
	return server.New(a.pipeline, a, a.metrics, a.limiter, a.cfg.Server, logger.Logger)
}

// ReconfigureStore replaces the cache store of a running app.
func (a *App) ReconfigureStore(ctx context.Context, driver, dsn string) error {
	store, err := storage.Open(ctx, driver, dsn, logger.Component("storage"))
	if errors.Is(err, storage.ErrUnknownDriver) {
		return apperr.Validation("reconfigure store", "%v", err)
	}
	if err != nil {
		return apperr.E(apperr.KindCacheUnavailable, "reconfigure store", err)
	}
	if err := a.gateway.Reconfigure(store); err != nil {
		a.log.Warn("Failed to close previous store", "error", err)
	}
	return nil
}

// ReconfigureCompletion swaps the provider or API key. Fields left empty in
// cfg keep their configured values.
func (a *App) ReconfigureCompletion(ctx context.Context, cfg config.Completion) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	merged := a.cfg.Completion
	if cfg.Provider != merged.Provider {
		merged.Model = ""
		merged.BaseURL = ""
	}
	merged.Provider = cfg.Provider
	merged.APIKey = cfg.APIKey
	if cfg.Model != "" {
		merged.Model = cfg.Model
	}
	if cfg.BaseURL != "" {
		merged.BaseURL = cfg.BaseURL
	}

	svc, err := a.buildCompletion(ctx, merged)
	if err != nil {
		return apperr.Validation("reconfigure completion", "%v", err)
	}
	if err := completion.Close(a.completion.Swap(svc)); err != nil {
		a.log.Warn("Failed to close previous completion client", "error", err)
	}
	a.cfg.Completion = merged
	return nil
}

func (a *App) Close() error {
	return errors.Join(completion.Close(a.completion), a.gateway.Close())
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func (a *App) Serve(ctx context.Context) error {
	srv := a.Server()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
