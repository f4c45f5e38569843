// Package server exposes the pipeline over HTTP for the browser extension.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/deusflow/opbop/internal/config"
	"github.com/deusflow/opbop/internal/metrics"
	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/pipeline"
)

type Pipeline interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	ParseArticle(ctx context.Context, rawURL string) (*pipeline.ParsedArticle, error)
	FindSimilar(ctx context.Context, keywords []string, recencyDays int, blacklist []string) ([]model.RelatedArticle, error)
	Shorten(text string) (model.Summary, error)
	Simplify(ctx context.Context, text string) (*pipeline.SimplifyResult, error)
}

// Admin swaps the cache store or the completion provider of a running
// server.
type Admin interface {
	ReconfigureStore(ctx context.Context, driver, dsn string) error
	ReconfigureCompletion(ctx context.Context, cfg config.Completion) error
}

// Budget reports completion usage for /metrics.
type Budget interface {
	GetStats() map[string]interface{}
}

type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	pipeline   Pipeline
	admin      Admin
	metrics    *metrics.Metrics
	budget     Budget
	config     config.Server
	log        *slog.Logger
}

func New(p Pipeline, admin Admin, m *metrics.Metrics, budget Budget, cfg config.Server, log *slog.Logger) *Server {
	if m == nil {
		m = metrics.Global
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		router:   chi.NewRouter(),
		pipeline: p,
		admin:    admin,
		metrics:  m,
		budget:   budget,
		config:   cfg,
		log:      log.With("component", "server"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	timeout := s.config.WriteTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s.router.Use(middleware.Timeout(timeout))

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", adminHeader},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/metrics", s.handleMetrics)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/article", s.handleArticle)
		r.Get("/parsearticle", s.handleParseArticle)
		r.Get("/findsimilar", s.handleFindSimilar)
		r.Post("/shorten", s.handleShorten)
		r.Post("/simplify", s.handleSimplify)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Put("/store", s.handleReconfigureStore)
			r.Put("/completion", s.handleReconfigureCompletion)
		})
	})
}

func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Router returns the chi router, for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
