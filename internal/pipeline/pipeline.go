// Package pipeline turns an article URL into a cached bundle of summary,
// simplification, related articles and source reliability.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/opbop/internal/apperr"
	"github.com/deusflow/opbop/internal/completion"
	"github.com/deusflow/opbop/internal/config"
	"github.com/deusflow/opbop/internal/keywords"
	"github.com/deusflow/opbop/internal/metrics"
	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/scraper"
	"github.com/deusflow/opbop/internal/summarize"
)

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (model.Document, error)
}

type RelatedFinder interface {
	FindRelated(ctx context.Context, keywords []string, r model.DateRange, blacklist []string, limit int) ([]model.RelatedArticle, error)
	FindRecent(ctx context.Context, keywords []string, recencyDays int, blacklist []string, limit int) ([]model.RelatedArticle, error)
}

type ReliabilityLookup interface {
	Lookup(rawURL string) model.Reliability
}

type Cache interface {
	FindByURL(ctx context.Context, url string) (*model.CachedBundle, error)
	Insert(ctx context.Context, bundle model.CachedBundle) error
}

// Deps are the collaborators of an Orchestrator. Metrics and Logger fall
// back to the process-wide defaults.
type Deps struct {
	Fetcher     Fetcher
	Completion  completion.Service
	Related     RelatedFinder
	Reliability ReliabilityLookup
	Cache       Cache
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Options tunes an Orchestrator. Zero counts fall back to the package
// defaults in New.
type Options struct {
	KeywordCount      int
	RelatedCap        int
	MaxShrinkAttempts int
	Containment       keywords.Containment
	DefaultBlacklist  []string
	Timeouts          config.Timeouts
}

// OptionsFromConfig maps the pipeline and timeout sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		KeywordCount:      cfg.Pipeline.KeywordCount,
		RelatedCap:        cfg.Pipeline.RelatedCap,
		MaxShrinkAttempts: cfg.Pipeline.MaxShrinkAttempts,
		DefaultBlacklist:  cfg.Pipeline.DefaultBlacklist,
		Timeouts:          cfg.Timeouts,
	}
	if cfg.Pipeline.LegacyContainment {
		opts.Containment = keywords.CharSubset
	}
	return opts
}

// Orchestrator runs article requests against the cache and, on a miss, the
// full distillation pipeline. It is safe for concurrent use.
type Orchestrator struct {
	fetcher     Fetcher
	completion  completion.Service
	related     RelatedFinder
	reliability ReliabilityLookup
	cache       Cache
	metrics     *metrics.Metrics
	logger      *slog.Logger
	extractor   keywords.Extractor
	opts        Options
}

// New builds an Orchestrator. A nil Metrics uses metrics.Global and a nil
// Logger uses slog.Default.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.KeywordCount <= 0 {
		opts.KeywordCount = keywords.DefaultCount
	}
	if opts.RelatedCap <= 0 {
		opts.RelatedCap = 4
	}
	if opts.MaxShrinkAttempts <= 0 {
		opts.MaxShrinkAttempts = 6
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Global
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		fetcher:     deps.Fetcher,
		completion:  deps.Completion,
		related:     deps.Related,
		reliability: deps.Reliability,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		logger:      deps.Logger.With("component", "pipeline"),
		extractor:   keywords.Extractor{Containment: opts.Containment},
		opts:        opts,
	}
}

// Request is one article-processing call.
type Request struct {
	URL         string
	Range       model.DateRange
	FilterLevel model.Sensitivity
	Blacklist   []string
}

// Validate rejects a request that cannot be processed, before any work is
// done.
func (r Request) Validate() error {
	if r.URL == "" {
		return apperr.Validation("request", "url is required")
	}
	if _, err := scraper.ParseArticleURL(r.URL); err != nil {
		return err
	}
	if !r.FilterLevel.Valid() {
		return apperr.Validation("request", "filterExplicit must be 0, 1 or 2, got %d", r.FilterLevel)
	}
	if !r.Range.From.IsZero() && !r.Range.To.IsZero() && r.Range.From.After(r.Range.To) {
		return apperr.Validation("request", "articleRange.from is after articleRange.to")
	}
	return nil
}

// Result is a bundle plus the per-caller censorship decision, which is never
// stored.
type Result struct {
	model.CachedBundle
	Censored bool `json:"censored"`
	Cached   bool `json:"cached"`
}

// Censored reports whether content rated sensitivity exceeds what a caller
// with filterLevel accepts.
func Censored(filterLevel, sensitivity model.Sensitivity) bool {
	return filterLevel < sensitivity
}

// Process returns the cached bundle for req.URL, or builds and caches one.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	log := o.logger.With("run_id", uuid.NewString(), "url", req.URL)
	o.metrics.IncrementRuns()

	res, err := o.process(ctx, req, log)
	o.metrics.RecordProcessingTime(time.Since(start))
	if err != nil {
		kind := apperr.KindOf(err)
		o.metrics.RecordFailure(string(kind), err.Error())
		log.Error("pipeline run failed", "kind", kind, "error", err)
		return nil, err
	}

	o.metrics.SetLastRun()
	if res.Censored {
		o.metrics.IncrementCensored()
	}
	log.Info("pipeline run finished",
		"cached", res.Cached,
		"censored", res.Censored,
		"articles", len(res.Articles),
		"duration", time.Since(start))
	return res, nil
}

func (o *Orchestrator) process(ctx context.Context, req Request, log *slog.Logger) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lookupCtx, cancel := withTimeout(ctx, o.opts.Timeouts.Store)
	cached, err := o.cache.FindByURL(lookupCtx, req.URL)
	cancel()
	if err != nil {
		return nil, err
	}
	o.metrics.RecordCacheLookup(cached != nil)

	if cached != nil {
		log.Debug("cache hit")
		return &Result{
			CachedBundle: *cached,
			Censored:     Censored(req.FilterLevel, cached.Sensitivity),
			Cached:       true,
		}, nil
	}

	log.Debug("cache miss")
	bundle, err := o.build(ctx, req, log)
	if err != nil {
		return nil, err
	}

	writeCtx, cancel := withTimeout(ctx, o.opts.Timeouts.Store)
	defer cancel()
	if err := o.cache.Insert(writeCtx, bundle); err != nil {
		o.metrics.IncrementCacheWriteFailures()
		log.Warn("failed to cache bundle", "error", err)
	}

	return &Result{
		CachedBundle: bundle,
		Censored:     Censored(req.FilterLevel, bundle.Sensitivity),
	}, nil
}

// build runs the miss path from fetch to reliability lookup.
func (o *Orchestrator) build(ctx context.Context, req Request, log *slog.Logger) (model.CachedBundle, error) {
	doc, err := o.fetch(ctx, req.URL)
	if err != nil {
		return model.CachedBundle{}, err
	}
	log.Debug("article fetched", "title", doc.Title, "chars", len(doc.MainText))

	kws, err := o.keywords(doc)
	if err != nil {
		return model.CachedBundle{}, err
	}

	summary, err := summarize.Summarize(doc.MainText)
	if err != nil {
		return model.CachedBundle{}, err
	}

	simple, accepted, err := o.simplify(ctx, summary.Text, log)
	if err != nil {
		return model.CachedBundle{}, err
	}

	articles, err := o.findRelated(ctx, kws, req.Range, req.Blacklist)
	if err != nil {
		return model.CachedBundle{}, err
	}
	o.metrics.AddRelatedArticles(len(articles))

	return model.CachedBundle{
		URL:         req.URL,
		Title:       doc.Title,
		TLDR:        accepted,
		Reduction:   summarize.ReductionPct(doc.MainText, accepted),
		Simplified:  simple.Simplified,
		Sensitivity: simple.Sensitivity,
		Articles:    articles,
		Reliability: o.lookupReliability(req.URL),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (o *Orchestrator) fetch(ctx context.Context, rawURL string) (model.Document, error) {
	fetchCtx, cancel := withTimeout(ctx, o.opts.Timeouts.Fetch)
	defer cancel()
	doc, err := o.fetcher.Fetch(fetchCtx, rawURL)
	if err != nil {
		return model.Document{}, apperr.Dependency("fetch", err)
	}
	return doc, nil
}

// keywords extracts from the main text, or from the title when the main
// text yields nothing.
func (o *Orchestrator) keywords(doc model.Document) ([]string, error) {
	kws, err := o.extractor.Extract(doc.MainText, o.opts.KeywordCount)
	if err != nil && !errors.Is(err, apperr.ErrEmptyText) {
		return nil, err
	}
	if len(kws) > 0 || doc.Title == "" {
		return kws, nil
	}

	kws, err = o.extractor.Extract(doc.Title, o.opts.KeywordCount)
	if errors.Is(err, apperr.ErrEmptyText) {
		return []string{}, nil
	}
	return kws, err
}

func (o *Orchestrator) findRelated(ctx context.Context, kws []string, r model.DateRange, blacklist []string) ([]model.RelatedArticle, error) {
	relCtx, cancel := withTimeout(ctx, o.opts.Timeouts.Feed+o.opts.Timeouts.Image)
	defer cancel()
	articles, err := o.related.FindRelated(relCtx, kws, r, o.blacklist(blacklist), o.opts.RelatedCap)
	if err != nil {
		return nil, apperr.Dependency("related", err)
	}
	return articles, nil
}

func (o *Orchestrator) blacklist(extra []string) []string {
	if len(o.opts.DefaultBlacklist) == 0 {
		return extra
	}
	out := make([]string, 0, len(o.opts.DefaultBlacklist)+len(extra))
	out = append(out, o.opts.DefaultBlacklist...)
	return append(out, extra...)
}

func (o *Orchestrator) lookupReliability(rawURL string) model.Reliability {
	if o.reliability == nil {
		return model.ReliabilityUnknown
	}
	if r := o.reliability.Lookup(rawURL); r != "" {
		return r
	}
	return model.ReliabilityUnknown
}

// withTimeout applies d when positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
