// Package related finds articles on the same story from a news search feed.
package related

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/rss"
	"github.com/deusflow/opbop/internal/urlutil"
)

// aggregatorHost serves redirect links; the publisher is in the item source.
const aggregatorHost = "news.google.com"

type Searcher interface {
	Search(ctx context.Context, q rss.Query) ([]rss.Item, error)
}

type ImageResolver interface {
	OpenGraphImage(ctx context.Context, rawURL string) (string, error)
}

type Options struct {
	// Concurrency bounds parallel image fetches.
	Concurrency  int
	ImageTimeout time.Duration
}

type Finder struct {
	feed   Searcher
	images ImageResolver
	opts   Options
	logger *slog.Logger
}

// NewFinder returns a Finder searching feed and resolving preview images
// through images. Concurrency below 1 becomes 1 and a zero ImageTimeout
// becomes five seconds.
func NewFinder(feed Searcher, images ImageResolver, opts Options, logger *slog.Logger) *Finder {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.ImageTimeout <= 0 {
		opts.ImageTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{feed: feed, images: images, opts: opts, logger: logger}
}

// FindRelated returns at most limit articles matching keywords inside r,
// skipping publishers in blacklist. Results keep feed order.
func (f *Finder) FindRelated(ctx context.Context, keywords []string, r model.DateRange, blacklist []string, limit int) ([]model.RelatedArticle, error) {
	return f.find(ctx, rss.Query{Keywords: keywords, Range: r}, blacklist, limit)
}

// FindRecent is FindRelated bounded by the last recencyDays days instead of
// a date range.
func (f *Finder) FindRecent(ctx context.Context, keywords []string, recencyDays int, blacklist []string, limit int) ([]model.RelatedArticle, error) {
	return f.find(ctx, rss.Query{Keywords: keywords, RecencyDays: recencyDays}, blacklist, limit)
}

func (f *Finder) find(ctx context.Context, q rss.Query, blacklist []string, limit int) ([]model.RelatedArticle, error) {
	articles := []model.RelatedArticle{}
	if len(q.Keywords) == 0 || limit <= 0 {
		return articles, nil
	}

	items, err := f.feed.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	blocked := urlutil.NewDomainSet(blacklist)
	for _, it := range items {
		if len(articles) == limit {
			break
		}
		if it.URL == "" || isBlocked(blocked, it) {
			continue
		}
		articles = append(articles, model.RelatedArticle{
			Title:  it.Title,
			URL:    it.URL,
			Source: it.Source,
		})
	}

	f.attachImages(ctx, articles)
	return articles, nil
}

func isBlocked(blocked urlutil.DomainSet, it rss.Item) bool {
	if blocked.Matches(it.URL) {
		return true
	}
	if urlutil.Host(it.URL) == aggregatorHost && it.SourceURL != "" {
		return blocked.Matches(it.SourceURL)
	}
	return false
}

// attachImages fills ImageURL concurrently. Each goroutine writes only its
// own index, so order is unaffected by completion order. Failures leave the
// image empty.
func (f *Finder) attachImages(ctx context.Context, articles []model.RelatedArticle) {
	if f.images == nil {
		return
	}

	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)
	for i := range articles {
		g.Go(func() error {
			imgCtx, cancel := context.WithTimeout(ctx, f.opts.ImageTimeout)
			defer cancel()

			img, err := f.images.OpenGraphImage(imgCtx, articles[i].URL)
			if err != nil {
				f.logger.Debug("related image unavailable", "url", articles[i].URL, "error", err)
				return nil
			}
			articles[i].ImageURL = img
			return nil
		})
	}
	_ = g.Wait()
}
