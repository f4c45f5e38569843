package pipeline

import (
	"context"
	"strings"

	"github.com/deusflow/opbop/internal/apperr"
	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/scraper"
	"github.com/deusflow/opbop/internal/summarize"
)

// ParsedArticle is the article text with what the rest of the pipeline
// derives from it.
type ParsedArticle struct {
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	MainText    string            `json:"maintext"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	Keywords    []string          `json:"keywords"`
	Reliability model.Reliability `json:"reliability"`
}

func (o *Orchestrator) ParseArticle(ctx context.Context, rawURL string) (*ParsedArticle, error) {
	if _, err := scraper.ParseArticleURL(rawURL); err != nil {
		return nil, err
	}

	doc, err := o.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	kws, err := o.keywords(doc)
	if err != nil {
		return nil, err
	}

	return &ParsedArticle{
		URL:         rawURL,
		Title:       doc.Title,
		MainText:    doc.MainText,
		ImageURL:    doc.ImageURL,
		Keywords:    kws,
		Reliability: o.lookupReliability(rawURL),
	}, nil
}

// FindSimilar searches for articles about keywords published within the
// last recencyDays days. -1 means any time.
func (o *Orchestrator) FindSimilar(ctx context.Context, kws []string, recencyDays int, blacklist []string) ([]model.RelatedArticle, error) {
	if recencyDays < -1 {
		return nil, apperr.Validation("findsimilar", "recency must be -1 or a number of days, got %d", recencyDays)
	}
	if recencyDays == -1 {
		recencyDays = 0
	}

	cleaned := make([]string, 0, len(kws))
	for _, k := range kws {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, apperr.Validation("findsimilar", "at least one keyword is required")
	}

	relCtx, cancel := withTimeout(ctx, o.opts.Timeouts.Feed+o.opts.Timeouts.Image)
	defer cancel()
	articles, err := o.related.FindRecent(relCtx, cleaned, recencyDays, o.blacklist(blacklist), o.opts.RelatedCap)
	if err != nil {
		return nil, apperr.Dependency("findsimilar", err)
	}
	return articles, nil
}

// Shorten is the extractive summary on its own.
func (o *Orchestrator) Shorten(text string) (model.Summary, error) {
	return summarize.Summarize(text)
}

// SimplifyResult mirrors the simplify route: maintext is the rewritten
// text. Input is what the service finally accepted, shorter than the request
// text when it had to be shrunk.
type SimplifyResult struct {
	MainText    string            `json:"maintext"`
	Sensitivity model.Sensitivity `json:"sensitivity"`
	Input       string            `json:"input"`
}

func (o *Orchestrator) Simplify(ctx context.Context, text string) (*SimplifyResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.EmptyText("simplify")
	}
	res, accepted, err := o.simplify(ctx, text, o.logger.With("op", "simplify"))
	if err != nil {
		return nil, err
	}
	return &SimplifyResult{MainText: res.Simplified, Sensitivity: res.Sensitivity, Input: accepted}, nil
}
