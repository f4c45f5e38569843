package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/deusflow/opbop/internal/apperr"
	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/textutil"
)

const maxBodyBytes = 5 << 20

// Fetcher downloads article pages and extracts their readable text.
type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

func NewFetcher(client *http.Client, userAgent string, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, userAgent: userAgent, logger: logger}
}

// Fetch gets the page at rawURL and returns its title and main text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (model.Document, error) {
	pageURL, err := ParseArticleURL(rawURL)
	if err != nil {
		return model.Document{}, err
	}

	body, err := f.get(ctx, pageURL.String())
	if err != nil {
		return model.Document{}, apperr.Dependency("fetch", err)
	}

	doc := model.Document{URL: rawURL}

	parser := readability.NewParser()
	article, err := parser.Parse(bytes.NewReader(body), pageURL)
	if err != nil {
		f.logger.Debug("readability failed, using selectors", "url", rawURL, "error", err)
	} else {
		doc.Title = textutil.CollapseSpace(article.Title)
		doc.MainText = readableText(article.Content)
		doc.ImageURL = article.Image
	}

	if doc.MainText == "" || doc.Title == "" || doc.ImageURL == "" {
		page, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return model.Document{}, apperr.Dependency("fetch", fmt.Errorf("error parsing HTML: %w", err))
		}
		if doc.MainText == "" {
			doc.MainText = extractGenericContent(page)
		}
		if doc.Title == "" {
			doc.Title = extractTitle(page)
		}
		if doc.ImageURL == "" {
			doc.ImageURL = openGraphImage(page, pageURL)
		}
	}

	if doc.MainText == "" {
		return model.Document{}, apperr.EmptyText("fetch")
	}
	return doc, nil
}

// OpenGraphImage returns the og:image of the page at rawURL, resolved to an
// absolute URL, or "" when the page declares none.
func (f *Fetcher) OpenGraphImage(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	body, err := f.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error parsing HTML: %w", err)
	}
	return openGraphImage(page, pageURL), nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading page: %w", err)
	}
	return body, nil
}

// ParseArticleURL accepts absolute http(s) URLs only.
func ParseArticleURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, apperr.Validation("fetch", "invalid url %q: %v", rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Validation("fetch", "url must be an absolute http(s) url, got %q", rawURL)
	}
	return u, nil
}
