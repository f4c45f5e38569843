// Package rss queries a news search feed and decodes its items.
package rss

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/opbop/internal/apperr"
	"github.com/deusflow/opbop/internal/model"
)

// Positions of the item children used by the search feed.
const (
	titleIndex  = 0
	linkIndex   = 1
	sourceIndex = 5
)

type Item struct {
	Title string
	URL   string
	// Source is the publisher name, SourceURL its home page when the feed
	// provides one.
	Source    string
	SourceURL string
	Published time.Time
}

type Query struct {
	Keywords    []string
	Range       model.DateRange
	RecencyDays int
}

type Options struct {
	BaseURL   string
	Language  string // hl
	Region    string // gl
	Edition   string // ceid
	UserAgent string
}

type Client struct {
	opts   Options
	http   *http.Client
	logger *slog.Logger
}

func NewClient(httpClient *http.Client, opts Options, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{opts: opts, http: httpClient, logger: logger}
}

// SearchURL builds the feed request for q.
func (c *Client) SearchURL(q Query) string {
	terms := strings.Join(q.Keywords, " ")
	switch {
	case !q.Range.IsZero():
		if !q.Range.From.IsZero() {
			terms += " after:" + q.Range.From.Format("2006-01-02")
		}
		if !q.Range.To.IsZero() {
			// before: is exclusive
			terms += " before:" + q.Range.To.AddDate(0, 0, 1).Format("2006-01-02")
		}
	case q.RecencyDays > 0:
		terms += fmt.Sprintf(" when:%dd", q.RecencyDays)
	}

	params := url.Values{}
	params.Set("q", strings.TrimSpace(terms))
	if c.opts.Language != "" {
		params.Set("hl", c.opts.Language)
	}
	if c.opts.Region != "" {
		params.Set("gl", c.opts.Region)
	}
	if c.opts.Edition != "" {
		params.Set("ceid", c.opts.Edition)
	}
	return c.opts.BaseURL + "?" + params.Encode()
}

// Search fetches the feed for q and returns its items in feed order. Items
// dated outside q.Range are dropped.
func (c *Client) Search(ctx context.Context, q Query) ([]Item, error) {
	body, err := c.fetch(ctx, c.SearchURL(q))
	if err != nil {
		return nil, apperr.Dependency("feed", err)
	}

	items, err := decodeItems(body)
	if err != nil {
		return nil, apperr.Dependency("feed", err)
	}
	c.attachDates(body, items)

	if q.Range.IsZero() {
		return items, nil
	}
	kept := items[:0]
	for _, it := range items {
		if it.Published.IsZero() || q.Range.Contains(it.Published) {
			kept = append(kept, it)
		}
	}
	return kept, nil
}

func (c *Client) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed HTTP error: %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

type rawFeed struct {
	Channel struct {
		Items []rawItem `xml:"item"`
	} `xml:"channel"`
}

type rawItem struct {
	Children []rawNode `xml:",any"`
}

type rawNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
}

func (n rawNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// decodeItems reads title, link and source by their position among the item
// children. Items too short to carry a link are skipped.
func decodeItems(body []byte) ([]Item, error) {
	var feed rawFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	items := make([]Item, 0, len(feed.Channel.Items))
	for _, raw := range feed.Channel.Items {
		if len(raw.Children) <= linkIndex {
			continue
		}
		it := Item{
			Title: strings.TrimSpace(raw.Children[titleIndex].Text),
			URL:   strings.TrimSpace(raw.Children[linkIndex].Text),
		}
		if len(raw.Children) > sourceIndex {
			src := raw.Children[sourceIndex]
			it.Source = strings.TrimSpace(src.Text)
			it.SourceURL = strings.TrimSpace(src.attr("url"))
		}
		items = append(items, it)
	}
	return items, nil
}

// attachDates parses the payload a second time with gofeed to pick up
// publication dates, which come in several layouts.
func (c *Client) attachDates(body []byte, items []Item) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		c.logger.Debug("feed dates unavailable", "error", err)
		return
	}

	byLink := make(map[string]*gofeed.Item, len(feed.Items))
	for _, fi := range feed.Items {
		byLink[strings.TrimSpace(fi.Link)] = fi
	}
	for i := range items {
		fi, ok := byLink[items[i].URL]
		if !ok {
			continue
		}
		if fi.PublishedParsed != nil {
			items[i].Published = *fi.PublishedParsed
		}
		if items[i].Source == "" && fi.Author != nil {
			items[i].Source = fi.Author.Name
		}
	}
}
