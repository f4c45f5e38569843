package scraper

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/opbop/internal/textutil"
)

// readableText flattens the cleaned article HTML into one line of text.
func readableText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var blocks []string
	doc.Find("h2,h3,h4,p,li,blockquote").Each(func(i int, s *goquery.Selection) {
		// nested blocks are picked up through their parent
		if s.ParentsFiltered("p,li,blockquote").Length() > 0 {
			return
		}
		if text := textutil.CollapseSpace(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return textutil.CollapseSpace(doc.Text())
	}
	return strings.Join(blocks, " ")
}

// extractGenericContent is the selector based fallback for pages readability
// cannot handle.
func extractGenericContent(doc *goquery.Document) string {
	var paragraphs []string

	selectors := []string{
		"article p",
		".article p",
		".article-body p",
		".content p",
		".post-content p",
		".entry-content p",
		"main p",
		"#content p",
		".text p",
		"p",
	}

	for _, selector := range selectors {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			text := textutil.CollapseSpace(s.Text())
			if len(text) > 20 && !isJunk(text) {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) >= 3 {
			break
		}
	}

	return strings.Join(paragraphs, " ")
}

func isJunk(text string) bool {
	lower := strings.ToLower(text)
	for _, indicator := range []string{
		"cookie", "subscribe to", "sign up for", "all rights reserved",
		"share this article", "read more:", "advertisement",
	} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return textutil.CollapseSpace(og)
	}

	selectors := []string{
		"h1",
		"title",
		".article-title",
		".headline",
		".entry-title",
	}

	for _, selector := range selectors {
		title := textutil.CollapseSpace(doc.Find(selector).First().Text())
		if title != "" {
			return title
		}
	}

	return ""
}

func openGraphImage(doc *goquery.Document, base *url.URL) string {
	for _, selector := range []string{
		`meta[property="og:image"]`,
		`meta[property="og:image:url"]`,
		`meta[name="twitter:image"]`,
	} {
		content, ok := doc.Find(selector).First().Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(content))
		if err != nil {
			continue
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		return ref.String()
	}
	return ""
}
