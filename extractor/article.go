package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"news-engine/models"
	"news-engine/ratelimit"
)

// ErrInvalidDomain is returned when an article URL resolves to a host
// outside its source's configured domain. Feeds sometimes interleave
// syndicated or ad entries; those are dropped, never fetched.
var ErrInvalidDomain = errors.New("extractor: article url outside source domain")

const (
	maxArticleBytes  = 8 << 20
	defaultHostDelay = 2 * time.Second
)

// Scraper downloads and parses one article page at a time, rate limited
// per host.
type Scraper struct {
	client  *http.Client
	limiter *ratelimit.HostRateLimiter
}

// NewScraper builds a scraper. A nil client uses http.DefaultClient; a
// nil limiter gets the default per-host delay.
func NewScraper(client *http.Client, limiter *ratelimit.HostRateLimiter) *Scraper {
	if client == nil {
		client = http.DefaultClient
	}
	if limiter == nil {
		limiter = ratelimit.NewHostRateLimiter(defaultHostDelay)
	}
	return &Scraper{client: client, limiter: limiter}
}

// FetchArticle downloads rawURL and extracts an article from it. The URL
// must belong to the source's domain exactly; subdomains are considered
// different hosts.
func (s *Scraper) FetchArticle(ctx context.Context, src *models.Source, rawURL string) (*models.Article, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("extractor: parse article url: %w", err)
	}
	if parsed.Hostname() != src.Domain {
		return nil, fmt.Errorf("%w: %s: url host %q does not match domain %q",
			ErrInvalidDomain, src.Name, parsed.Hostname(), src.Domain)
	}

	if err := s.limiter.WaitForHost(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("extractor: rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("extractor: build request: %w", err)
	}
	req.Header.Set("User-Agent", "news-engine/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extractor: fetch article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extractor: fetch article: unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return nil, fmt.Errorf("extractor: read article body: %w", err)
	}

	return parseArticle(string(body), src, rawURL), nil
}

// parseArticle builds an article from page HTML. Metadata comes from the
// page's meta tags, the body text from readability extraction. Categories
// stay empty; downstream owns categorization.
func parseArticle(html string, src *models.Source, rawURL string) *models.Article {
	a := &models.Article{
		ID:      uuid.NewString(),
		Source:  src.Name,
		URL:     rawURL,
		Content: extractContent(html),
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return a
	}

	a.Title = extractTitle(doc)
	a.Authors = metaValues(doc, `meta[name="author"]`, `meta[property="article:author"]`)
	a.Summary = stripTags(firstMeta(doc, `meta[name="description"]`, `meta[property="og:description"]`))
	a.Tags = extractTags(doc)
	a.Images = extractImages(doc)
	a.PublicationDate = extractPublicationDate(doc)
	return a
}

// extractTitle prefers the title tag, then og:title, then the first h1.
func extractTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t := firstMeta(doc, `meta[property="og:title"]`); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func extractPublicationDate(doc *goquery.Document) *time.Time {
	raw := firstMeta(doc,
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[itemprop="datePublished"]`,
	)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func extractTags(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var tags []string
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("content", ""))
	})
	for _, kw := range strings.Split(firstMeta(doc, `meta[name="keywords"]`), ",") {
		add(kw)
	}
	return tags
}

func extractImages(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var images []string
	add := func(src string) {
		src = strings.TrimSpace(src)
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		images = append(images, src)
	}

	doc.Find(`meta[property="og:image"]`).Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("content", ""))
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("src", ""))
	})
	return images
}

// firstMeta returns the first non-empty content attribute among selectors.
func firstMeta(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

// metaValues collects every non-empty content attribute among selectors.
func metaValues(doc *goquery.Document, selectors ...string) []string {
	seen := make(map[string]struct{})
	var values []string
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			v := strings.TrimSpace(s.AttrOr("content", ""))
			if v == "" {
				return
			}
			if _, dup := seen[v]; dup {
				return
			}
			seen[v] = struct{}{}
			values = append(values, v)
		})
	}
	return values
}
