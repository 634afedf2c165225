package extractor

import (
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// minReadableLength guards against readability returning only boilerplate
// (a bare title or cookie banner) while the real body sits elsewhere.
const minReadableLength = 200

// extractContent turns raw article HTML into plain text paragraphs. The
// document is pre-cleaned of chrome and scripts, run through readability
// for the main content, and flattened to text. Short or failed extractions
// fall back to paragraph harvesting over the whole page.
func extractContent(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "<") {
		return normalizeWhitespace(trimmed)
	}

	if cleaned := preClean(trimmed); cleaned != "" {
		trimmed = cleaned
	}

	article, err := readability.FromReader(strings.NewReader(trimmed), nil)
	if err == nil {
		var buf strings.Builder
		if err := article.RenderText(&buf); err == nil {
			text := strings.TrimSpace(buf.String())
			if len(text) >= minReadableLength {
				return normalizeWhitespace(text)
			}
		}
	}

	return extractParagraphs(trimmed)
}

// preClean strips non-content elements so readability scores the actual
// article body instead of navigation and embeds.
func preClean(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, nav, header, footer, aside").Remove()
	doc.Find("iframe, embed, object, video, audio, canvas").Remove()
	doc.Find("[class*='social'], [class*='share'], [class*='comment'], [id*='comment']").Remove()

	cleaned, err := doc.Html()
	if err != nil {
		return ""
	}
	return cleaned
}

// extractParagraphs collects text from block elements, headers first, and
// joins them with blank lines.
func extractParagraphs(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return stripTags(html)
	}

	var paragraphs []string
	collect := func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	doc.Find("h1, h2, h3, h4, h5, h6").Each(collect)
	doc.Find("p").Each(collect)
	doc.Find("li").Each(collect)

	if len(paragraphs) == 0 {
		return stripTags(html)
	}
	return strings.Join(paragraphs, "\n\n")
}

// stripTags removes all markup and collapses whitespace.
func stripTags(raw string) string {
	p := bluemonday.StrictPolicy()
	return normalizeWhitespace(p.Sanitize(raw))
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
