package models

import (
	"strings"
	"time"
)

// NullValue is the sentinel written downstream for empty collections and
// missing scalars. Consumers rely on the literal string, so it must never
// drift to "None", "null" or an empty string.
const NullValue = "NULL"

// collectionSeparator joins multi-valued fields in the downstream record.
const collectionSeparator = " ,"

// PublicationDateLayout is the downstream publication_date format
// (RFC 3339 with microseconds and a numeric zone).
const PublicationDateLayout = "2006-01-02T15:04:05.000000-0700"

// Article is one extracted news article. Articles are ephemeral: produced
// by an extraction job, published downstream and discarded.
type Article struct {
	ID              string
	Title           string
	Authors         []string
	PublicationDate *time.Time
	Source          string
	URL             string
	Summary         string
	Content         string
	Tags            []string
	Categories      []string
	Images          []string
}

// ArticleRecord is the flattened transport shape published to the message
// bus and appended to the fallback table. Every field is a string; empty
// values carry the NULL sentinel.
type ArticleRecord struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublicationDate string `json:"publication_date"`
	Source          string `json:"source"`
	URL             string `json:"url"`
	Summary         string `json:"summary"`
	Content         string `json:"content"`
	Tags            string `json:"tags"`
	Categories      string `json:"categories"`
	Images          string `json:"images"`
}

// Record normalizes the article for transport.
func (a *Article) Record() ArticleRecord {
	return ArticleRecord{
		ID:              a.ID,
		Title:           a.Title,
		Author:          joinCollection(a.Authors),
		PublicationDate: formatPublicationDate(a.PublicationDate),
		Source:          a.Source,
		URL:             a.URL,
		Summary:         a.Summary,
		Content:         a.Content,
		Tags:            joinCollection(a.Tags),
		Categories:      joinCollection(a.Categories),
		Images:          joinCollection(a.Images),
	}
}

// ParseRecord reverses Record. NULL sentinels come back as nil / empty
// collections.
func ParseRecord(r ArticleRecord) (*Article, error) {
	a := &Article{
		ID:         r.ID,
		Title:      r.Title,
		Authors:    splitCollection(r.Author),
		Source:     r.Source,
		URL:        r.URL,
		Summary:    r.Summary,
		Content:    r.Content,
		Tags:       splitCollection(r.Tags),
		Categories: splitCollection(r.Categories),
		Images:     splitCollection(r.Images),
	}
	if r.PublicationDate != NullValue && r.PublicationDate != "" {
		t, err := time.Parse(PublicationDateLayout, r.PublicationDate)
		if err != nil {
			return nil, err
		}
		a.PublicationDate = &t
	}
	return a, nil
}

func formatPublicationDate(t *time.Time) string {
	if t == nil {
		return NullValue
	}
	return t.Format(PublicationDateLayout)
}

func joinCollection(values []string) string {
	if len(values) == 0 {
		return NullValue
	}
	return strings.Join(values, collectionSeparator)
}

func splitCollection(s string) []string {
	if s == "" || s == NullValue {
		return nil
	}
	return strings.Split(s, collectionSeparator)
}
