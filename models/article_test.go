package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticleRecordRoundTrip(t *testing.T) {
	published := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)

	tests := map[string]struct {
		article Article
	}{
		"full article": {
			article: Article{
				ID:              "67aa1f",
				Title:           "Title",
				Authors:         []string{"A. Writer", "B. Editor"},
				PublicationDate: &published,
				Source:          "Example",
				URL:             "https://x.com/a",
				Summary:         "summary",
				Content:         "content",
				Tags:            []string{"go", "news"},
				Categories:      nil,
				Images:          []string{"https://x.com/a.png"},
			},
		},
		"empty collections and nil date": {
			article: Article{
				ID:     "67aa20",
				Title:  "Bare",
				Source: "Example",
				URL:    "https://x.com/b",
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			rec := tc.article.Record()
			parsed, err := ParseRecord(rec)
			require.NoError(t, err)

			assert.Equal(t, tc.article.ID, parsed.ID)
			assert.Equal(t, tc.article.Title, parsed.Title)
			assert.Equal(t, tc.article.Source, parsed.Source)
			assert.Equal(t, tc.article.URL, parsed.URL)
			assert.Equal(t, tc.article.Summary, parsed.Summary)
			assert.Equal(t, tc.article.Content, parsed.Content)
			assert.ElementsMatch(t, tc.article.Authors, parsed.Authors)
			assert.ElementsMatch(t, tc.article.Tags, parsed.Tags)
			assert.ElementsMatch(t, tc.article.Categories, parsed.Categories)
			assert.ElementsMatch(t, tc.article.Images, parsed.Images)
			if tc.article.PublicationDate == nil {
				assert.Nil(t, parsed.PublicationDate)
			} else {
				require.NotNil(t, parsed.PublicationDate)
				assert.True(t, tc.article.PublicationDate.Truncate(time.Microsecond).Equal(*parsed.PublicationDate))
			}
		})
	}
}

func TestRecordNullSentinels(t *testing.T) {
	a := Article{ID: "1", Title: "T", Source: "Example", URL: "https://x.com/a"}
	rec := a.Record()

	assert.Equal(t, NullValue, rec.Author)
	assert.Equal(t, NullValue, rec.PublicationDate)
	assert.Equal(t, NullValue, rec.Tags)
	assert.Equal(t, NullValue, rec.Categories)
	assert.Equal(t, NullValue, rec.Images)
	// Scalars pass through untouched.
	assert.Equal(t, "T", rec.Title)
}

func TestRecordJoinsWithSpaceComma(t *testing.T) {
	a := Article{Tags: []string{"a", "b", "c"}}
	assert.Equal(t, "a ,b ,c", a.Record().Tags)
}
