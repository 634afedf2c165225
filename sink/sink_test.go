package sink

import (
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-engine/models"
)

func TestAppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.db")
	s, err := Open(path, slog.Default())
	require.NoError(t, err)

	a := &models.Article{
		ID:      "id-1",
		Title:   "Title",
		Authors: []string{"A", "B"},
		Source:  "Example",
		URL:     "https://example.com/a",
		Summary: "s",
		Content: "c",
	}
	require.NoError(t, s.Append(a.Record()))
	assert.Equal(t, int64(1), s.Rows())
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	row := db.QueryRow(`SELECT id, author, publication_date, tags FROM articles`)
	var id, author, pubDate, tags string
	require.NoError(t, row.Scan(&id, &author, &pubDate, &tags))
	assert.Equal(t, "id-1", id)
	assert.Equal(t, "A ,B", author)
	assert.Equal(t, models.NullValue, pubDate)
	assert.Equal(t, models.NullValue, tags)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.db")

	s, err := Open(path, slog.Default())
	require.NoError(t, err)
	require.NoError(t, s.Append(models.ArticleRecord{ID: "1"}))
	require.NoError(t, s.Close())

	// Reopening must keep the existing rows.
	s, err = Open(path, slog.Default())
	require.NoError(t, err)
	require.NoError(t, s.Append(models.ArticleRecord{ID: "2"}))
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM articles`).Scan(&n))
	assert.Equal(t, 2, n)
}
