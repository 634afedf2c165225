// Package sink is the fallback destination for article records when the
// message bus is unavailable: an append-only SQLite table on local disk.
package sink

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"news-engine/metrics"
	"news-engine/models"
	"news-engine/utils/checksum"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS articles (
	id               TEXT NOT NULL,
	title            TEXT NOT NULL,
	author           TEXT NOT NULL,
	publication_date TEXT NOT NULL,
	source           TEXT NOT NULL,
	url              TEXT NOT NULL,
	summary          TEXT NOT NULL,
	content          TEXT NOT NULL,
	tags             TEXT NOT NULL,
	categories       TEXT NOT NULL,
	images           TEXT NOT NULL
)`

const insertSQL = `
INSERT INTO articles
	(id, title, author, publication_date, source, url, summary, content, tags, categories, images)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// TableSink appends article records to a local SQLite table.
type TableSink struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	rows int64
}

// Open creates or opens the sink database at path and ensures the
// articles table exists. When the file was modified outside the engine
// since the last run, that is logged and the run continues; the table is
// append only so stale rows are harmless.
func Open(path string, logger *slog.Logger) (*TableSink, error) {
	if valid, err := checksum.CheckOrCreate(path, path+".sha256"); err == nil && !valid {
		logger.Info("sink file changed since last run", "path", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}
	// SQLite serializes writers; a second connection would just contend.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: create table: %w", err)
	}
	logger.Info("table sink ready", "path", path)
	return &TableSink{db: db, path: path, logger: logger}, nil
}

// Append writes one record to the articles table.
func (s *TableSink) Append(r models.ArticleRecord) error {
	_, err := s.db.Exec(insertSQL,
		r.ID, r.Title, r.Author, r.PublicationDate, r.Source,
		r.URL, r.Summary, r.Content, r.Tags, r.Categories, r.Images,
	)
	if err != nil {
		return fmt.Errorf("sink: append: %w", err)
	}
	metrics.SinkRowsTotal.Inc()
	s.mu.Lock()
	s.rows++
	s.mu.Unlock()
	s.logger.Info("article appended to table sink", "id", r.ID, "url", r.URL)
	return nil
}

// Rows reports how many records this process appended.
func (s *TableSink) Rows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Close refreshes the stored checksum and closes the database.
func (s *TableSink) Close() error {
	err := s.db.Close()
	if _, cerr := checksum.CheckOrCreate(s.path, s.path+".sha256"); cerr != nil {
		s.logger.Warn("failed to refresh sink checksum", "error", cerr)
	}
	return err
}
