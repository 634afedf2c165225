// Package driver owns the engine's external database connections. The
// source registry lives in Postgres; articles never touch it.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"news-engine/models"
)

// DatabaseConfig carries the Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (dc *DatabaseConfig) connString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dc.Host, dc.Port, dc.User, dc.Password, dc.DBName, dc.SSLMode,
	)
}

// Init connects a pgx pool and verifies it with a ping.
func Init(ctx context.Context, dc *DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dc.connString())
	if err != nil {
		return nil, fmt.Errorf("driver: parse database config: %w", err)
	}
	if dc.MaxConns > 0 {
		config.MaxConns = dc.MaxConns
	}
	if dc.MinConns > 0 {
		config.MinConns = dc.MinConns
	}
	if dc.MaxConnLifetime > 0 {
		config.MaxConnLifetime = dc.MaxConnLifetime
	}
	if dc.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = dc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("driver: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("driver: ping: %w", err)
	}
	logger.Info("connected to database pool",
		"host", dc.Host, "dbname", dc.DBName, "max_conns", config.MaxConns)
	return pool, nil
}

// retryOperation retries operations that fail with transient "conn busy"
// errors, with exponential backoff.
func retryOperation(ctx context.Context, operation func() error, name string, logger *slog.Logger) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "conn busy") || attempt == maxRetries-1 {
			return err
		}
		delay := baseDelay * time.Duration(1<<attempt)
		logger.Warn("database connection busy, retrying",
			"operation", name, "attempt", attempt+1, "retry_delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("driver: operation %s exhausted retries", name)
}

// LoadSources reads every configured news source. The selector column is
// jsonb and may be SQL NULL for feeds that need no scraping hints.
func LoadSources(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger) ([]*models.Source, error) {
	var sources []*models.Source

	err := retryOperation(ctx, func() error {
		rows, err := db.Query(ctx, `
			SELECT id, title, domain, rss, channels, xpaths
			FROM sources
			ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		sources = sources[:0]
		for rows.Next() {
			var s models.Source
			var selectors *models.Selectors
			if err := rows.Scan(&s.ID, &s.Name, &s.Domain, &s.RSSURL, &s.Categories, &selectors); err != nil {
				return err
			}
			s.Selectors = selectors
			sources = append(sources, &s)
		}
		return rows.Err()
	}, "LoadSources", logger)
	if err != nil {
		return nil, fmt.Errorf("driver: load sources: %w", err)
	}

	logger.Info("loaded source registry", "sources", len(sources))
	return sources, nil
}
