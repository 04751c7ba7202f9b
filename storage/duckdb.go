package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"
)

// Config holds the configuration for a DuckDB-backed storage.
type Config struct {
	// Path is the database file. ":memory:" gives a non-durable store for tests.
	Path         string
	QueryTimeout time.Duration
	Logger       *zap.Logger
}

// DuckDB keeps client state in a single-table DuckDB database file.
type DuckDB struct {
	db           *sql.DB
	path         string
	queryTimeout time.Duration
	logger       *zap.Logger
}

// OpenDuckDB opens (creating if needed) the storage database and its schema.
func OpenDuckDB(cfg Config) (*DuckDB, error) {
	if cfg.Path == "" {
		return nil, errors.New("storage path is required")
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage database: %w", err)
	}

	// A single connection keeps :memory: databases shared across calls.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &DuckDB{
		db:           db,
		path:         cfg.Path,
		queryTimeout: cfg.QueryTimeout,
		logger:       cfg.Logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize storage schema: %w", err)
	}

	s.logger.Debug("Storage database opened", zap.String("path", cfg.Path))
	return s, nil
}

func (s *DuckDB) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS local_storage (
			key VARCHAR PRIMARY KEY,
			value VARCHAR NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// GetItem returns the value stored under key.
func (s *DuckDB) GetItem(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key '%s': %w", key, err)
	}
	return value, true, nil
}

// SetItem upserts value under key.
func (s *DuckDB) SetItem(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_storage (key, value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write key '%s': %w", key, err)
	}
	return nil
}

// RemoveItem deletes key if present.
func (s *DuckDB) RemoveItem(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_storage WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to remove key '%s': %w", key, err)
	}
	return nil
}

// UpdatedAt returns when key was last written.
func (s *DuckDB) UpdatedAt(ctx context.Context, key string) (time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var ts time.Time
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM local_storage WHERE key = $1`, key).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read timestamp for '%s': %w", key, err)
	}
	return ts, true, nil
}

// Path returns the database file path.
func (s *DuckDB) Path() string {
	return s.path
}

// Close closes the database.
func (s *DuckDB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
