package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"logi-track/internal/config"
)

type SQLiteProvider struct {
	*SQLProvider
}

func NewSQLiteProvider(cfg *config.Storage) (*SQLiteProvider, error) {
	path := cfg.SQLite.Path
	if path == "" {
		return nil, errors.New("storage.sqlite.path is not set")
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	if path == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	provider, err := NewSQLProvider(cfg, "sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One connection keeps an in-memory database alive and serializes writers.
	provider.db.SetMaxOpenConns(1)
	provider.isUniqueViolation = func(err error) bool {
		var se sqlite3.Error
		return errors.As(err, &se) &&
			(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}

	return &SQLiteProvider{SQLProvider: provider}, nil
}
