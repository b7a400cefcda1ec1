package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB

	path string
}

// NewConnection opens (or creates) the durable state database under dataDir
// and applies pending migrations. A database that cannot be opened or
// migrated is treated as corrupt: it is logged, removed, and recreated empty.
// State loss here is acceptable; a missing snapshot is equivalent to a fresh
// start.
func NewConnection(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dataDir, "state.db")

	db, err := open(path)
	if err == nil {
		return db, nil
	}

	slog.Warn("State database unusable, resetting to empty", "path", path, "error", err)
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, fmt.Errorf("failed to remove corrupt database: %w", rmErr)
	}

	db, err = open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to recreate state database: %w", err)
	}
	return db, nil
}

func open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite is not safe for concurrent writes over multiple
	// connections on one file
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path}

	if err := RunMigrations(db); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Path() string {
	return db.path
}
