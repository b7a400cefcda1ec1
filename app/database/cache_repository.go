package database

import (
	"fmt"
)

var _ CacheRepository = (*CacheRepo)(nil)

// CacheRepo persists snapshots of the in-memory channel list cache. The
// snapshot preserves insertion order so the LRU structure survives restarts.
type CacheRepo struct {
	db *DB
}

func NewCacheRepository(db *DB) *CacheRepo {
	return &CacheRepo{db: db}
}

func (r *CacheRepo) LoadEntries() ([]CacheEntry, error) {
	rows, err := r.db.Query(`
		SELECT key, payload, captured_at
		FROM cache_entries
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entries: %w", err)
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		var e CacheEntry
		if err := rows.Scan(&e.Key, &e.Payload, &e.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (r *CacheRepo) ReplaceAll(entries []CacheEntry) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("failed to clear cache entries: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO cache_entries (key, payload, captured_at, position)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.Exec(e.Key, e.Payload, e.CapturedAt, i); err != nil {
			return fmt.Errorf("failed to store cache entry: %w", err)
		}
	}

	return tx.Commit()
}
