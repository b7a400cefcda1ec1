package database

import (
	"fmt"
)

var _ DedupRepository = (*DedupRepo)(nil)

// DedupRepo persists the processed item hash set. Hashes are append-only,
// they are never removed during normal operation.
type DedupRepo struct {
	db *DB
}

func NewDedupRepository(db *DB) *DedupRepo {
	return &DedupRepo{db: db}
}

func (r *DedupRepo) LoadAll() ([]string, error) {
	rows, err := r.db.Query(`SELECT hash FROM processed_items`)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed items: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan processed item: %w", err)
		}
		hashes = append(hashes, h)
	}

	return hashes, rows.Err()
}

func (r *DedupRepo) MarkBatch(hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO processed_items (hash) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, h := range hashes {
		if _, err := stmt.Exec(h); err != nil {
			return fmt.Errorf("failed to mark hash: %w", err)
		}
	}

	return tx.Commit()
}
