package database

import (
	"fmt"
	"time"
)

var _ CheckpointRepository = (*CheckpointRepo)(nil)

// CheckpointRepo records when each channel was last polled.
type CheckpointRepo struct {
	db *DB
}

func NewCheckpointRepository(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

func (r *CheckpointRepo) GetAll() (map[string]time.Time, error) {
	rows, err := r.db.Query(`SELECT channel_id, checked_at FROM checkpoints`)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var checkedAt time.Time
		if err := rows.Scan(&id, &checkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		checkpoints[id] = checkedAt
	}

	return checkpoints, rows.Err()
}

func (r *CheckpointRepo) Set(channelID string, checkedAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO checkpoints (channel_id, checked_at)
		VALUES (?, ?)
		ON CONFLICT (channel_id) DO UPDATE SET checked_at = excluded.checked_at
	`, channelID, checkedAt)
	if err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}

	return nil
}
