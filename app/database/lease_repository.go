package database

import (
	"fmt"
)

var _ LeaseRepository = (*LeaseRepo)(nil)

type LeaseRepo struct {
	db *DB
}

func NewLeaseRepository(db *DB) *LeaseRepo {
	return &LeaseRepo{db: db}
}

func (r *LeaseRepo) LoadAll() ([]Lease, error) {
	rows, err := r.db.Query(`
		SELECT channel_id, topic, secret, callback_url, expires_at
		FROM leases
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load leases: %w", err)
	}
	defer rows.Close()

	var leases []Lease
	for rows.Next() {
		var l Lease
		if err := rows.Scan(&l.ChannelID, &l.Topic, &l.Secret, &l.CallbackURL, &l.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan lease: %w", err)
		}
		leases = append(leases, l)
	}

	return leases, rows.Err()
}

func (r *LeaseRepo) Upsert(lease Lease) error {
	_, err := r.db.Exec(`
		INSERT INTO leases (channel_id, topic, secret, callback_url, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (channel_id) DO UPDATE SET
			topic = excluded.topic,
			secret = excluded.secret,
			callback_url = excluded.callback_url,
			expires_at = excluded.expires_at
	`, lease.ChannelID, lease.Topic, lease.Secret, lease.CallbackURL, lease.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert lease: %w", err)
	}

	return nil
}

func (r *LeaseRepo) Delete(channelID string) error {
	if _, err := r.db.Exec(`DELETE FROM leases WHERE channel_id = ?`, channelID); err != nil {
		return fmt.Errorf("failed to delete lease: %w", err)
	}
	return nil
}
