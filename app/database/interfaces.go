package database

import (
	"time"
)

// CacheEntry is one persisted channel list snapshot.
type CacheEntry struct {
	Key        string
	Payload    []byte
	CapturedAt time.Time
}

// Lease is one persisted subscription lease.
type Lease struct {
	ChannelID   string
	Topic       string
	Secret      string
	CallbackURL string
	ExpiresAt   time.Time
}

type DedupRepository interface {
	LoadAll() ([]string, error)
	MarkBatch(hashes []string) error
}

type CacheRepository interface {
	LoadEntries() ([]CacheEntry, error)
	ReplaceAll(entries []CacheEntry) error
}

type LeaseRepository interface {
	LoadAll() ([]Lease, error)
	Upsert(lease Lease) error
	Delete(channelID string) error
}

type CheckpointRepository interface {
	GetAll() (map[string]time.Time, error)
	Set(channelID string, checkedAt time.Time) error
}
