package cache

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/mkorzh/tube-relay/app/database"
	"github.com/mkorzh/tube-relay/app/metrics"
)

type entry struct {
	key        string
	payload    []byte
	capturedAt time.Time
}

// Store is the shared dedup and lookup state: a TTL-bounded LRU map of
// channel list payloads plus the processed item hash set. All operations are
// safe under concurrent calls from the push path, the poll path, and the
// orchestrator.
//
// Mutations are buffered in memory and flushed to durable storage every
// flushEvery insertions (markEvery for the dedup set), not synchronously.
// On startup the in-memory structures are rehydrated from the repositories;
// rehydrated entries are trusted regardless of age until the next Get
// evaluates the TTL.
type Store struct {
	mu        sync.Mutex
	elements  map[string]*list.Element
	order     *list.List // front = least recently used
	capacity  int
	processed map[string]struct{}

	puts          int
	flushEvery    int
	pendingHashes []string
	markEvery     int

	cacheRepo database.CacheRepository
	dedupRepo database.DedupRepository

	now func() time.Time
}

func NewStore(cacheRepo database.CacheRepository, dedupRepo database.DedupRepository,
	capacity, flushEvery, markEvery int) *Store {
	s := &Store{
		elements:   make(map[string]*list.Element),
		order:      list.New(),
		capacity:   capacity,
		processed:  make(map[string]struct{}),
		flushEvery: flushEvery,
		markEvery:  markEvery,
		cacheRepo:  cacheRepo,
		dedupRepo:  dedupRepo,
		now:        time.Now,
	}
	s.rehydrate()
	return s
}

func (s *Store) rehydrate() {
	entries, err := s.cacheRepo.LoadEntries()
	if err != nil {
		slog.Warn("Failed to load cache snapshot, starting empty", "error", err)
	}
	for _, e := range entries {
		el := s.order.PushBack(&entry{key: e.Key, payload: e.Payload, capturedAt: e.CapturedAt})
		s.elements[e.Key] = el
	}

	hashes, err := s.dedupRepo.LoadAll()
	if err != nil {
		slog.Warn("Failed to load dedup set, starting empty", "error", err)
	}
	for _, h := range hashes {
		s.processed[h] = struct{}{}
	}

	metrics.CacheEntries.Set(float64(s.order.Len()))
	slog.Info("Cache state rehydrated", "entries", s.order.Len(), "processed", len(s.processed))
}

// Get returns the cached payload for key if it was captured less than maxAge
// ago. A hit refreshes the entry's recency.
func (s *Store) Get(key string, maxAge time.Duration) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.elements[key]
	if !ok {
		return nil, false
	}

	e := el.Value.(*entry)
	if s.now().Sub(e.capturedAt) >= maxAge {
		return nil, false
	}

	s.order.MoveToBack(el)
	return e.payload, true
}

// Put stores a payload for key, moving it to the most recent position and
// evicting the least recently used entry once the capacity is exceeded.
func (s *Store) Put(key string, payload []byte) {
	s.mu.Lock()

	if el, ok := s.elements[key]; ok {
		e := el.Value.(*entry)
		e.payload = payload
		e.capturedAt = s.now()
		s.order.MoveToBack(el)
	} else {
		el := s.order.PushBack(&entry{key: key, payload: payload, capturedAt: s.now()})
		s.elements[key] = el
	}

	for s.order.Len() > s.capacity {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.elements, oldest.Value.(*entry).key)
	}

	metrics.CacheEntries.Set(float64(s.order.Len()))

	s.puts++
	flush := s.flushEvery > 0 && s.puts%s.flushEvery == 0
	var snapshot []database.CacheEntry
	if flush {
		snapshot = s.snapshotLocked()
	}
	s.mu.Unlock()

	if flush {
		if err := s.cacheRepo.ReplaceAll(snapshot); err != nil {
			slog.Warn("Failed to persist cache snapshot", "error", err)
		}
	}
}

// MarkProcessed adds hash to the dedup set and reports whether it was new.
// The check-and-set is atomic so near-simultaneous duplicate events cannot
// both pass the dedup gate.
func (s *Store) MarkProcessed(hash string) bool {
	s.mu.Lock()

	if _, ok := s.processed[hash]; ok {
		s.mu.Unlock()
		return false
	}
	s.processed[hash] = struct{}{}
	s.pendingHashes = append(s.pendingHashes, hash)

	var batch []string
	if s.markEvery > 0 && len(s.pendingHashes) >= s.markEvery {
		batch = s.pendingHashes
		s.pendingHashes = nil
	}
	s.mu.Unlock()

	if batch != nil {
		if err := s.dedupRepo.MarkBatch(batch); err != nil {
			slog.Warn("Failed to persist dedup batch", "error", err)
			s.requeue(batch)
		}
	}
	return true
}

func (s *Store) IsProcessed(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[hash]
	return ok
}

// Flush forces both the list cache snapshot and any pending dedup hashes to
// durable storage. Called on shutdown.
func (s *Store) Flush() error {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	batch := s.pendingHashes
	s.pendingHashes = nil
	s.mu.Unlock()

	if err := s.cacheRepo.ReplaceAll(snapshot); err != nil {
		return err
	}
	if err := s.dedupRepo.MarkBatch(batch); err != nil {
		s.requeue(batch)
		return err
	}
	return nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *Store) ProcessedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

func (s *Store) snapshotLocked() []database.CacheEntry {
	snapshot := make([]database.CacheEntry, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		snapshot = append(snapshot, database.CacheEntry{
			Key:        e.key,
			Payload:    e.payload,
			CapturedAt: e.capturedAt,
		})
	}
	return snapshot
}

func (s *Store) requeue(batch []string) {
	s.mu.Lock()
	s.pendingHashes = append(s.pendingHashes, batch...)
	s.mu.Unlock()
}
