package tasks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mkorzh/tube-relay/app/cache"
	"github.com/mkorzh/tube-relay/app/channels"
	"github.com/mkorzh/tube-relay/app/database"
	"github.com/mkorzh/tube-relay/app/feed"
	"github.com/mkorzh/tube-relay/app/pipeline"
)

const channelListing = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015"
      xmlns="http://www.w3.org/2005/Atom">
  <yt:channelId>UC-test</yt:channelId>
  <entry>
    <yt:videoId>vid00000001</yt:videoId>
    <title>First</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=vid00000001"/>
  </entry>
  <entry>
    <yt:videoId>vid00000002</yt:videoId>
    <title>Second</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=vid00000002"/>
  </entry>
  <entry>
    <yt:videoId>vid00000003</yt:videoId>
    <title>Third</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=vid00000003"/>
  </entry>
</feed>`

type stubCacheRepo struct{}

func (stubCacheRepo) LoadEntries() ([]database.CacheEntry, error)    { return nil, nil }
func (stubCacheRepo) ReplaceAll(entries []database.CacheEntry) error { return nil }

type stubDedupRepo struct{}

func (stubDedupRepo) LoadAll() ([]string, error)      { return nil, nil }
func (stubDedupRepo) MarkBatch(hashes []string) error { return nil }

// MockCheckpointRepository records poll checkpoints for testing
type MockCheckpointRepository struct {
	mu          sync.Mutex
	checkpoints map[string]time.Time
}

func NewMockCheckpointRepository() *MockCheckpointRepository {
	return &MockCheckpointRepository{checkpoints: make(map[string]time.Time)}
}

func (m *MockCheckpointRepository) GetAll() (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time, len(m.checkpoints))
	for k, v := range m.checkpoints {
		out[k] = v
	}
	return out, nil
}

func (m *MockCheckpointRepository) Set(channelID string, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[channelID] = checkedAt
	return nil
}

var _ database.CheckpointRepository = (*MockCheckpointRepository)(nil)

// MockHandler scripts pipeline responses per item id.
type MockHandler struct {
	mu        sync.Mutex
	responses map[string]error
	handled   []feed.Event
}

func (m *MockHandler) Handle(ctx context.Context, ev feed.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handled = append(m.handled, ev)
	return m.responses[ev.ItemID]
}

func (m *MockHandler) handledIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.handled))
	for i, ev := range m.handled {
		ids[i] = ev.ItemID
	}
	return ids
}

func newCheckTask(serverURL string, handler EventHandler, checkpoints database.CheckpointRepository,
	store *cache.Store, pollLimit int, ttl time.Duration) *CheckChannelTask {
	ch := channels.Channel{Name: "test", ChannelID: "UC-test"}
	return NewCheckChannelTask(ch, &http.Client{}, feed.NewParser(), store, checkpoints,
		handler, serverURL+"?channel_id=%s", "test-agent/1.0", pollLimit, ttl)
}

func TestCheckChannelTask(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(channelListing))
	}))
	defer server.Close()

	store := cache.NewStore(stubCacheRepo{}, stubDedupRepo{}, 50, 100, 100)
	handler := &MockHandler{}
	checkpoints := NewMockCheckpointRepository()

	task := newCheckTask(server.URL, handler, checkpoints, store, 5, time.Minute)
	task.Start()

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected task to succeed, got %v", err)
	}

	ids := handler.handledIDs()
	if len(ids) != 3 {
		t.Fatalf("Expected 3 events handed to the pipeline, got %d", len(ids))
	}

	// The checkpoint marks the channel as checked
	stored, _ := checkpoints.GetAll()
	if _, ok := stored["UC-test"]; !ok {
		t.Error("Expected a checkpoint for the polled channel")
	}

	// A second run within the TTL is served from the cache
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected cached run to succeed, got %v", err)
	}
	if requests != 1 {
		t.Errorf("Expected 1 upstream fetch, got %d", requests)
	}
}

func TestCheckChannelTaskHonorsPollLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(channelListing))
	}))
	defer server.Close()

	store := cache.NewStore(stubCacheRepo{}, stubDedupRepo{}, 50, 100, 100)
	handler := &MockHandler{}

	task := newCheckTask(server.URL, handler, NewMockCheckpointRepository(), store, 2, time.Minute)

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected task to succeed, got %v", err)
	}
	if len(handler.handledIDs()) != 2 {
		t.Errorf("Expected the poll limit to cap events at 2, got %d", len(handler.handledIDs()))
	}
}

func TestCheckChannelTaskStopsWhenPipelineBusy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(channelListing))
	}))
	defer server.Close()

	store := cache.NewStore(stubCacheRepo{}, stubDedupRepo{}, 50, 100, 100)
	handler := &MockHandler{responses: map[string]error{
		"vid00000001": pipeline.ErrAlreadyProcessed,
		"vid00000002": pipeline.ErrBusy,
	}}
	checkpoints := NewMockCheckpointRepository()

	task := newCheckTask(server.URL, handler, checkpoints, store, 5, time.Minute)

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected a busy pipeline to end the cycle cleanly, got %v", err)
	}

	// The busy response stops the cycle before the third item
	ids := handler.handledIDs()
	if len(ids) != 2 {
		t.Fatalf("Expected the cycle to stop at the busy item, got %d events", len(ids))
	}

	// The checkpoint is still recorded so the scheduler does not spin
	stored, _ := checkpoints.GetAll()
	if _, ok := stored["UC-test"]; !ok {
		t.Error("Expected a checkpoint despite the early stop")
	}
}

func TestCheckChannelTaskUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	store := cache.NewStore(stubCacheRepo{}, stubDedupRepo{}, 50, 100, 100)
	task := newCheckTask(server.URL, &MockHandler{}, NewMockCheckpointRepository(), store, 5, time.Minute)

	if err := task.Execute(context.Background()); err == nil {
		t.Error("Expected an upstream failure to surface for retry")
	}
}

func TestFlushStateTask(t *testing.T) {
	store := cache.NewStore(stubCacheRepo{}, stubDedupRepo{}, 50, 100, 100)
	store.Put("listing:UC-a", []byte("payload"))
	store.MarkProcessed("hash-1")

	task := NewFlushStateTask(store)
	task.Start()

	if err := task.Execute(context.Background()); err != nil {
		t.Errorf("Expected flush to succeed, got %v", err)
	}
	if task.GetType() != TaskTypeFlushState {
		t.Errorf("Expected task type %s, got %s", TaskTypeFlushState, task.GetType())
	}
}

func TestTaskRetryBookkeeping(t *testing.T) {
	task := NewTask(TaskTypeCheckChannel, "UC-test")

	if task.GetRetryCount() != 0 {
		t.Errorf("Expected retry count 0, got %d", task.GetRetryCount())
	}
	if !task.CanRetry() {
		t.Error("Expected a fresh task to be retryable")
	}

	for i := 0; i < DefaultMaxRetries; i++ {
		task.IncrementRetryCount()
	}
	if task.CanRetry() {
		t.Error("Expected retries to be exhausted at the maximum")
	}
	if task.GetChannelID() != "UC-test" {
		t.Errorf("Expected channel id 'UC-test', got '%s'", task.GetChannelID())
	}
}
