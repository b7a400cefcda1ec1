package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// MockProvider implements a scriptable download provider for testing
type MockProvider struct {
	name     string
	calls    int
	failures int
	content  []byte
	err      error
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Fetch(ctx context.Context, url, dest string) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	if m.calls <= m.failures {
		return errors.New("simulated fetch failure")
	}
	return os.WriteFile(dest, m.content, 0o644)
}

var _ Provider = (*MockProvider)(nil)

func newTestStage(primary, fallback Provider) *Stage {
	s := NewStage(primary, fallback)
	s.wait = func(context.Context, time.Duration) error { return nil }
	return s
}

func TestRunFirstAttemptSucceeds(t *testing.T) {
	primary := &MockProvider{name: "primary", content: []byte("video")}
	stage := newTestStage(primary, nil)

	dest := filepath.Join(t.TempDir(), "video.mp4")
	if err := stage.Run(context.Background(), "https://example.com/v", dest); err != nil {
		t.Fatalf("Expected download to succeed, got %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("Expected 1 attempt, got %d", primary.calls)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("Expected downloaded file to exist: %v", err)
	}
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	primary := &MockProvider{name: "primary", failures: 1, content: []byte("video")}
	stage := newTestStage(primary, nil)

	var slept []time.Duration
	stage.wait = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	dest := filepath.Join(t.TempDir(), "video.mp4")
	if err := stage.Run(context.Background(), "https://example.com/v", dest); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if primary.calls != 2 {
		t.Errorf("Expected 2 attempts, got %d", primary.calls)
	}

	// Linear backoff scales with the attempt number
	if len(slept) != 1 || slept[0] != 5*time.Second {
		t.Errorf("Expected a single 5s backoff, got %v", slept)
	}
}

func TestRunBackoffInterruptedByCancellation(t *testing.T) {
	primary := &MockProvider{name: "primary", err: errors.New("always fails")}
	stage := NewStage(primary, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	dest := filepath.Join(t.TempDir(), "video.mp4")
	err := stage.Run(ctx, "https://example.com/v", dest)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("Expected a single attempt before cancellation, got %d", primary.calls)
	}

	// The backoff must not run its full 5s once the context is gone
	if time.Since(start) > time.Second {
		t.Error("Expected cancellation to interrupt the backoff")
	}
}

func TestRunFallsBackAfterPrimaryExhausted(t *testing.T) {
	primary := &MockProvider{name: "primary", err: errors.New("always fails")}
	fallback := &MockProvider{name: "fallback", content: []byte("video")}
	stage := newTestStage(primary, fallback)

	dest := filepath.Join(t.TempDir(), "video.mp4")
	if err := stage.Run(context.Background(), "https://example.com/v", dest); err != nil {
		t.Fatalf("Expected fallback to succeed, got %v", err)
	}
	if primary.calls != 2 {
		t.Errorf("Expected primary to be tried twice, got %d", primary.calls)
	}
	if fallback.calls != 1 {
		t.Errorf("Expected fallback to be tried once, got %d", fallback.calls)
	}
}

func TestRunFailsWithoutFallback(t *testing.T) {
	primary := &MockProvider{name: "primary", err: errors.New("always fails")}
	stage := newTestStage(primary, nil)

	dest := filepath.Join(t.TempDir(), "video.mp4")
	if err := stage.Run(context.Background(), "https://example.com/v", dest); err == nil {
		t.Error("Expected an error when every attempt fails")
	}
	if primary.calls != 2 {
		t.Errorf("Expected exactly 2 attempts, got %d", primary.calls)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("Expected no file left behind after failure")
	}
}

func TestRunRejectsEmptyFile(t *testing.T) {
	// A provider that "succeeds" but writes nothing
	primary := &MockProvider{name: "primary", content: nil}
	stage := newTestStage(primary, nil)

	dest := filepath.Join(t.TempDir(), "video.mp4")
	if err := stage.Run(context.Background(), "https://example.com/v", dest); err == nil {
		t.Error("Expected an empty download to be treated as a failure")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("Expected the empty file to be removed")
	}
}
