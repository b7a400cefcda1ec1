package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkorzh/tube-relay/app/cache"
)

// FlushStateTask persists the in-memory cache and dedup state so a crash
// between batched writes loses as little as possible.
type FlushStateTask struct {
	Task
	store *cache.Store
}

func NewFlushStateTask(store *cache.Store) *FlushStateTask {
	return &FlushStateTask{
		Task:  NewTask(TaskTypeFlushState, ""),
		store: store,
	}
}

func (t *FlushStateTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.store.Flush(); err != nil {
		return fmt.Errorf("failed to flush state: %w", err)
	}

	slog.Debug("Task completed",
		"type", "FlushState",
		"duration", t.GetDuration(),
		"cache_entries", t.store.Len(),
		"processed_items", t.store.ProcessedCount())

	return nil
}
