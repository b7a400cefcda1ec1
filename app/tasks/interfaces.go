package tasks

import (
	"context"

	"github.com/mkorzh/tube-relay/app/feed"
)

// TaskSchedulerInterface defines the interface for background task
// scheduling. Used by the main application to manage the polling fallback
// and periodic state flushes.
// Example usage:
//
//	scheduler := NewScheduler(table, checkpointRepo, store, httpClient, parser, handler)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// EventHandler accepts a feed event for pipeline processing. Implemented by
// the pipeline orchestrator.
type EventHandler interface {
	Handle(ctx context.Context, ev feed.Event) error
}
