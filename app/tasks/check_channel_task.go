package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mkorzh/tube-relay/app/cache"
	"github.com/mkorzh/tube-relay/app/channels"
	"github.com/mkorzh/tube-relay/app/database"
	"github.com/mkorzh/tube-relay/app/feed"
	"github.com/mkorzh/tube-relay/app/pipeline"
)

// CheckChannelTask polls one channel's feed for items the push path may have
// missed. Feed payloads are served from the listing cache within its TTL so
// frequent cycles do not hammer the upstream.
type CheckChannelTask struct {
	Task
	Channel        channels.Channel
	httpClient     *http.Client
	parser         *feed.Parser
	store          *cache.Store
	checkpointRepo database.CheckpointRepository
	handler        EventHandler
	topicTemplate  string
	userAgent      string
	pollLimit      int
	listCacheTTL   time.Duration
}

func NewCheckChannelTask(ch channels.Channel, httpClient *http.Client, parser *feed.Parser,
	store *cache.Store, checkpointRepo database.CheckpointRepository, handler EventHandler,
	topicTemplate, userAgent string, pollLimit int, listCacheTTL time.Duration) *CheckChannelTask {
	return &CheckChannelTask{
		Task:           NewTask(TaskTypeCheckChannel, ch.ChannelID),
		Channel:        ch,
		httpClient:     httpClient,
		parser:         parser,
		store:          store,
		checkpointRepo: checkpointRepo,
		handler:        handler,
		topicTemplate:  topicTemplate,
		userAgent:      userAgent,
		pollLimit:      pollLimit,
		listCacheTTL:   listCacheTTL,
	}
}

func (t *CheckChannelTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := t.fetchListing(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch channel listing: %w", err)
	}

	events, err := t.parser.Run(data)
	if err != nil {
		return fmt.Errorf("failed to parse channel listing: %w", err)
	}

	if len(events) > t.pollLimit {
		events = events[:t.pollLimit]
	}

	newCount := 0
	duplicateCount := 0

	for _, ev := range events {
		if ev.ChannelID == "" {
			ev.ChannelID = t.Channel.ChannelID
		}

		err := t.handler.Handle(ctx, ev)
		switch {
		case err == nil:
			newCount++
		case errors.Is(err, pipeline.ErrAlreadyProcessed):
			duplicateCount++
		case errors.Is(err, pipeline.ErrBusy):
			// The pipeline accepts one job at a time; remaining items are
			// picked up on the next cycle
			slog.Debug("Pipeline busy, deferring remaining items", "channel_id", t.ChannelID)
			t.markChecked()
			return nil
		default:
			slog.Warn("Failed to hand event to pipeline", "channel_id", t.ChannelID, "item", ev.ItemID, "error", err)
		}
	}

	t.markChecked()

	slog.Info("Task completed",
		"type", "CheckChannel",
		"channel_id", t.ChannelID,
		"duration", t.GetDuration(),
		"total", len(events),
		"duplicates", duplicateCount,
		"new", newCount)

	return nil
}

func (t *CheckChannelTask) fetchListing(ctx context.Context) ([]byte, error) {
	cacheKey := "listing:" + t.Channel.ChannelID
	if data, ok := t.store.Get(cacheKey, t.listCacheTTL); ok {
		slog.Debug("Channel listing served from cache", "channel_id", t.ChannelID)
		return data, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	url := fmt.Sprintf(t.topicTemplate, t.Channel.ChannelID)
	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	t.store.Put(cacheKey, data)

	return data, nil
}

func (t *CheckChannelTask) markChecked() {
	if err := t.checkpointRepo.Set(t.ChannelID, time.Now().UTC()); err != nil {
		slog.Warn("Failed to record poll checkpoint", "channel_id", t.ChannelID, "error", err)
	}
}
