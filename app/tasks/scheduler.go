package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mkorzh/tube-relay/app/cache"
	"github.com/mkorzh/tube-relay/app/cfg"
	"github.com/mkorzh/tube-relay/app/channels"
	"github.com/mkorzh/tube-relay/app/database"
	"github.com/mkorzh/tube-relay/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler runs the polling fallback that covers notifications the hub
// failed to deliver, plus periodic persistence of in-memory state.
type Scheduler struct {
	table          *channels.Table
	checkpointRepo database.CheckpointRepository
	store          *cache.Store
	httpClient     *http.Client
	parser         *feed.Parser
	handler        EventHandler
	topicTemplate  string
	userAgent      string
	interval       time.Duration
	pollLimit      int
	listCacheTTL   time.Duration
	workerCount    int
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	taskQueue      chan TaskInterface
}

func NewScheduler(table *channels.Table, checkpointRepo database.CheckpointRepository,
	store *cache.Store, httpClient *http.Client, parser *feed.Parser, handler EventHandler) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		table:          table,
		checkpointRepo: checkpointRepo,
		store:          store,
		httpClient:     httpClient,
		parser:         parser,
		handler:        handler,
		topicTemplate:  cfg.TopicTemplate,
		userAgent:      cfg.UserAgent,
		interval:       time.Duration(cfg.PollInterval) * time.Second,
		pollLimit:      cfg.PollLimit,
		listCacheTTL:   time.Duration(cfg.ListCacheTTL()) * time.Second,
		workerCount:    cfg.WorkerCount,
		ctx:            ctx,
		cancel:         cancel,
		taskQueue:      make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueTasks() {
	monitored := s.table.All()
	if len(monitored) == 0 {
		slog.Debug("No channels configured, skipping poll cycle")
		return
	}

	checkpoints, err := s.checkpointRepo.GetAll()
	if err != nil {
		slog.Warn("Failed to load poll checkpoints", "error", err)
		checkpoints = map[string]time.Time{}
	}

	now := time.Now().UTC()
	for _, ch := range monitored {
		if checkedAt, ok := checkpoints[ch.ChannelID]; ok && now.Sub(checkedAt) < s.interval {
			slog.Debug("Channel not due for polling yet", "channel_id", ch.ChannelID, "checked_at", checkedAt)
			continue
		}

		checkTask := NewCheckChannelTask(ch, s.httpClient, s.parser, s.store, s.checkpointRepo,
			s.handler, s.topicTemplate, s.userAgent, s.pollLimit, s.listCacheTTL)
		if err := s.EnqueueTask(checkTask); err != nil {
			slog.Warn("Failed to enqueue CheckChannelTask", "channel_id", ch.ChannelID, "error", err)
		}
	}

	flushTask := NewFlushStateTask(s.store)
	if err := s.EnqueueTask(flushTask); err != nil {
		slog.Warn("Failed to enqueue FlushStateTask", "error", err)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "channel_id", task.GetChannelID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
