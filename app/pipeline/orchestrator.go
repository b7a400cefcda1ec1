package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/mkorzh/tube-relay/app/cache"
	"github.com/mkorzh/tube-relay/app/channels"
	"github.com/mkorzh/tube-relay/app/download"
	"github.com/mkorzh/tube-relay/app/feed"
	"github.com/mkorzh/tube-relay/app/media"
	"github.com/mkorzh/tube-relay/app/metrics"
	"github.com/mkorzh/tube-relay/app/upload"
)

var (
	// ErrAlreadyProcessed: the event's hash is in the dedup set.
	ErrAlreadyProcessed = errors.New("item already processed")
	// ErrBusy: a pipeline job is already in flight and the event was
	// dropped.
	ErrBusy = errors.New("pipeline busy, event dropped")
	// ErrShuttingDown: the orchestrator no longer accepts events.
	ErrShuttingDown = errors.New("orchestrator shutting down")
)

// Orchestrator sequences the relay pipeline: dedup gate, download, duration
// policy, segmentation, upload fan-out, cleanup. At most one job is active
// at any time across the whole process; overlapping events are dropped by
// design, trading throughput for resource predictability.
type Orchestrator struct {
	store     *cache.Store
	table     *channels.Table
	downloads *download.Stage
	prober    media.Prober
	encoder   media.Encoder
	policy    media.Policy
	fanout    *upload.Fanout

	downloadDir string
	autoUpload  bool

	inFlight atomic.Bool
	closed   atomic.Bool
	jobs     sync.WaitGroup

	stats Stats
}

// Stats is a snapshot of pipeline activity for the status endpoint.
type Stats struct {
	mu               sync.Mutex
	StartedAt        time.Time
	VideosProcessed  int
	JobsFailed       int
	LastNotification time.Time
}

func NewOrchestrator(store *cache.Store, table *channels.Table, downloads *download.Stage,
	prober media.Prober, encoder media.Encoder, policy media.Policy, fanout *upload.Fanout,
	downloadDir string, autoUpload bool) *Orchestrator {
	return &Orchestrator{
		store:       store,
		table:       table,
		downloads:   downloads,
		prober:      prober,
		encoder:     encoder,
		policy:      policy,
		fanout:      fanout,
		downloadDir: downloadDir,
		autoUpload:  autoUpload,
		stats:       Stats{StartedAt: time.Now()},
	}
}

// Handle gates an event through dedup and the single in-flight slot. When
// the event is accepted the job runs in the background and Handle returns
// nil immediately; both ingestion paths go through this one entry point.
func (o *Orchestrator) Handle(ctx context.Context, ev feed.Event) error {
	if o.closed.Load() {
		return ErrShuttingDown
	}

	hash := ev.Hash()
	if o.store.IsProcessed(hash) {
		metrics.DuplicateEvents.Inc()
		slog.Debug("Item already processed", "item", ev.ItemID, "title", ev.Title)
		return ErrAlreadyProcessed
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		metrics.DroppedBusy.Inc()
		slog.Warn("Already processing a video, dropping event", "item", ev.ItemID, "title", ev.Title)
		return ErrBusy
	}

	o.stats.mu.Lock()
	o.stats.LastNotification = time.Now()
	o.stats.mu.Unlock()

	o.jobs.Add(1)
	go func() {
		defer o.jobs.Done()
		defer o.inFlight.Store(false)
		o.runJob(context.WithoutCancel(ctx), ev, hash)
	}()

	return nil
}

// InFlight reports whether a job is currently active.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

// Snapshot returns current pipeline statistics.
func (o *Orchestrator) Snapshot() (startedAt, lastNotification time.Time, processed, failed int) {
	o.stats.mu.Lock()
	defer o.stats.mu.Unlock()
	return o.stats.StartedAt, o.stats.LastNotification, o.stats.VideosProcessed, o.stats.JobsFailed
}

// Close stops accepting events and waits up to grace for the in-flight job.
func (o *Orchestrator) Close(grace time.Duration) {
	o.closed.Store(true)

	done := make(chan struct{})
	go func() {
		o.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		slog.Warn("Shutdown grace period elapsed, abandoning in-flight job")
	}
}

func (o *Orchestrator) runJob(ctx context.Context, ev feed.Event, hash string) {
	jobID := uuid.NewString()
	slog.Info("Starting pipeline job", "job", jobID, "item", ev.ItemID, "title", ev.Title)

	route, _ := o.table.Resolve(ev.ChannelID)
	if route.ChannelID == "" {
		slog.Error("No channels configured, aborting job", "job", jobID, "item", ev.ItemID)
		o.failJob("routing")
		return
	}

	workFile, err := o.downloadStage(ctx, jobID, ev, route)
	if err != nil {
		o.failJob("download")
		return
	}
	originalFile := workFile

	workFile, duration, err := o.durationStage(ctx, jobID, ev, workFile)
	if err != nil {
		removeFile(originalFile)
		o.failJob("duration")
		return
	}

	segments, err := o.segmentationStage(ctx, jobID, workFile, duration)
	if err != nil {
		removeFile(originalFile)
		if media.IsDerived(workFile) {
			removeFile(workFile)
		}
		o.failJob("segmentation")
		return
	}

	o.uploadStage(ctx, jobID, ev, route, segments)

	// The job reached fan-out completion: the item is processed no matter
	// how individual segments fared
	if o.store.MarkProcessed(hash) {
		if err := o.store.Flush(); err != nil {
			slog.Warn("Failed to persist dedup record", "job", jobID, "error", err)
		}
	}

	removeFile(originalFile)
	if workFile != originalFile && media.IsDerived(workFile) {
		removeFile(workFile)
	}

	o.stats.mu.Lock()
	o.stats.VideosProcessed++
	o.stats.mu.Unlock()
	metrics.JobsProcessed.Inc()

	slog.Info("Pipeline job completed", "job", jobID, "item", ev.ItemID, "segments", len(segments))
}

func (o *Orchestrator) failJob(stage string) {
	metrics.JobsFailed.WithLabelValues(stage).Inc()
	o.stats.mu.Lock()
	o.stats.JobsFailed++
	o.stats.mu.Unlock()
}

func (o *Orchestrator) downloadStage(ctx context.Context, jobID string, ev feed.Event, route channels.Channel) (string, error) {
	name := slug.Make(route.Name)
	if name == "" {
		name = "channel"
	}
	dest := filepath.Join(o.downloadDir, fmt.Sprintf("%s_%s.mp4", name, ev.ItemID))

	if err := o.downloads.Run(ctx, ev.URL, dest); err != nil {
		slog.Error("Download stage failed", "job", jobID, "item", ev.ItemID, "error", err)
		return "", err
	}

	return dest, nil
}

// durationStage probes the file, applies the duration policy, and extends
// the video when it falls below the extension threshold. It returns the
// file to segment (original or derived) and its final duration.
func (o *Orchestrator) durationStage(ctx context.Context, jobID string, ev feed.Event, workFile string) (string, float64, error) {
	duration, err := o.prober.Duration(ctx, workFile)
	if err != nil {
		slog.Error("Duration probe failed", "job", jobID, "item", ev.ItemID, "error", err)
		return "", 0, err
	}

	decision, msg := o.policy.Evaluate(duration)
	switch decision {
	case media.DecisionReject:
		slog.Error("Video rejected by duration policy", "job", jobID, "item", ev.ItemID, "reason", msg)
		return "", 0, errors.New(msg)
	case media.DecisionPass:
		slog.Info("Duration check passed", "job", jobID, "item", ev.ItemID, "duration", duration)
		return workFile, duration, nil
	}

	slog.Info("Extending video", "job", jobID, "item", ev.ItemID, "duration", duration, "target", o.policy.ExtendTarget)

	extended, err := o.encoder.Extend(ctx, workFile, o.policy.LoopDuration(duration))
	if err != nil {
		slog.Error("Video extension failed", "job", jobID, "item", ev.ItemID, "error", err)
		return "", 0, err
	}

	finalDuration, err := o.prober.Duration(ctx, extended)
	if err != nil {
		slog.Error("Duration probe of extended video failed", "job", jobID, "item", ev.ItemID, "error", err)
		removeFile(extended)
		return "", 0, err
	}

	slog.Info("Video extended", "job", jobID, "item", ev.ItemID, "duration", finalDuration)
	return extended, finalDuration, nil
}

// segmentationStage extracts every planned segment; any extraction failure
// discards segments already produced.
func (o *Orchestrator) segmentationStage(ctx context.Context, jobID, workFile string, duration float64) ([]string, error) {
	plan := o.policy.Plan(duration)
	if len(plan) == 0 {
		return nil, fmt.Errorf("no segments plannable for duration %.1fs", duration)
	}

	base := workFile[:len(workFile)-len(filepath.Ext(workFile))]

	var produced []string
	for _, seg := range plan {
		dest := fmt.Sprintf("%s_part_%d.mp4", base, seg.Index+1)
		slog.Info("Extracting segment", "job", jobID, "part", seg.Index+1, "start", seg.Start, "end", seg.End)

		if err := o.encoder.Extract(ctx, workFile, dest, seg.Start, seg.Duration()); err != nil {
			slog.Error("Segment extraction failed, discarding partial segments",
				"job", jobID, "part", seg.Index+1, "error", err)
			for _, f := range produced {
				removeFile(f)
			}
			return nil, err
		}
		produced = append(produced, dest)
	}

	return produced, nil
}

func (o *Orchestrator) uploadStage(ctx context.Context, jobID string, ev feed.Event, route channels.Channel, segments []string) {
	if !o.autoUpload {
		slog.Info("Auto-upload disabled, segments kept on disk", "job", jobID, "segments", len(segments))
		return
	}

	proxy, configured := upload.ProxyFromChannel(route)
	if configured {
		slog.Info("Using proxy for channel", "job", jobID, "channel", route.Name, "proxy", proxy.Host)
	}

	requests := make([]upload.Request, len(segments))
	for i, path := range segments {
		requests[i] = upload.Request{
			FilePath: path,
			Title:    ev.Title,
			Account:  route.DestinationAccount,
			Proxy:    proxy,
		}
	}

	results := o.fanout.Run(ctx, requests)

	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}
	slog.Info("Upload fan-out completed", "job", jobID, "segments", len(results), "uploaded", ok)
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove file", "path", path, "error", err)
	}
}
