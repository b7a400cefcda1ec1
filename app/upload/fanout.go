package upload

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/mkorzh/tube-relay/app/metrics"
)

// Request describes one segment upload.
type Request struct {
	FilePath string
	Title    string
	Account  string
	Proxy    ProxyConfig
}

// Uploader performs exactly one upload attempt. The concrete destination
// platform client is an external collaborator.
type Uploader interface {
	Upload(ctx context.Context, req Request) error
}

// Result is the terminal outcome of one segment worker.
type Result struct {
	FilePath string
	Err      error
}

// smallFileWarnBytes flags segments below the destination platform's
// practical minimum before wasting an upload attempt on them.
const smallFileWarnBytes = 100_000

// Fanout uploads every segment of a job concurrently, one worker per
// segment, and waits for all workers before returning. Each worker makes a
// single upload attempt: success deletes the segment file, failure retains
// it on disk for manual recovery.
type Fanout struct {
	uploader Uploader
}

func NewFanout(uploader Uploader) *Fanout {
	return &Fanout{uploader: uploader}
}

func (f *Fanout) Run(ctx context.Context, requests []Request) []Result {
	results := make([]Result, len(requests))

	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(worker int, req Request) {
			defer wg.Done()
			results[worker] = Result{FilePath: req.FilePath, Err: f.uploadOne(ctx, worker, req)}
		}(i, req)
	}
	wg.Wait()

	return results
}

func (f *Fanout) uploadOne(ctx context.Context, worker int, req Request) error {
	info, err := os.Stat(req.FilePath)
	if err != nil {
		slog.Error("Segment file missing, skipping upload", "worker", worker, "file", req.FilePath)
		metrics.SegmentUploads.WithLabelValues("missing").Inc()
		return err
	}
	if info.Size() == 0 {
		slog.Error("Segment file is empty, skipping upload", "worker", worker, "file", req.FilePath)
		metrics.SegmentUploads.WithLabelValues("missing").Inc()
		return os.ErrInvalid
	}
	if info.Size() < smallFileWarnBytes {
		slog.Warn("Segment file suspiciously small", "worker", worker, "file", req.FilePath, "bytes", info.Size())
	}

	if req.Proxy.Configured() {
		slog.Info("Uploading segment through proxy",
			"worker", worker, "account", req.Account, "proxy", req.Proxy.Host)
	} else {
		slog.Info("Uploading segment", "worker", worker, "account", req.Account)
	}

	if err := f.uploader.Upload(ctx, req); err != nil {
		// No retry at this layer: the file is kept for manual recovery
		slog.Error("Segment upload failed, retaining file",
			"worker", worker, "account", req.Account, "file", req.FilePath, "error", err)
		metrics.SegmentUploads.WithLabelValues("failed").Inc()
		return err
	}

	metrics.SegmentUploads.WithLabelValues("ok").Inc()
	slog.Info("Segment uploaded", "worker", worker, "account", req.Account, "file", req.FilePath)

	if err := os.Remove(req.FilePath); err != nil {
		slog.Warn("Failed to clean up uploaded segment", "worker", worker, "file", req.FilePath, "error", err)
	}

	return nil
}
