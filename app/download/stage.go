package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Provider fetches a remote item to dest. Concrete download engines are
// external collaborators; the stage only depends on this interface.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, url, dest string) error
}

// Stage runs the primary provider a fixed number of attempts with linear
// backoff, then the fallback provider exactly once. On any failure partial
// files are removed; success requires an existing, non-empty file at dest.
type Stage struct {
	primary  Provider
	fallback Provider

	// Attempts and Backoff shape the primary provider's retry schedule.
	Attempts int
	Backoff  time.Duration

	wait func(ctx context.Context, d time.Duration) error
}

func NewStage(primary, fallback Provider) *Stage {
	return &Stage{
		primary:  primary,
		fallback: fallback,
		Attempts: 2,
		Backoff:  5 * time.Second,
		wait:     waitCtx,
	}
}

// waitCtx sleeps for d unless the context is canceled first.
func waitCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Stage) Run(ctx context.Context, url, dest string) error {
	for attempt := 1; attempt <= s.Attempts; attempt++ {
		err := s.try(ctx, s.primary, url, dest)
		if err == nil {
			slog.Info("Download completed", "provider", s.primary.Name(), "attempt", attempt, "dest", dest)
			return nil
		}

		slog.Warn("Download attempt failed",
			"provider", s.primary.Name(), "attempt", attempt, "max_attempts", s.Attempts, "error", err)

		if attempt < s.Attempts {
			delay := s.Backoff * time.Duration(attempt)
			slog.Info("Waiting before next download attempt", "delay", delay.String())
			if err := s.wait(ctx, delay); err != nil {
				return err
			}
		}
	}

	if s.fallback == nil {
		return fmt.Errorf("all %d download attempts failed", s.Attempts)
	}

	slog.Warn("Primary download provider exhausted, trying fallback", "provider", s.fallback.Name())
	if err := s.try(ctx, s.fallback, url, dest); err != nil {
		return fmt.Errorf("fallback download failed: %w", err)
	}

	slog.Info("Download completed", "provider", s.fallback.Name(), "dest", dest)
	return nil
}

// try runs one provider attempt, leaving no file behind on failure.
func (s *Stage) try(ctx context.Context, p Provider, url, dest string) error {
	if err := p.Fetch(ctx, url, dest); err != nil {
		removePartial(dest)
		return err
	}

	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("downloaded file missing: %w", err)
	}
	if info.Size() == 0 {
		removePartial(dest)
		return fmt.Errorf("downloaded file is empty")
	}

	return nil
}

func removePartial(dest string) {
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove partial download", "dest", dest, "error", err)
	}
}
