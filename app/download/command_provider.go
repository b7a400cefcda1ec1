package download

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// CommandProvider shells out to a downloader binary in the yt-dlp argument
// convention: <bin> -f <format> -o <dest> --socket-timeout <s> <url>.
type CommandProvider struct {
	bin     string
	format  string
	timeout time.Duration
}

var _ Provider = (*CommandProvider)(nil)

func NewCommandProvider(bin string) *CommandProvider {
	return &CommandProvider{
		bin:     bin,
		format:  "best[ext=mp4]/best[ext=webm]/best",
		timeout: 10 * time.Minute,
	}
}

func (p *CommandProvider) Name() string {
	return filepath.Base(p.bin)
}

func (p *CommandProvider) Fetch(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, p.bin,
		"-f", p.format,
		"-o", dest,
		"--socket-timeout", "30",
		"--no-playlist",
		url,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", p.Name(), err, tail(out))
	}

	return nil
}

// tail keeps error output readable in a single log line.
func tail(out []byte) string {
	const max = 400
	if len(out) <= max {
		return string(out)
	}
	return "..." + string(out[len(out)-max:])
}
