package upload

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
)

// CommandUploader shells out to a destination platform upload binary:
// <bin> --session <account> --video <file> --title <title> [--proxy <url>].
type CommandUploader struct {
	bin     string
	timeout time.Duration
}

var _ Uploader = (*CommandUploader)(nil)

func NewCommandUploader(bin string) *CommandUploader {
	return &CommandUploader{
		bin:     bin,
		timeout: 10 * time.Minute,
	}
}

func (u *CommandUploader) Upload(ctx context.Context, req Request) error {
	runCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	args := []string{
		"--session", req.Account,
		"--video", req.FilePath,
		"--title", req.Title,
	}
	if req.Proxy.Configured() {
		args = append(args, "--proxy", req.Proxy.URL())
	}

	cmd := exec.CommandContext(runCtx, u.bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", filepath.Base(u.bin), err, tail(out))
	}

	return nil
}

func tail(out []byte) string {
	const max = 400
	if len(out) <= max {
		return string(out)
	}
	return "..." + string(out[len(out)-max:])
}
