package media

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Prober reports the duration of a media file in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Encoder performs the two media transformations the pipeline needs:
// extending a short video by looping its own beginning, and extracting one
// time-bounded segment.
type Encoder interface {
	Extend(ctx context.Context, src string, loopDuration float64) (string, error)
	Extract(ctx context.Context, src, dest string, start, duration float64) error
}

// ExtendedSuffix marks derived files produced by Extend so cleanup can
// target them without touching the original download.
const ExtendedSuffix = "_extended"

// IsDerived reports whether path names an extension artifact.
func IsDerived(path string) bool {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.HasSuffix(base, ExtendedSuffix)
}

// FFmpeg implements Prober and Encoder by shelling out to ffprobe/ffmpeg.
type FFmpeg struct {
	ffmpegBin  string
	ffprobeBin string
	timeout    time.Duration
}

var (
	_ Prober  = (*FFmpeg)(nil)
	_ Encoder = (*FFmpeg)(nil)
)

func NewFFmpeg(ffmpegBin, ffprobeBin string) *FFmpeg {
	return &FFmpeg{
		ffmpegBin:  ffmpegBin,
		ffprobeBin: ffprobeBin,
		timeout:    5 * time.Minute,
	}
}

func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, f.ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output %q: %w", strings.TrimSpace(string(out)), err)
	}

	return duration, nil
}

// Extend builds a stream equal to the original followed by its own first
// loopDuration seconds, re-encoded once. The result is written next to the
// source with the ExtendedSuffix naming convention.
func (f *FFmpeg) Extend(ctx context.Context, src string, loopDuration float64) (string, error) {
	ext := filepath.Ext(src)
	dest := strings.TrimSuffix(src, ext) + ExtendedSuffix + ".mp4"

	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, f.ffmpegBin,
		"-i", src,
		"-t", formatSeconds(loopDuration), "-i", src,
		"-filter_complex", "[0:v][0:a][1:v][1:a]concat=n=2:v=1:a=1[v][a]",
		"-map", "[v]", "-map", "[a]",
		"-c:v", "libx264", "-preset", "ultrafast", "-crf", "28", "-tune", "fastdecode",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-y",
		dest,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg extend failed: %w: %s", err, lastLine(out))
	}

	return dest, nil
}

// Extract copies one segment without re-encoding; stream copy is a speed
// optimization, so a copy failure falls back to a single re-encode attempt.
func (f *FFmpeg) Extract(ctx context.Context, src, dest string, start, duration float64) error {
	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	copyCmd := exec.CommandContext(runCtx, f.ffmpegBin,
		"-i", src,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"-y",
		dest,
	)
	if _, err := copyCmd.CombinedOutput(); err == nil {
		return nil
	}

	encodeCmd := exec.CommandContext(runCtx, f.ffmpegBin,
		"-i", src,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-c:v", "libx264", "-preset", "ultrafast", "-crf", "28",
		"-c:a", "aac",
		"-y",
		dest,
	)
	if out, err := encodeCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract failed: %w: %s", err, lastLine(out))
	}

	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
