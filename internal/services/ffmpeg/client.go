package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

var commandContext = exec.CommandContext

// ProgressUpdate captures fractional progress for one segment conversion.
type ProgressUpdate struct {
	Percent        float64
	OutTimeSeconds float64
}

// SegmentRequest describes one time-bounded conversion job.
type SegmentRequest struct {
	InputPath       string
	OutputPath      string
	StartSeconds    float64
	DurationSeconds float64
	BitrateKbps     int
	SampleRate      int
}

// Engine defines the codec engine behaviour the pipeline depends on. The
// engine is stateful and single-instance: callers must serialize conversion
// jobs through the pipeline's conversion gate.
type Engine interface {
	Load(ctx context.Context) error
	Probe(ctx context.Context, path string) (float64, error)
	ConvertSegment(ctx context.Context, req SegmentRequest, progress func(ProgressUpdate)) (string, error)
	Concatenate(ctx context.Context, parts []string, outputPath string) (string, error)
}

// Option configures the CLI engine.
type Option func(*CLI)

// WithBinary overrides the default ffmpeg binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithProbeBinary overrides the default ffprobe binary name.
func WithProbeBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.probeBinary = binary
		}
	}
}

// CLI wraps the ffmpeg and ffprobe command-line tools.
type CLI struct {
	binary      string
	probeBinary string

	loadOnce sync.Once
	loadErr  error
}

// NewCLI constructs a CLI engine using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg", probeBinary: "ffprobe"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Load verifies the ffmpeg runtime once. Subsequent calls return the cached
// result, so the pipeline can call it lazily before the first conversion.
func (c *CLI) Load(ctx context.Context) error {
	c.loadOnce.Do(func() {
		cmd := commandContext(ctx, c.binary, "-version")
		if out, err := cmd.CombinedOutput(); err != nil {
			c.loadErr = fmt.Errorf("load ffmpeg: %w: %s", err, firstLine(out))
		}
	})
	return c.loadErr
}

// Probe returns the media duration in seconds.
func (c *CLI) Probe(ctx context.Context, path string) (float64, error) {
	if path == "" {
		return 0, errors.New("input path required")
	}
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	out, err := commandContext(ctx, c.probeBinary, args...).Output()
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("probe %s: parse duration %q: %w", path, strings.TrimSpace(string(out)), err)
	}
	return duration, nil
}

// ConvertSegment converts one time window of the input into a compressed audio
// blob, streaming fractional progress as ffmpeg reports it.
func (c *CLI) ConvertSegment(ctx context.Context, req SegmentRequest, progress func(ProgressUpdate)) (string, error) {
	if req.InputPath == "" {
		return "", errors.New("input path required")
	}
	if req.OutputPath == "" {
		return "", errors.New("output path required")
	}
	if req.DurationSeconds <= 0 {
		return "", errors.New("segment duration must be positive")
	}

	args := []string{
		"-hide_banner", "-nostats", "-y",
		"-ss", formatSeconds(req.StartSeconds),
		"-t", formatSeconds(req.DurationSeconds),
		"-i", req.InputPath,
		"-vn",
		"-acodec", "libopus",
		"-b:a", fmt.Sprintf("%dk", req.BitrateKbps),
		"-ar", strconv.Itoa(req.SampleRate),
		"-progress", "pipe:1",
		req.OutputPath,
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start ffmpeg: %w", err)
	}

	if err := parseProgress(stdout, req.DurationSeconds, progress); err != nil {
		_ = cmd.Wait()
		return "", fmt.Errorf("read ffmpeg progress: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("ffmpeg segment conversion failed: %w", err)
	}
	return req.OutputPath, nil
}

// Concatenate joins converted segment blobs into one output via the concat
// demuxer, copying streams without re-encoding.
func (c *CLI) Concatenate(ctx context.Context, parts []string, outputPath string) (string, error) {
	if len(parts) == 0 {
		return "", errors.New("no segments to concatenate")
	}
	if outputPath == "" {
		return "", errors.New("output path required")
	}

	listPath := outputPath + ".concat.txt"
	var list strings.Builder
	for _, part := range parts {
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(part, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-hide_banner", "-nostats", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg concatenate failed: %w: %s", err, firstLine(out))
	}
	return outputPath, nil
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}

func firstLine(out []byte) string {
	text := strings.TrimSpace(string(out))
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

var _ Engine = (*CLI)(nil)
