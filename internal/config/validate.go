package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration values that would otherwise fail deep inside a
// batch run.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.WorkDir) == "" {
		problems = append(problems, "paths.work_dir must not be empty")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		problems = append(problems, "paths.output_dir must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		problems = append(problems, "paths.data_dir must not be empty")
	}
	if c.BitrateKbps <= 0 {
		problems = append(problems, "audio.bitrate_kbps must be positive")
	}
	if c.SampleRate <= 0 {
		problems = append(problems, "audio.sample_rate must be positive")
	}
	if c.SegmentSeconds <= 0 {
		problems = append(problems, "audio.segment_seconds must be positive")
	}
	if c.Generation.TimeoutSeconds < 0 {
		problems = append(problems, "generation.timeout_seconds must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported", c.Logging.Format))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
