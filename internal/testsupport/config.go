package testsupport

import (
	"path/filepath"
	"testing"

	"soundscribe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.WorkDir = filepath.Join(base, "work")
	cfg.OutputDir = filepath.Join(base, "output")
	cfg.LogDir = filepath.Join(base, "logs")
	cfg.DataDir = filepath.Join(base, "data")
	cfg.PromptsPath = filepath.Join(base, "prompts.toml")
	cfg.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithAPIKey sets the generation service API key on the test config.
func WithAPIKey(key string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.APIKey = key
	}
}

// WithSegmentSeconds overrides the conversion window length.
func WithSegmentSeconds(seconds float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.SegmentSeconds = seconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.WorkDir)
}
