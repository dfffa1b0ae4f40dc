package testsupport

import (
	"path/filepath"
	"testing"

	"convoy/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Queue.PollInterval = 1
	cfg.Queue.ErrorRetryInterval = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithMaxConcurrency overrides the dispatcher concurrency bound on the test config.
func WithMaxConcurrency(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxConcurrency = n
	}
}

// WithItemTimeout overrides the per-item pipeline timeout (seconds) on the test config.
func WithItemTimeout(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.ItemTimeout = seconds
	}
}
