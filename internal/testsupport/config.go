package testsupport

import (
	"path/filepath"
	"testing"

	"snapsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Stability timings collapse to zero so cycles run instantly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WatchRoot = filepath.Join(base, "import")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Immich.BaseURL = "http://127.0.0.1:0"
	cfgVal.Stability.MinFileAge = 0
	cfgVal.Stability.MinArchiveAge = 0
	cfgVal.Stability.RecheckDelay = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBaseURL points the test config at a fake store endpoint.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Immich.BaseURL = url
	}
}

// WithDeleteAfterImport toggles the deletion policy on the test config.
func WithDeleteAfterImport(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.DeleteAfterImport = enabled
	}
}

// WithStability sets the stability ages in seconds on the test config.
func WithStability(fileAge, archiveAge, recheck int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stability.MinFileAge = fileAge
		b.cfg.Stability.MinArchiveAge = archiveAge
		b.cfg.Stability.RecheckDelay = recheck
	}
}
