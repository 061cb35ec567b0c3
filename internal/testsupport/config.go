package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"pixelpath/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The watch directory exists, files are eligible immediately, and scans run
// every second.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WatchDir = filepath.Join(base, "inbox")
	cfgVal.Paths.ImageDest = filepath.Join(base, "photos")
	cfgVal.Paths.VideoDest = filepath.Join(base, "videos")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Ingest.WatchInterval = 1
	cfgVal.Ingest.MinFileAge = 0
	cfgVal.Ingest.ShutdownGrace = 5
	cfgVal.Workflow.Images.EnableTagging = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	if err := os.MkdirAll(cfgVal.Paths.WatchDir, 0o755); err != nil {
		t.Fatalf("mkdir watch dir: %v", err)
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSimulation toggles simulate_processing.
func WithSimulation(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.SimulateProcessing = enabled
	}
}

// WithConcurrency sets max_concurrent.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.MaxConcurrent = n
	}
}

// WithShortSocket moves the state directory under /tmp so the IPC socket path
// stays below the unix socket length limit.
func WithShortSocket() ConfigOption {
	return func(b *configBuilder) {
		dir, err := os.MkdirTemp("", "pp")
		if err != nil {
			b.t.Fatalf("mkdir short state dir: %v", err)
		}
		b.t.Cleanup(func() { _ = os.RemoveAll(dir) })
		b.cfg.Paths.StateDir = dir
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WatchDir)
}
