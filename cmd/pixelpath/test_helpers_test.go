package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pixelpath/internal/config"
	"pixelpath/internal/daemon"
	"pixelpath/internal/ipc"
	"pixelpath/internal/logging"
	"pixelpath/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	stopped    *atomic.Bool
}

// setupCLITestEnv starts a simulating daemon behind an IPC socket. Scans run
// once at start and then only on request.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithShortSocket(), testsupport.WithSimulation(true))
	cfg.Ingest.WatchInterval = 3600
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenLedger(t, cfg)
	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, nil, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var stopped atomic.Bool
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, func() { stopped.Store(true) }, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Stop()
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		server:     srv,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
		stopped:    &stopped,
	}
}

func (e *cliTestEnv) start(t *testing.T) {
	t.Helper()
	if err := e.daemon.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
watch_dir = %q
image_dest = %q
video_dest = %q
state_dir = %q
log_dir = %q

[ingest]
watch_interval = %d
min_file_age = 0
simulate_processing = true
shutdown_grace = %d

[workflow.images]
enable_tagging = false
`,
		cfg.Paths.WatchDir,
		cfg.Paths.ImageDest,
		cfg.Paths.VideoDest,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Ingest.WatchInterval,
		cfg.Ingest.ShutdownGrace,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func waitForOutcome(t *testing.T, d *daemon.Daemon, outcome string, want int) {
	t.Helper()
	waitFor(t, 5*time.Second, func() bool {
		status := d.Status(context.Background())
		return status.Ledger[outcome] >= want
	})
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
