package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pixelpath/internal/config"
	"pixelpath/internal/daemon"
	"pixelpath/internal/ipc"
	"pixelpath/internal/ledger"
	"pixelpath/internal/logging"
	"pixelpath/internal/preflight"
	"pixelpath/internal/processor"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SocketPath overrides the IPC socket under state_dir.
	SocketPath string
}

// Run starts the pixelpath daemon and blocks until a signal or an IPC stop
// request arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("pixelpath-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update pixelpath.log link: %v\n", err)
	}
	maintainLogs(logger, cfg, logPath)
	logConfigSnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	if err := runPreflight(signalCtx, logger, cfg); err != nil {
		return err
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		logger.Error("open ledger", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, processor.NewDispatcher(cfg, logger), logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	runCtx, stop := context.WithCancel(signalCtx)
	defer stop()

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(runCtx, socketPath, d, stop, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(runCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and that no other pixelpath daemon holds the lock"),
		)
		return err
	}

	select {
	case <-runCtx.Done():
	case <-d.Done():
	}
	logger.Info("pixelpath daemon shutting down",
		logging.Event("daemon_shutdown"),
	)
	if err := d.Stop(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}

func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.Bool("required", r.Required),
			logging.String(logging.FieldImpact, "affected steps fail until the check passes"),
		)
	}
	if blocking := preflight.Blocking(results); len(blocking) > 0 {
		return fmt.Errorf("preflight: %s: %s", blocking[0].Name, blocking[0].Detail)
	}
	return nil
}

// maintainLogs compresses older run logs and prunes expired ones.
func maintainLogs(logger *slog.Logger, cfg *config.Config, current string) {
	logging.ArchiveOldLogs(logger, cfg.Logging.ArchiveAfterDays, cfg.Logging.ArchiveCodec,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "pixelpath-*.log", Exclude: []string{current}},
	)
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "pixelpath-*.log", Exclude: []string{current}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "pixelpath-*.log.zst"},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "pixelpath-*.log.gz"},
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "pixelpath.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.Event("config_snapshot"),
		logging.String("watch_dir", cfg.Paths.WatchDir),
		logging.String("image_dest", cfg.Paths.ImageDest),
		logging.String("video_dest", cfg.Paths.VideoDest),
		logging.Int("max_concurrent", cfg.Ingest.MaxConcurrent),
		logging.Bool("recursive", cfg.Ingest.Recursive),
		logging.String("watch_mode", cfg.Ingest.WatchMode),
		logging.Bool("simulate_processing", cfg.Ingest.SimulateProcessing),
		logging.String("retry_policy", cfg.Ingest.RetryPolicy),
		logging.Bool("tagging_configured", cfg.Analysis.TaggingURL != ""),
		logging.Bool("ocr_configured", cfg.Analysis.OCRURL != ""),
		logging.Bool("description_configured", cfg.Analysis.DescriptionURL != ""),
		logging.Bool("transcription_configured", cfg.Analysis.TranscriptionURL != ""),
		logging.Bool("api_key_present", strings.TrimSpace(cfg.Analysis.APIKey) != ""),
	)
}
