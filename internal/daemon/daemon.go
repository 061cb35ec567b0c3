package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"pixelpath/internal/config"
	"pixelpath/internal/ingest"
	"pixelpath/internal/ledger"
	"pixelpath/internal/logging"
	"pixelpath/internal/notifications"
	"pixelpath/internal/services"
	"pixelpath/internal/trigger"
)

const (
	recordTimeout = 5 * time.Second
	notifyTimeout = 15 * time.Second
	deviceSettle  = 5 * time.Second
)

// Daemon owns the orchestrator for one run and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	ledger    *ledger.Store
	processor ingest.Processor
	opts      []ingest.Option
	alerts    notifications.Service
	pending   sync.WaitGroup

	lockPath string
	lock     *flock.Flock

	mu       sync.RWMutex
	running  bool
	orch     *ingest.Orchestrator
	cancel   context.CancelFunc
	done     chan struct{}
	runErr   error
	notifier *trigger.FSNotifier
	device   *trigger.DeviceMonitor
	retry    *trigger.RetrySchedule
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Ingest        ingest.Snapshot
	Ledger        map[string]int
	WatchDir      string
	WatchMode     string
	DeviceTrigger bool
	RetrySchedule string
	LedgerPath    string
	LockFilePath  string
}

// ForgetResult reports how many records a forget removed.
type ForgetResult struct {
	Path    string
	Tracker int
	Ledger  int64
}

// New constructs a daemon. processor may be nil only when simulate_processing
// is enabled.
func New(cfg *config.Config, store *ledger.Store, processor ingest.Processor, logger *slog.Logger, opts ...ingest.Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and ledger store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		ledger:    store,
		processor: processor,
		opts:      opts,
		alerts:    notifications.NewService(cfg),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, builds a fresh orchestrator, and begins
// ingesting in the background.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another pixelpath daemon instance is already running")
	}

	opts := append([]ingest.Option{ingest.WithCompletionHook(d.record)}, d.opts...)
	orch, err := ingest.NewOrchestrator(d.cfg, d.processor, d.logger, opts...)
	if err != nil {
		_ = d.lock.Unlock()
		return err
	}
	if d.cfg.Ingest.RememberCompleted {
		d.seed(ctx, orch.Tracker())
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.orch = orch
	d.cancel = cancel
	d.done = done
	d.runErr = nil
	d.running = true

	go func() {
		defer close(done)
		err := orch.Run(runCtx)
		d.mu.Lock()
		d.runErr = err
		d.mu.Unlock()
	}()

	d.startTriggers(runCtx, orch)

	d.logger.Info("pixelpath daemon started",
		logging.String("lock", d.lockPath),
		logging.String("watch_dir", d.cfg.Paths.WatchDir),
		logging.Event("daemon_started"),
	)
	if d.cfg.Notifications.NotifyLifecycle {
		d.publishAsync(notifications.EventDaemonStarted, notifications.Payload{"watchDir": d.cfg.Paths.WatchDir})
	}
	return nil
}

func (d *Daemon) seed(ctx context.Context, tracker *ingest.Tracker) {
	keys, err := d.ledger.Completed(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "ledger seed failed; previously completed files may be processed again", "ledger_seed_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "duplicate processing of files still in the watch directory"),
		)
		return
	}
	seeded := tracker.Seed(keys, ingest.OutcomeSucceeded)
	d.logger.Info("tracker seeded from ledger",
		logging.Int("seeded", seeded),
		logging.Event("tracker_seeded"),
	)
}

// startTriggers wires the optional scan nudges. Trigger failures are logged
// and polling continues.
func (d *Daemon) startTriggers(ctx context.Context, orch *ingest.Orchestrator) {
	scanner := orch.Scanner()

	if d.cfg.Ingest.WatchMode == config.WatchModeNotify {
		n := trigger.NewFSNotifier(d.cfg.Paths.WatchDir, d.cfg.Ingest.Recursive, 0, scanner, d.logger)
		if err := n.Start(ctx); err != nil {
			logging.WarnWithContext(d.logger, "filesystem notifications unavailable; polling only", "fsnotify_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_watches or use watch_mode = \"poll\""),
				logging.String(logging.FieldImpact, "new files wait for the next poll"),
			)
		} else {
			d.notifier = n
		}
	}

	if d.cfg.Ingest.DeviceTrigger {
		d.device = trigger.NewDeviceMonitor(scanner, deviceSettle, d.logger)
		_ = d.device.Start(ctx)
	}

	if d.cfg.Ingest.RetryPolicy == config.RetrySchedule {
		schedule, err := trigger.NewRetrySchedule(d.cfg.Ingest.RetrySchedule, orch.Tracker(), scanner, d.logger)
		if err == nil {
			err = schedule.Start()
		}
		if err != nil {
			logging.WarnWithContext(d.logger, "retry schedule not started", "retry_schedule_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "failed items stay failed until `pixelpath retry`"),
			)
		} else {
			d.retry = schedule
		}
	}
}

func (d *Daemon) stopTriggers() {
	if d.notifier != nil {
		d.notifier.Stop()
		d.notifier = nil
	}
	d.device.Stop()
	d.device = nil
	if d.retry != nil {
		d.retry.Stop()
		d.retry = nil
	}
}

// Stop cancels ingestion, waits for in-flight items, and releases the lock.
// It returns ingest.ErrShutdownTimeout when the grace period was exceeded.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	done := d.done
	if cancel == nil {
		// Another Stop is already shutting this run down.
		d.mu.Unlock()
		<-done
		return nil
	}
	d.stopTriggers()
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	<-done

	d.mu.Lock()
	d.running = false
	runErr := d.runErr
	orch := d.orch
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.Event("lock_release_failed"),
		)
	}
	if runErr != nil {
		logging.ErrorWithContext(d.logger, "ingest stopped with error", "daemon_stop_error",
			logging.Error(runErr),
			logging.String(logging.FieldImpact, "abandoned items are recorded as failed in the ledger"),
		)
	}
	d.mu.Unlock()
	d.logger.Info("pixelpath daemon stopped",
		logging.Event("daemon_stopped"),
	)
	if d.cfg.Notifications.NotifyLifecycle && orch != nil {
		stats := orch.Pool().Stats()
		d.publish(notifications.EventDaemonStopped, notifications.Payload{
			"processed": stats.Processed,
			"failed":    stats.Failed,
		})
	}
	d.pending.Wait()
	return runErr
}

// Done is closed when the current run ends. It returns nil before Start.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.done
}

// Close stops the daemon and closes the ledger.
func (d *Daemon) Close() error {
	stopErr := d.Stop()
	if d.ledger != nil {
		if err := d.ledger.Close(); err != nil {
			return err
		}
	}
	return stopErr
}

// Running reports whether ingestion is active.
func (d *Daemon) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

func (d *Daemon) current() (*ingest.Orchestrator, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.orch == nil {
		return nil, errors.New("daemon has not been started")
	}
	return d.orch, nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.RLock()
	status := Status{
		Running:       d.running,
		WatchDir:      d.cfg.Paths.WatchDir,
		WatchMode:     d.cfg.Ingest.WatchMode,
		DeviceTrigger: d.device.Running(),
		LedgerPath:    d.ledger.Path(),
		LockFilePath:  d.lockPath,
	}
	if d.notifier == nil && status.WatchMode == config.WatchModeNotify {
		status.WatchMode = config.WatchModePoll
	}
	if d.retry != nil {
		status.RetrySchedule = d.cfg.Ingest.RetrySchedule
	}
	orch := d.orch
	d.mu.RUnlock()

	if orch != nil {
		status.Ingest = orch.Status()
	}
	if stats, err := d.ledger.Stats(ctx); err == nil {
		status.Ledger = stats
	} else {
		d.logger.Debug("ledger stats unavailable", logging.Error(err))
	}
	return status
}

// ScanNow requests an immediate scan.
func (d *Daemon) ScanNow() error {
	if !d.Running() {
		return errors.New("daemon is not running")
	}
	orch, err := d.current()
	if err != nil {
		return err
	}
	orch.Scanner().Trigger()
	return nil
}

// Preview lists files the next scan would enqueue.
func (d *Daemon) Preview(ctx context.Context) ([]ingest.Candidate, error) {
	orch, err := d.current()
	if err != nil {
		return nil, err
	}
	return orch.Scanner().Preview(ctx)
}

// History returns ledger entries, newest first.
func (d *Daemon) History(ctx context.Context, filter ledger.Filter) ([]ledger.Entry, error) {
	return d.ledger.List(ctx, filter)
}

// Forget removes every record of path from the tracker and the ledger so the
// file is treated as new on the next scan.
func (d *Daemon) Forget(ctx context.Context, path string) (ForgetResult, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ForgetResult{}, services.Wrap(services.ErrValidation, "daemon", "forget", "path is required", nil)
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return ForgetResult{}, fmt.Errorf("resolve path: %w", err)
	}
	result := ForgetResult{Path: abs}
	orch, _ := d.current()
	if orch != nil {
		result.Tracker = orch.Tracker().Forget(abs)
	}
	removed, err := d.ledger.Forget(ctx, abs)
	if err != nil {
		return result, err
	}
	result.Ledger = removed
	d.logger.Info("path forgotten",
		logging.Path(abs),
		logging.Int("tracker_entries", result.Tracker),
		logging.Int64("ledger_entries", result.Ledger),
		logging.Event("path_forgotten"),
	)
	if result.Tracker > 0 && d.Running() {
		orch.Scanner().Trigger()
	}
	return result, nil
}

// RetryFailed makes every failed item eligible again and requests a scan.
func (d *Daemon) RetryFailed() (int, error) {
	orch, err := d.current()
	if err != nil {
		return 0, err
	}
	released := orch.Tracker().ReleaseFailed()
	if released > 0 && d.Running() {
		orch.Scanner().Trigger()
	}
	if released > 0 && d.cfg.Notifications.NotifyFailures {
		d.publishAsync(notifications.EventRetryReleased, notifications.Payload{"count": released})
	}
	d.logger.Info("failed items released",
		logging.Int("released", released),
		logging.Event("retry_requested"),
	)
	return released, nil
}

// TestNotification publishes a test event. It reports false without error
// when no ntfy topic is configured.
func (d *Daemon) TestNotification(ctx context.Context) (bool, error) {
	if !d.alerts.Enabled() {
		return false, nil
	}
	if err := d.alerts.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, services.Wrap(services.ErrExternalTool, "daemon", "test notification", "ntfy delivery failed", err)
	}
	return true, nil
}

// publishAsync sends an event in the background. Stop waits for every
// pending delivery.
func (d *Daemon) publishAsync(event notifications.Event, payload notifications.Payload) {
	if !d.alerts.Enabled() {
		return
	}
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		d.publish(event, payload)
	}()
}

// publish sends an event and logs delivery failures.
func (d *Daemon) publish(event notifications.Event, payload notifications.Payload) {
	if !d.alerts.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := d.alerts.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(d.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "event not delivered"),
		)
	}
}

// LockPath returns the single-instance lock file.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
