package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pixelpath/internal/config"
	"pixelpath/internal/logging"
	"pixelpath/internal/services"
)

// ErrShutdownTimeout is returned by Run when in-flight items did not finish
// within the shutdown grace period.
var ErrShutdownTimeout = errors.New("shutdown grace period exceeded")

// Orchestrator wires the tracker, queue, scanner, and pool and owns the
// shutdown sequence.
type Orchestrator struct {
	tracker *Tracker
	queue   *Queue
	scanner *Scanner
	pool    *Pool
	logger  *slog.Logger
	grace   time.Duration
	started time.Time

	mu      sync.RWMutex
	running bool
	lastErr error
	last    *Completion
}

// Snapshot summarizes orchestrator state for status reporting.
type Snapshot struct {
	Running    bool
	Started    time.Time
	QueueDepth int
	InFlight   int
	Lingering  int
	Workers    int
	Claimed    int
	Done       int
	Outcomes   map[Outcome]int
	Processed  int64
	Failed     int64
	LastScan   ScanReport
	ScanCycles int
	LastError  string
	LastItem   *Completion
}

// NewOrchestrator builds an orchestrator from the ingest settings of cfg.
func NewOrchestrator(cfg *config.Config, processor Processor, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "configuration is required", nil)
	}
	if cfg.Ingest.MaxConcurrent < 1 {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init",
			fmt.Sprintf("max_concurrent must be at least 1 (got %d)", cfg.Ingest.MaxConcurrent), nil)
	}
	if processor == nil && !cfg.Ingest.SimulateProcessing {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "processor is required unless simulating", nil)
	}
	if cfg.Paths.WatchDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "paths.watch_dir is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	o := &Orchestrator{
		tracker: NewTracker(),
		queue:   NewQueue(),
		logger:  logging.NewComponentLogger(logger, "orchestrator"),
		grace:   cfg.ShutdownGrace(),
	}

	excludes := append([]string(nil), cfg.Ingest.ExcludeDirs...)
	excludes = append(excludes, NestedDirs(cfg.Paths.WatchDir, cfg.Paths.ImageDest, cfg.Paths.VideoDest)...)
	o.scanner = NewScanner(ScannerConfig{
		WatchDir:           cfg.Paths.WatchDir,
		Recursive:          cfg.Ingest.Recursive,
		Interval:           cfg.WatchInterval(),
		MinFileAge:         cfg.MinFileAge(),
		TrackModifications: cfg.Ingest.TrackModifications,
		ExcludeDirs:        excludes,
		Classifier:         NewClassifier(cfg.Ingest.ImageExtensions, cfg.Ingest.VideoExtensions),
	}, o.tracker, o.queue, logger, opts...)

	poolOpts := append([]Option{WithCompletionHook(o.recordCompletion)}, opts...)
	o.pool = NewPool(PoolConfig{
		Workers:        cfg.Ingest.MaxConcurrent,
		Simulate:       cfg.Ingest.SimulateProcessing,
		ProcessTimeout: cfg.ProcessTimeout(),
	}, o.tracker, o.queue, processor, logger, poolOpts...)

	return o, nil
}

// Run processes files until ctx is cancelled, then drains pending work and
// waits for in-flight items. An orchestrator runs at most once.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("orchestrator already running")
	}
	if o.queue.Closed() {
		o.mu.Unlock()
		return errors.New("orchestrator already stopped")
	}
	o.running = true
	o.started = time.Now()
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	// Workers only stop through queue close so in-flight items survive ctx
	// cancellation; poolCtx is cancelled when the grace period runs out.
	poolCtx, cancelPool := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelPool()
	poolDone := make(chan struct{})
	var timedOut bool

	o.logger.Info("ingest started",
		logging.Int("workers", o.pool.Stats().Workers),
		logging.Event("ingest_started"),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.scanner.Run(gctx)
	})
	g.Go(func() error {
		defer close(poolDone)
		return o.pool.Run(poolCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		o.drain()
		if o.grace <= 0 {
			return nil
		}
		timer := time.NewTimer(o.grace)
		defer timer.Stop()
		select {
		case <-poolDone:
		case <-timer.C:
			timedOut = true
			logging.WarnWithContext(o.logger, "shutdown grace exceeded; abandoning in-flight items", "shutdown_timeout",
				logging.Duration("grace", o.grace),
				logging.Int("in_flight", o.pool.Stats().InFlight),
				logging.String(logging.FieldImpact, "abandoned items are recorded as failed"),
			)
			cancelPool()
		}
		return nil
	})

	err := g.Wait()
	if timedOut {
		return ErrShutdownTimeout
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	o.logger.Info("ingest stopped",
		logging.Event("ingest_stopped"),
	)
	return nil
}

// drain closes the queue and releases claims on items that never started.
func (o *Orchestrator) drain() {
	o.queue.Close()
	pending := o.queue.Drain()
	for _, item := range pending {
		o.tracker.Release(item.Identity)
	}
	o.logger.Info("shutdown drained pending items",
		logging.Int("discarded", len(pending)),
		logging.Int("in_flight", o.pool.Stats().InFlight),
		logging.Event("queue_drained"),
	)
}

func (o *Orchestrator) recordCompletion(c Completion) {
	o.mu.Lock()
	defer o.mu.Unlock()
	last := c
	o.last = &last
	if c.Err != nil {
		o.lastErr = c.Err
	}
}

// Tracker returns the dedup tracker.
func (o *Orchestrator) Tracker() *Tracker { return o.tracker }

// Queue returns the work queue.
func (o *Orchestrator) Queue() *Queue { return o.queue }

// Scanner returns the scanner.
func (o *Orchestrator) Scanner() *Scanner { return o.scanner }

// Pool returns the worker pool.
func (o *Orchestrator) Pool() *Pool { return o.pool }

// Status returns a snapshot of queue, pool, and tracker state.
func (o *Orchestrator) Status() Snapshot {
	o.mu.RLock()
	snap := Snapshot{Running: o.running, Started: o.started}
	if o.lastErr != nil {
		snap.LastError = o.lastErr.Error()
	}
	if o.last != nil {
		last := *o.last
		snap.LastItem = &last
	}
	o.mu.RUnlock()

	trackerStats := o.tracker.Stats()
	poolStats := o.pool.Stats()
	report, cycles, scanErr := o.scanner.LastReport()
	if snap.LastError == "" && scanErr != nil && !errors.Is(scanErr, context.Canceled) && !errors.Is(scanErr, ErrQueueClosed) {
		snap.LastError = scanErr.Error()
	}
	snap.QueueDepth = o.queue.Len()
	snap.InFlight = poolStats.InFlight
	snap.Lingering = poolStats.Lingering
	snap.Workers = poolStats.Workers
	snap.Processed = poolStats.Processed
	snap.Failed = poolStats.Failed
	snap.Claimed = trackerStats.Claimed
	snap.Done = trackerStats.Done
	snap.Outcomes = trackerStats.Outcomes
	snap.LastScan = report
	snap.ScanCycles = cycles
	return snap
}
