package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"pixelpath/internal/logging"
	"pixelpath/internal/services"
)

// ErrAbandoned marks an item whose processor call was still running when the
// pool was forced to stop.
var ErrAbandoned = errors.New("processing abandoned at shutdown")

// Processor performs the media-specific work for one file. Implementations
// must be safe for concurrent use.
type Processor interface {
	Process(ctx context.Context, path string, media MediaType) (Result, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, path string, media MediaType) (Result, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, path string, media MediaType) (Result, error) {
	return f(ctx, path, media)
}

// Result describes what a processor did with a file.
type Result struct {
	Destination string
	Sidecar     string
	Tags        []string
}

// Completion is delivered to completion hooks once an item is done.
type Completion struct {
	Item     WorkItem
	Outcome  Outcome
	Err      error
	Result   Result
	Started  time.Time
	Finished time.Time
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers        int
	Simulate       bool
	ProcessTimeout time.Duration
}

// PoolStats is a point-in-time view of worker activity.
type PoolStats struct {
	Workers   int
	InFlight  int
	Busy      []bool
	Processed int64
	Failed    int64
	Abandoned int64
	// Lingering counts abandoned processor calls that have not returned yet.
	Lingering int
}

// Pool runs a fixed number of workers that consume the queue.
type Pool struct {
	cfg       PoolConfig
	tracker   *Tracker
	queue     *Queue
	processor Processor
	logger    *slog.Logger
	clock     Clock
	hooks     []func(Completion)

	inFlight  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	abandoned atomic.Int64
	lingering atomic.Int64

	mu   sync.Mutex
	busy []bool
}

// NewPool builds a pool. Workers below one are raised to one; callers that
// need to reject such configurations do so before constructing the pool.
func NewPool(cfg PoolConfig, tracker *Tracker, queue *Queue, processor Processor, logger *slog.Logger, opts ...Option) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	o := buildOptions(opts)
	return &Pool{
		cfg:       cfg,
		tracker:   tracker,
		queue:     queue,
		processor: processor,
		logger:    logging.NewComponentLogger(logger, "pool"),
		clock:     o.clock,
		hooks:     o.hooks,
		busy:      make([]bool, cfg.Workers),
	}
}

// Run starts the workers and blocks until all of them exit. Workers exit when
// the queue is closed and empty or ctx is cancelled. Cancelling ctx abandons
// items still being processed.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		go func(worker int) {
			defer wg.Done()
			p.work(ctx, worker)
		}(i)
	}
	wg.Wait()
	return nil
}

// Stats returns current worker counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	busy := append([]bool(nil), p.busy...)
	p.mu.Unlock()
	return PoolStats{
		Workers:   p.cfg.Workers,
		InFlight:  int(p.inFlight.Load()),
		Busy:      busy,
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Abandoned: p.abandoned.Load(),
		Lingering: int(p.lingering.Load()),
	}
}

func (p *Pool) work(ctx context.Context, worker int) {
	for {
		item, err := p.queue.Pop(ctx)
		if err != nil {
			return
		}
		p.handle(ctx, worker, item)
	}
}

func (p *Pool) setBusy(worker int, busy bool) {
	p.mu.Lock()
	p.busy[worker] = busy
	p.mu.Unlock()
}

func (p *Pool) handle(ctx context.Context, worker int, item WorkItem) {
	p.setBusy(worker, true)
	p.inFlight.Add(1)
	defer func() {
		p.inFlight.Add(-1)
		p.setBusy(worker, false)
	}()

	itemCtx := services.WithRequestID(context.WithoutCancel(ctx), item.ID)
	itemCtx = services.WithPath(itemCtx, item.Path())
	itemCtx = services.WithMediaType(itemCtx, string(item.Media))
	logger := logging.WithContext(itemCtx, p.logger).With(logging.Int(logging.FieldWorker, worker))

	started := p.clock.Now()
	var (
		result  Result
		err     error
		outcome Outcome
	)
	if p.cfg.Simulate {
		logger.Info("simulating processing",
			logging.Event("simulated"),
		)
		outcome = OutcomeSimulated
	} else {
		logger.Debug("work item started")
		result, err = p.invoke(ctx, itemCtx, item)
		outcome = OutcomeSucceeded
		if err != nil {
			outcome = OutcomeFailed
		}
	}
	finished := p.clock.Now()

	p.tracker.MarkDone(item.Identity, outcome)
	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
		logger.Error("work item failed",
			logging.Error(err),
			logging.String("failure_kind", services.FailureKind(err)),
			logging.Duration("elapsed", finished.Sub(started)),
			logging.Event("item_failed"),
			logging.String(logging.FieldErrorHint, "inspect the processor error; run `pixelpath retry` once fixed"),
		)
	} else if outcome == OutcomeSucceeded {
		logger.Info("work item finished",
			logging.String(logging.FieldOutcome, string(outcome)),
			logging.String("destination", result.Destination),
			logging.Duration("elapsed", finished.Sub(started)),
			logging.Event("item_finished"),
		)
	}

	done := Completion{
		Item:     item,
		Outcome:  outcome,
		Err:      err,
		Result:   result,
		Started:  started,
		Finished: finished,
	}
	for _, hook := range p.hooks {
		p.runHook(logger, hook, done)
	}
}

type invocation struct {
	result Result
	err    error
}

// invoke runs the processor on its own goroutine so a hung call can be
// abandoned when the per-item deadline passes or the pool is forced to stop.
func (p *Pool) invoke(poolCtx, itemCtx context.Context, item WorkItem) (Result, error) {
	runCtx, cancel := context.WithCancel(itemCtx)
	defer cancel()
	if p.cfg.ProcessTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, p.cfg.ProcessTimeout)
		defer cancelTimeout()
	}

	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{err: fmt.Errorf("processor panic: %v\n%s", r, debug.Stack())}
			}
		}()
		res, err := p.processor.Process(runCtx, item.Path(), item.Media)
		done <- invocation{result: res, err: err}
	}()

	select {
	case inv := <-done:
		return inv.result, inv.err
	case <-runCtx.Done():
		select {
		case inv := <-done:
			return inv.result, inv.err
		default:
		}
		p.abandon(itemCtx, item, done)
		logging.WarnWithContext(logging.WithContext(itemCtx, p.logger), "processor exceeded timeout; call abandoned", "process_timeout",
			logging.Duration("timeout", p.cfg.ProcessTimeout),
			logging.String(logging.FieldImpact, "item recorded as failed; processor goroutine may still be running"),
		)
		return Result{}, services.Wrap(services.ErrTimeout, "pool", "process",
			fmt.Sprintf("exceeded %s", p.cfg.ProcessTimeout), runCtx.Err())
	case <-poolCtx.Done():
		p.abandon(itemCtx, item, done)
		return Result{}, ErrAbandoned
	}
}

// abandon pins the item's path until the processor call actually returns, so
// a retry or forget cannot start a second call on the same file meanwhile.
func (p *Pool) abandon(itemCtx context.Context, item WorkItem, done <-chan invocation) {
	p.abandoned.Add(1)
	p.lingering.Add(1)
	path := item.Path()
	p.tracker.Pin(path)
	go func() {
		inv := <-done
		p.tracker.Unpin(path)
		p.lingering.Add(-1)
		attrs := []logging.Attr{logging.Event("abandoned_call_returned")}
		if inv.err != nil {
			attrs = append(attrs, logging.Error(inv.err))
		}
		logging.WithContext(itemCtx, p.logger).Info("abandoned processor call returned", logging.Args(attrs...)...)
	}()
}

func (p *Pool) runHook(logger *slog.Logger, hook func(Completion), done Completion) {
	defer func() {
		if r := recover(); r != nil {
			logging.WarnWithContext(logger, "completion hook panicked", "hook_panic",
				logging.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	hook(done)
}
