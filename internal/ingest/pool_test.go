package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pixelpath/internal/ingest"
	"pixelpath/internal/logging"
	"pixelpath/internal/services"
)

type concurrencyProbe struct {
	current atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
	hold    time.Duration
}

func (p *concurrencyProbe) Process(ctx context.Context, path string, media ingest.MediaType) (ingest.Result, error) {
	n := p.current.Add(1)
	defer p.current.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	p.calls.Add(1)
	time.Sleep(p.hold)
	return ingest.Result{Destination: path + ".done"}, nil
}

type completionLog struct {
	mu   sync.Mutex
	list []ingest.Completion
}

func (l *completionLog) add(c ingest.Completion) {
	l.mu.Lock()
	l.list = append(l.list, c)
	l.mu.Unlock()
}

func (l *completionLog) snapshot() []ingest.Completion {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ingest.Completion(nil), l.list...)
}

// runPool pushes paths, closes the queue, and runs the pool to completion.
func runPool(t *testing.T, cfg ingest.PoolConfig, processor ingest.Processor, paths ...string) (*ingest.Tracker, *ingest.Pool, []ingest.Completion) {
	t.Helper()
	tracker := ingest.NewTracker()
	queue := ingest.NewQueue()
	for _, path := range paths {
		it := item(path)
		tracker.TryClaim(it.Identity)
		if err := queue.Push(it); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	queue.Close()

	var log completionLog
	pool := ingest.NewPool(cfg, tracker, queue, processor, logging.NewNop(), ingest.WithCompletionHook(log.add))
	done := make(chan struct{})
	go func() {
		_ = pool.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not finish")
	}
	return tracker, pool, log.snapshot()
}

func TestPoolRespectsConcurrencyBound(t *testing.T) {
	probe := &concurrencyProbe{hold: 20 * time.Millisecond}
	paths := make([]string, 12)
	for i := range paths {
		paths[i] = fmt.Sprintf("/watch/%02d.jpg", i)
	}
	_, pool, completions := runPool(t, ingest.PoolConfig{Workers: 3}, probe, paths...)

	if peak := probe.peak.Load(); peak > 3 {
		t.Fatalf("expected at most 3 concurrent calls, saw %d", peak)
	}
	if peak := probe.peak.Load(); peak < 2 {
		t.Fatalf("expected workers to overlap, peak %d", peak)
	}
	if probe.calls.Load() != 12 || len(completions) != 12 {
		t.Fatalf("expected 12 calls and completions, got %d and %d", probe.calls.Load(), len(completions))
	}
	if stats := pool.Stats(); stats.Workers != 3 || stats.InFlight != 0 || stats.Processed != 12 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestPoolIsolatesFailures(t *testing.T) {
	processor := ingest.ProcessorFunc(func(ctx context.Context, path string, media ingest.MediaType) (ingest.Result, error) {
		switch path {
		case "/watch/bad.jpg":
			return ingest.Result{}, services.Wrap(services.ErrExternalTool, "tagging", "post", "status 500", nil)
		case "/watch/panic.jpg":
			panic("decoder exploded")
		}
		return ingest.Result{Destination: "/library/" + path}, nil
	})
	tracker, pool, completions := runPool(t, ingest.PoolConfig{Workers: 1}, processor,
		"/watch/bad.jpg", "/watch/panic.jpg", "/watch/good.jpg")

	want := map[string]ingest.Outcome{
		"/watch/bad.jpg":   ingest.OutcomeFailed,
		"/watch/panic.jpg": ingest.OutcomeFailed,
		"/watch/good.jpg":  ingest.OutcomeSucceeded,
	}
	for path, outcome := range want {
		got, ok := tracker.OutcomeOf(ingest.NewFileIdentity(path, time.Time{}))
		if !ok || got != outcome {
			t.Fatalf("%s: expected %q, got %q ok=%v", path, outcome, got, ok)
		}
	}
	if len(completions) != 3 {
		t.Fatalf("expected 3 completions, got %d", len(completions))
	}
	for _, c := range completions {
		if c.Item.Path() == "/watch/bad.jpg" && !errors.Is(c.Err, services.ErrExternalTool) {
			t.Fatalf("expected external tool error, got %v", c.Err)
		}
	}
	if stats := pool.Stats(); stats.Failed != 2 {
		t.Fatalf("expected 2 failures, got %+v", stats)
	}
}

func TestPoolSimulateModeSkipsProcessor(t *testing.T) {
	var calls atomic.Int32
	processor := ingest.ProcessorFunc(func(ctx context.Context, path string, media ingest.MediaType) (ingest.Result, error) {
		calls.Add(1)
		return ingest.Result{}, nil
	})
	tracker, _, completions := runPool(t, ingest.PoolConfig{Workers: 2, Simulate: true}, processor, "/watch/a.jpg", "/watch/b.jpg")

	if calls.Load() != 0 {
		t.Fatalf("processor must not run in simulate mode, ran %d times", calls.Load())
	}
	for _, c := range completions {
		if c.Outcome != ingest.OutcomeSimulated {
			t.Fatalf("expected simulated outcome, got %q", c.Outcome)
		}
	}
	if stats := tracker.Stats(); stats.Outcomes[ingest.OutcomeSimulated] != 2 {
		t.Fatalf("unexpected tracker stats %+v", stats)
	}
}

func TestPoolAbandonsHungProcessor(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	processor := ingest.ProcessorFunc(func(ctx context.Context, path string, media ingest.MediaType) (ingest.Result, error) {
		if path == "/watch/hang.jpg" {
			<-release
		}
		return ingest.Result{}, nil
	})
	tracker, pool, _ := runPool(t, ingest.PoolConfig{Workers: 1, ProcessTimeout: 30 * time.Millisecond}, processor,
		"/watch/hang.jpg", "/watch/next.jpg")

	outcome, _ := tracker.OutcomeOf(ingest.NewFileIdentity("/watch/hang.jpg", time.Time{}))
	if outcome != ingest.OutcomeFailed {
		t.Fatalf("expected hung item to fail, got %q", outcome)
	}
	outcome, _ = tracker.OutcomeOf(ingest.NewFileIdentity("/watch/next.jpg", time.Time{}))
	if outcome != ingest.OutcomeSucceeded {
		t.Fatalf("expected worker to move on, got %q", outcome)
	}
	if stats := pool.Stats(); stats.Abandoned != 1 {
		t.Fatalf("expected one abandoned call, got %+v", stats)
	}
}

func TestPoolTimeoutErrorIsClassified(t *testing.T) {
	processor := ingest.ProcessorFunc(func(ctx context.Context, path string, media ingest.MediaType) (ingest.Result, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return ingest.Result{}, ctx.Err()
	})
	_, _, completions := runPool(t, ingest.PoolConfig{Workers: 1, ProcessTimeout: 10 * time.Millisecond}, processor, "/watch/slow.jpg")
	if len(completions) != 1 || services.FailureKind(completions[0].Err) != "timeout" {
		t.Fatalf("expected timeout failure, got %+v", completions)
	}
}

func TestPoolDeliversContextValues(t *testing.T) {
	var gotID, gotPath string
	processor := ingest.ProcessorFunc(func(ctx context.Context, path string, media ingest.MediaType) (ingest.Result, error) {
		gotID, _ = services.RequestIDFromContext(ctx)
		gotPath, _ = services.PathFromContext(ctx)
		return ingest.Result{}, nil
	})
	runPool(t, ingest.PoolConfig{Workers: 1}, processor, "/watch/ctx.jpg")
	if gotID != "/watch/ctx.jpg" || gotPath != "/watch/ctx.jpg" {
		t.Fatalf("expected correlation id and path on context, got %q %q", gotID, gotPath)
	}
}

func TestPoolTimedOutItemNotRerunWhileCallLingers(t *testing.T) {
	const path = "/watch/slow.jpg"
	release := make(chan struct{})
	var active, peak, calls atomic.Int32
	processor := ingest.ProcessorFunc(func(ctx context.Context, p string, media ingest.MediaType) (ingest.Result, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		if calls.Add(1) == 1 {
			<-release
		}
		return ingest.Result{}, nil
	})

	tracker := ingest.NewTracker()
	queue := ingest.NewQueue()
	pool := ingest.NewPool(ingest.PoolConfig{Workers: 2, ProcessTimeout: 20 * time.Millisecond}, tracker, queue, processor, logging.NewNop())
	done := make(chan struct{})
	go func() {
		_ = pool.Run(context.Background())
		close(done)
	}()

	it := item(path)
	tracker.TryClaim(it.Identity)
	if err := queue.Push(it); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		outcome, ok := tracker.OutcomeOf(it.Identity)
		return ok && outcome == ingest.OutcomeFailed
	})

	if n := tracker.ReleaseFailed(); n != 1 {
		t.Fatalf("expected timed-out item released, got %d", n)
	}
	if tracker.TryClaim(it.Identity) {
		t.Fatal("item reclaimed while its first call is still running")
	}
	if stats := pool.Stats(); stats.Lingering != 1 {
		t.Fatalf("expected one lingering call, got %+v", stats)
	}

	close(release)
	waitFor(t, 2*time.Second, func() bool { return pool.Stats().Lingering == 0 })
	if !tracker.TryClaim(it.Identity) {
		t.Fatal("expected item claimable once the first call returned")
	}
	if err := queue.Push(item(path)); err != nil {
		t.Fatalf("push retry: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		outcome, ok := tracker.OutcomeOf(it.Identity)
		return ok && outcome == ingest.OutcomeSucceeded
	})
	queue.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not finish")
	}

	if calls.Load() != 2 {
		t.Fatalf("expected two calls, got %d", calls.Load())
	}
	if peak.Load() != 1 {
		t.Fatalf("expected at most one call at a time for %s, got %d", path, peak.Load())
	}
}
