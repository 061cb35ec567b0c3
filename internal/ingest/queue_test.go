package ingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pixelpath/internal/ingest"
)

func item(path string) ingest.WorkItem {
	return ingest.WorkItem{ID: path, Identity: ingest.NewFileIdentity(path, time.Time{}), Media: ingest.MediaImage}
}

func TestQueueFIFO(t *testing.T) {
	q := ingest.NewQueue()
	for _, p := range []string{"/a", "/b", "/c"} {
		if err := q.Push(item(p)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected len 3, got %d", q.Len())
	}
	for _, want := range []string{"/a", "/b", "/c"} {
		got, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if got.Path() != want {
			t.Fatalf("expected %s, got %s", want, got.Path())
		}
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := ingest.NewQueue()
	result := make(chan ingest.WorkItem, 1)
	go func() {
		got, err := q.Pop(context.Background())
		if err == nil {
			result <- got
		}
	}()

	select {
	case <-result:
		t.Fatal("pop returned before push")
	case <-time.After(20 * time.Millisecond):
	}
	if err := q.Push(item("/late")); err != nil {
		t.Fatalf("push: %v", err)
	}
	select {
	case got := <-result:
		if got.Path() != "/late" {
			t.Fatalf("unexpected item %s", got.Path())
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not wake after push")
	}
}

func TestQueuePopHonorsContext(t *testing.T) {
	q := ingest.NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestQueueCloseRejectsPushAndKeepsPending(t *testing.T) {
	q := ingest.NewQueue()
	if err := q.Push(item("/pending")); err != nil {
		t.Fatalf("push: %v", err)
	}
	q.Close()
	q.Close()

	if err := q.Push(item("/after")); !errors.Is(err, ingest.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	got, err := q.Pop(context.Background())
	if err != nil || got.Path() != "/pending" {
		t.Fatalf("expected pending item after close, got %v %v", got.Path(), err)
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, ingest.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed on empty closed queue, got %v", err)
	}
}

func TestQueueDrain(t *testing.T) {
	q := ingest.NewQueue()
	_ = q.Push(item("/a"))
	_ = q.Push(item("/b"))
	paths := drainPaths(q)
	if len(paths) != 2 || paths[0] != "/a" || paths[1] != "/b" {
		t.Fatalf("unexpected drained items %v", paths)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestQueueCloseWakesBlockedPop(t *testing.T) {
	q := ingest.NewQueue()
	errs := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case err := <-errs:
		if !errors.Is(err, ingest.ErrQueueClosed) {
			t.Fatalf("expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked pop did not wake on close")
	}
}
