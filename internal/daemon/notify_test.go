package daemon_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pixelpath/internal/daemon"
	"pixelpath/internal/ledger"
	"pixelpath/internal/logging"
	"pixelpath/internal/testsupport"
)

type ntfyRecorder struct {
	mu       sync.Mutex
	titles   []string
	messages []string
}

func (r *ntfyRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.titles = append(r.titles, req.Header.Get("Title"))
		r.messages = append(r.messages, string(body))
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
}

func (r *ntfyRecorder) find(title string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.titles {
		if t == title {
			return r.messages[i], true
		}
	}
	return "", false
}

func TestDaemonNotifiesFailuresAndLifecycle(t *testing.T) {
	rec := &ntfyRecorder{}
	server := httptest.NewServer(rec.handler())
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.NotifyFailures = true
	cfg.Notifications.NotifyLifecycle = true
	store := testsupport.MustOpenLedger(t, cfg)
	proc := newCountingProcessor()
	proc.failTimes("bad.jpg", 1)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "bad.jpg"), 10)

	d, err := daemon.New(cfg, store, proc, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "failure notification", func() bool {
		_, ok := rec.find("PixelPath - Processing Failed")
		return ok
	})
	msg, _ := rec.find("PixelPath - Processing Failed")
	if !strings.Contains(msg, "bad.jpg") || !strings.Contains(msg, "(external)") {
		t.Fatalf("unexpected failure message %q", msg)
	}

	released, err := d.RetryFailed()
	if err != nil || released != 1 {
		t.Fatalf("RetryFailed = %d, %v", released, err)
	}
	waitFor(t, "retry notification", func() bool {
		_, ok := rec.find("PixelPath - Retrying")
		return ok
	})

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := rec.find("PixelPath - Started"); !ok {
		t.Fatal("expected start notification")
	}
	if msg, ok := rec.find("PixelPath - Stopped"); !ok || !strings.Contains(msg, "Stopped after processing") {
		t.Fatalf("expected stop notification, got %q", msg)
	}

	sent, err := d.TestNotification(context.Background())
	if err != nil || !sent {
		t.Fatalf("TestNotification = %v, %v", sent, err)
	}
}

func TestDaemonTestNotificationDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSimulation(true))
	store := testsupport.MustOpenLedger(t, cfg)
	d, err := daemon.New(cfg, store, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	sent, err := d.TestNotification(context.Background())
	if err != nil || sent {
		t.Fatalf("expected disabled notification to be skipped, got %v, %v", sent, err)
	}
}

func TestDaemonSlowNotificationsDoNotHoldWorkers(t *testing.T) {
	gate := make(chan struct{})
	var once sync.Once
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.Copy(io.Discard, req.Body)
		<-gate
		w.WriteHeader(http.StatusOK)
	}))
	openGate := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(func() {
		openGate()
		server.Close()
	})

	cfg := testsupport.NewConfig(t, testsupport.WithConcurrency(1))
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.NotifyFailures = true
	cfg.Notifications.NotifyLifecycle = false
	store := testsupport.MustOpenLedger(t, cfg)
	proc := newCountingProcessor()
	proc.failTimes("first.jpg", 1)
	proc.failTimes("second.jpg", 1)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "first.jpg"), 10)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "second.jpg"), 10)

	d, err := daemon.New(cfg, store, proc, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "both failures recorded while ntfy is stalled", func() bool {
		return ledgerCount(t, d, ledger.Filter{Outcome: "failed"}) == 2
	})

	openGate()
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
