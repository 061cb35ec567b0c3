package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"pixelpath/internal/ledger"
	"pixelpath/internal/testsupport"
)

func TestRecordAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	entries := []ledger.Entry{
		{Key: "/inbox/a.jpg", Path: "/inbox/a.jpg", MediaType: "image", Outcome: ledger.OutcomeSucceeded,
			Destination: "/photos/2026/03/a.jpg", Tags: []string{"pier", "sea"}, StartedAt: base, FinishedAt: base.Add(2 * time.Second)},
		{Key: "/inbox/b.mov", Path: "/inbox/b.mov", MediaType: "video", Outcome: ledger.OutcomeFailed,
			ErrorKind: "external", ErrorMessage: "status 500", FinishedAt: base.Add(time.Minute)},
		{Key: "/inbox/c.txt", Outcome: ledger.OutcomeSkipped, FinishedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	all, err := store.List(ctx, ledger.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Key != "/inbox/c.txt" || all[2].Key != "/inbox/a.jpg" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if all[0].Path != "/inbox/c.txt" {
		t.Fatalf("expected path to default to key, got %q", all[0].Path)
	}
	first := all[2]
	if len(first.Tags) != 2 || first.Destination != "/photos/2026/03/a.jpg" || first.Duration() != 2*time.Second {
		t.Fatalf("unexpected entry %+v", first)
	}

	failed, err := store.List(ctx, ledger.Filter{Outcome: ledger.OutcomeFailed})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ErrorKind != "external" {
		t.Fatalf("unexpected failed entries %+v", failed)
	}

	limited, err := store.List(ctx, ledger.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("List limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(limited))
	}
}

func TestRecordReplacesSameKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	if err := store.Record(ctx, ledger.Entry{Key: "/inbox/a.jpg", Outcome: ledger.OutcomeFailed, ErrorMessage: "timeout"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, ledger.Entry{Key: "/inbox/a.jpg", Outcome: ledger.OutcomeSucceeded}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entries, err := store.List(ctx, ledger.Filter{Path: "/inbox/a.jpg"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected single entry per key, got %d", len(entries))
	}
	if entries[0].Outcome != ledger.OutcomeSucceeded || entries[0].Attempts != 2 || entries[0].ErrorMessage != "" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestCompletedForgetClearStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	for _, e := range []ledger.Entry{
		{Key: "/inbox/a.jpg", Outcome: ledger.OutcomeSucceeded},
		{Key: "/inbox/a.jpg@1700000000000000000", Path: "/inbox/a.jpg", Outcome: ledger.OutcomeSucceeded},
		{Key: "/inbox/b.jpg", Outcome: ledger.OutcomeFailed},
		{Key: "/inbox/c.txt", Outcome: ledger.OutcomeSkipped},
		{Key: "/inbox/d.jpg", Outcome: ledger.OutcomeSimulated},
	} {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	keys, err := store.Completed(ctx)
	if err != nil {
		t.Fatalf("Completed: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected succeeded and skipped keys, got %v", keys)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[ledger.OutcomeSucceeded] != 2 || stats[ledger.OutcomeFailed] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}

	removed, err := store.Forget(ctx, "/inbox/a.jpg")
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	cleared, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if cleared != 3 {
		t.Fatalf("expected 3 cleared, got %d", cleared)
	}
}

func TestRecordRequiresKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	if err := store.Record(context.Background(), ledger.Entry{Outcome: ledger.OutcomeFailed}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	path := store.Path()
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := ledger.OpenPath(path); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
