package logging_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"pixelpath/internal/logging"
)

func writeAged(t *testing.T, path string, content string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestCleanupOldLogsRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	oldLog := filepath.Join(dir, "pixelpath-old.log")
	current := filepath.Join(dir, "pixelpath-current.log")
	fresh := filepath.Join(dir, "pixelpath-fresh.log")
	other := filepath.Join(dir, "notes.txt")
	writeAged(t, oldLog, "old", 10*24*time.Hour)
	writeAged(t, current, "current", 10*24*time.Hour)
	writeAged(t, fresh, "fresh", time.Hour)
	writeAged(t, other, "other", 10*24*time.Hour)

	removed := logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "pixelpath-*.log",
		Exclude: []string{current},
	})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(oldLog); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, keep := range []string{current, fresh, other} {
		if _, err := os.Stat(keep); err != nil {
			t.Fatalf("expected %s to remain: %v", keep, err)
		}
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pixelpath-old.log")
	writeAged(t, path, "old", 100*24*time.Hour)
	if removed := logging.CleanupOldLogs(nil, 0, logging.RetentionTarget{Dir: dir}); removed != 0 {
		t.Fatalf("expected no removals when disabled, got %d", removed)
	}
}

func TestArchiveOldLogsZstd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pixelpath-a.log")
	payload := bytes.Repeat([]byte("scan cycle complete\n"), 200)
	writeAged(t, path, string(payload), 5*24*time.Hour)

	archived := logging.ArchiveOldLogs(logging.NewNop(), 3, logging.CodecZstd, logging.RetentionTarget{Dir: dir, Pattern: "pixelpath-*.log"})
	if archived != 1 {
		t.Fatalf("expected 1 archive, got %d", archived)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected original removed, stat err=%v", err)
	}

	file, err := os.Open(path + ".zst")
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer file.Close()
	dec, err := zstd.NewReader(file)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()
	got, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("decompressed payload mismatch")
	}

	info, err := os.Stat(path + ".zst")
	if err != nil {
		t.Fatalf("stat archive: %v", err)
	}
	if time.Since(info.ModTime()) < 4*24*time.Hour {
		t.Fatalf("expected archive to keep original mtime, got %v", info.ModTime())
	}
}

func TestArchiveOldLogsGzipSkipsRecentAndExcluded(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "pixelpath-old.log")
	recent := filepath.Join(dir, "pixelpath-new.log")
	active := filepath.Join(dir, "pixelpath-active.log")
	writeAged(t, old, "old entries", 5*24*time.Hour)
	writeAged(t, recent, "new entries", time.Hour)
	writeAged(t, active, "active entries", 5*24*time.Hour)

	archived := logging.ArchiveOldLogs(nil, 3, logging.CodecGzip, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "pixelpath-*.log",
		Exclude: []string{active},
	})
	if archived != 1 {
		t.Fatalf("expected 1 archive, got %d", archived)
	}

	file, err := os.Open(old + ".gz")
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer file.Close()
	gz, err := pgzip.NewReader(file)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	got, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(got) != "old entries" {
		t.Fatalf("unexpected payload %q", got)
	}
	for _, keep := range []string{recent, active} {
		if _, err := os.Stat(keep); err != nil {
			t.Fatalf("expected %s untouched: %v", keep, err)
		}
	}
}
