package logging

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// Archive codecs understood by ArchiveOldLogs.
const (
	CodecZstd = "zstd"
	CodecGzip = "gzip"
)

// ArchiveOldLogs compresses files in target.Dir matching target.Pattern whose
// modification time is older than afterDays. Each file is replaced by a
// compressed sibling (".zst" or ".gz") that keeps the original mtime so
// CleanupOldLogs prunes it on the same schedule. An afterDays value of 0
// disables archiving. Returns the number of files archived.
func ArchiveOldLogs(logger *slog.Logger, afterDays int, codec string, target RetentionTarget) int {
	if afterDays <= 0 {
		return 0
	}
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	exclusions := make(map[string]struct{}, len(target.Exclude))
	for _, path := range target.Exclude {
		if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil {
			exclusions[abs] = struct{}{}
		}
	}

	cutoff := time.Now().AddDate(0, 0, -afterDays)
	archived := 0
	for _, entry := range entries {
		if entry.IsDir() || entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		name := entry.Name()
		if pat := strings.TrimSpace(target.Pattern); pat != "" {
			if matched, err := filepath.Match(pat, name); err != nil || !matched {
				continue
			}
		}
		fullPath, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if _, skip := exclusions[fullPath]; skip {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		dest, err := compressFile(fullPath, codec, info.ModTime())
		if err != nil {
			WarnWithContext(logger, "log archive failed; file left uncompressed", "log_archive_failed",
				String("path", fullPath),
				Error(err),
				String(FieldErrorHint, "check free space and log_dir permissions"),
				String(FieldImpact, "old log keeps its full size on disk"),
			)
			continue
		}
		archived++
		if logger != nil {
			logger.Info("log archived",
				String("path", fullPath),
				String("archive", dest),
				Event("log_archived"),
			)
		}
	}
	return archived
}

func compressFile(path, codec string, modTime time.Time) (string, error) {
	ext, newWriter, err := archiveWriter(codec)
	if err != nil {
		return "", err
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open log: %w", err)
	}
	defer src.Close()

	dest := path + ext
	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	cleanup := func() {
		_ = out.Close()
		_ = os.Remove(tmp)
	}

	buffered := bufio.NewWriterSize(out, 256*1024)
	compressor, err := newWriter(buffered)
	if err != nil {
		cleanup()
		return "", err
	}
	if _, err := io.Copy(compressor, src); err != nil {
		_ = compressor.Close()
		cleanup()
		return "", fmt.Errorf("compress log: %w", err)
	}
	if err := compressor.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		cleanup()
		return "", fmt.Errorf("flush archive: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize archive: %w", err)
	}
	_ = os.Chtimes(dest, modTime, modTime)
	if err := os.Remove(path); err != nil {
		return dest, fmt.Errorf("remove original log: %w", err)
	}
	return dest, nil
}

func archiveWriter(codec string) (string, func(io.Writer) (io.WriteCloser, error), error) {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "", CodecZstd:
		return ".zst", func(w io.Writer) (io.WriteCloser, error) {
			enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
			if err != nil {
				return nil, fmt.Errorf("create zstd writer: %w", err)
			}
			return enc, nil
		}, nil
	case CodecGzip:
		return ".gz", func(w io.Writer) (io.WriteCloser, error) {
			gz, err := pgzip.NewWriterLevel(w, pgzip.BestCompression)
			if err != nil {
				return nil, fmt.Errorf("create gzip writer: %w", err)
			}
			return gz, nil
		}, nil
	default:
		return "", nil, fmt.Errorf("unsupported archive codec %q", codec)
	}
}
