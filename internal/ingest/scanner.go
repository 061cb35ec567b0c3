package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"pixelpath/internal/logging"
)

// ScannerConfig controls directory enumeration and eligibility.
type ScannerConfig struct {
	WatchDir           string
	Recursive          bool
	Interval           time.Duration
	MinFileAge         time.Duration
	TrackModifications bool
	// ExcludeDirs are never descended. Absolute entries match a full path,
	// bare names match any directory with that name.
	ExcludeDirs []string
	Classifier  Classifier
}

// ScanReport counts what one scan cycle saw.
type ScanReport struct {
	Started     time.Time
	Duration    time.Duration
	Listed      int
	TooYoung    int
	Known       int
	Unsupported int
	StatErrors  int
	Enqueued    int
}

// Candidate is an eligible file that a scan would enqueue.
type Candidate struct {
	Identity FileIdentity
	Media    MediaType
	Age      time.Duration
}

// Scanner enumerates the watch directory, claims eligible files, and pushes
// work items onto the queue.
type Scanner struct {
	cfg     ScannerConfig
	fs      afero.Fs
	clock   Clock
	stat    FileStat
	tracker *Tracker
	queue   *Queue
	logger  *slog.Logger
	newID   func() string

	trigger chan struct{}

	mu         sync.Mutex
	lastReport ScanReport
	lastErr    error
	cycles     int
}

// NewScanner wires a scanner to its tracker and queue.
func NewScanner(cfg ScannerConfig, tracker *Tracker, queue *Queue, logger *slog.Logger, opts ...Option) *Scanner {
	o := buildOptions(opts)
	return &Scanner{
		cfg:     cfg,
		fs:      o.fs,
		clock:   o.clock,
		stat:    o.stat,
		tracker: tracker,
		queue:   queue,
		logger:  logging.NewComponentLogger(logger, "scanner"),
		newID:   uuid.NewString,
		trigger: make(chan struct{}, 1),
	}
}

// Run scans immediately and then on every interval tick or Trigger call until
// ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if stop := s.cycle(ctx); stop {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-s.trigger:
		}
	}
}

// Trigger requests an immediate scan. Requests made while one is pending are
// coalesced.
func (s *Scanner) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// LastReport returns the most recent cycle report and the number of cycles run.
func (s *Scanner) LastReport() (ScanReport, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport, s.cycles, s.lastErr
}

func (s *Scanner) cycle(ctx context.Context) bool {
	report, err := s.ScanOnce(ctx)
	s.mu.Lock()
	s.lastReport = report
	s.lastErr = err
	s.cycles++
	s.mu.Unlock()

	switch {
	case err == nil:
	case errors.Is(err, ErrQueueClosed), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return true
	default:
		logging.WarnWithContext(s.logger, "scan cycle failed", "scan_failed",
			logging.String("watch_dir", s.cfg.WatchDir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check watch_dir permissions"),
			logging.String(logging.FieldImpact, "new files are picked up on the next cycle"),
		)
		return false
	}

	attrs := []logging.Attr{
		logging.Int("listed", report.Listed),
		logging.Int("enqueued", report.Enqueued),
		logging.Int("too_young", report.TooYoung),
		logging.Int("known", report.Known),
		logging.Int("unsupported", report.Unsupported),
		logging.Duration("duration", report.Duration),
		logging.Event("scan_complete"),
	}
	if report.Enqueued > 0 {
		s.logger.Info("scan cycle complete", logging.Args(attrs...)...)
	} else {
		s.logger.Debug("scan cycle complete", logging.Args(attrs...)...)
	}
	return false
}

// ScanOnce performs a single enumeration pass. A missing watch directory is
// logged and produces an empty report rather than an error.
func (s *Scanner) ScanOnce(ctx context.Context) (ScanReport, error) {
	report := ScanReport{Started: s.clock.Now()}
	candidates, err := s.enumerate(ctx, &report)
	if err != nil {
		report.Duration = s.clock.Now().Sub(report.Started)
		return report, err
	}

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			report.Duration = s.clock.Now().Sub(report.Started)
			return report, err
		}
		id := cand.Identity
		if !s.tracker.TryClaim(id) {
			report.Known++
			continue
		}
		media := s.cfg.Classifier.Classify(id.Path)
		if media == MediaUnknown {
			report.Unsupported++
			s.tracker.MarkDone(id, OutcomeSkipped)
			s.logger.Info("unsupported file type skipped",
				logging.Path(id.Path),
				logging.String("extension", filepath.Ext(id.Path)),
				logging.Event("unsupported_file"),
			)
			continue
		}
		item := WorkItem{
			ID:           s.newID(),
			Identity:     id,
			Media:        media,
			DiscoveredAt: report.Started,
		}
		if err := s.queue.Push(item); err != nil {
			s.tracker.Release(id)
			report.Duration = s.clock.Now().Sub(report.Started)
			return report, err
		}
		report.Enqueued++
		s.logger.Debug("work item enqueued",
			logging.Path(id.Path),
			logging.String(logging.FieldMediaType, string(media)),
			logging.String(logging.FieldCorrelationID, item.ID),
		)
	}
	report.Duration = s.clock.Now().Sub(report.Started)
	return report, nil
}

// Preview lists the files the next scan would enqueue without claiming them.
func (s *Scanner) Preview(ctx context.Context) ([]Candidate, error) {
	var report ScanReport
	candidates, err := s.enumerate(ctx, &report)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if s.tracker.Known(cand.Identity) {
			continue
		}
		cand.Media = s.cfg.Classifier.Classify(cand.Identity.Path)
		if cand.Media == MediaUnknown {
			continue
		}
		out = append(out, cand)
	}
	return out, nil
}

// enumerate walks the watch directory and returns files old enough to process,
// sorted by path.
func (s *Scanner) enumerate(ctx context.Context, report *ScanReport) ([]Candidate, error) {
	root := filepath.Clean(s.cfg.WatchDir)
	info, err := s.fs.Stat(root)
	if err != nil || !info.IsDir() {
		detail := "not a directory"
		if err != nil {
			detail = err.Error()
		}
		logging.WarnWithContext(s.logger, "watch directory unavailable; scan skipped", "watch_dir_missing",
			logging.String("watch_dir", root),
			logging.String("detail", detail),
			logging.String(logging.FieldErrorHint, "create paths.watch_dir or fix its permissions"),
			logging.String(logging.FieldImpact, "no files are picked up until the directory exists"),
		)
		return nil, nil
	}

	now := s.clock.Now()
	var candidates []Candidate
	consider := func(path string) {
		report.Listed++
		modTime, err := s.stat.ModTime(path)
		if err != nil {
			report.StatErrors++
			logging.WarnWithContext(s.logger, "stat failed; entry skipped", "stat_failed",
				logging.Path(path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "file is retried on the next cycle"),
			)
			return
		}
		age := now.Sub(modTime)
		if age < s.cfg.MinFileAge {
			report.TooYoung++
			return
		}
		var stamp time.Time
		if s.cfg.TrackModifications {
			stamp = modTime
		}
		candidates = append(candidates, Candidate{Identity: NewFileIdentity(path, stamp), Age: age})
	}

	if s.cfg.Recursive {
		err = afero.Walk(s.fs, root, func(path string, info os.FileInfo, walkErr error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if walkErr != nil {
				if path == root {
					return walkErr
				}
				report.StatErrors++
				logging.WarnWithContext(s.logger, "list failed; entry skipped", "list_failed",
					logging.Path(path),
					logging.Error(walkErr),
				)
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				if path != root && s.skipDir(root, path) {
					return filepath.SkipDir
				}
				return nil
			}
			if hidden(info.Name()) || !info.Mode().IsRegular() {
				return nil
			}
			consider(path)
			return nil
		})
	} else {
		var entries []os.FileInfo
		entries, err = afero.ReadDir(s.fs, root)
		for _, entry := range entries {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if entry.IsDir() || hidden(entry.Name()) || !entry.Mode().IsRegular() {
				continue
			}
			consider(filepath.Join(root, entry.Name()))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", root, err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Identity.Path < candidates[j].Identity.Path
	})
	return candidates, nil
}

func (s *Scanner) skipDir(root, path string) bool {
	name := filepath.Base(path)
	if hidden(name) {
		return true
	}
	for _, exclude := range s.cfg.ExcludeDirs {
		exclude = strings.TrimSpace(exclude)
		if exclude == "" {
			continue
		}
		if filepath.IsAbs(exclude) {
			if filepath.Clean(exclude) == path {
				return true
			}
			continue
		}
		if exclude == name || filepath.Join(root, exclude) == path {
			return true
		}
	}
	return false
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// NestedDirs returns the subset of dirs located strictly inside root.
func NestedDirs(root string, dirs ...string) []string {
	root = filepath.Clean(root)
	var nested []string
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		dir = filepath.Clean(dir)
		rel, err := filepath.Rel(root, dir)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		nested = append(nested, dir)
	}
	return nested
}
