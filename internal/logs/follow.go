package logs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FollowOptions controls Follow.
type FollowOptions struct {
	Offset int64
	Match  string
	// Poll is the fallback read interval. Events usually arrive first.
	Poll time.Duration
}

// Follow calls emit for every line appended to path after opts.Offset until
// ctx is done. When path is a symlink that starts pointing elsewhere the new
// target is read from its beginning.
func Follow(ctx context.Context, path string, opts FollowOptions, emit func(string)) error {
	poll := opts.Poll
	if poll <= 0 {
		poll = time.Second
	}

	var events <-chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err == nil {
			events = watcher.Events
		}
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	target := resolve(path)
	offset := opts.Offset
	for {
		if current := resolve(path); current != target {
			target = current
			offset = 0
		}
		lines, next, err := readFrom(target, offset)
		if err != nil {
			return err
		}
		offset = next
		for _, line := range lines {
			if opts.Match != "" && !strings.Contains(line, opts.Match) {
				continue
			}
			emit(line)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		}
	}
}

func resolve(path string) string {
	if target, err := os.Readlink(path); err == nil {
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		return target
	}
	return path
}
