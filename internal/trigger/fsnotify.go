package trigger

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pixelpath/internal/logging"
)

const defaultDebounce = 500 * time.Millisecond

// FSNotifier requests a scan shortly after files change under the watch
// directory. Bursts of events inside the debounce window produce one request.
type FSNotifier struct {
	root      string
	recursive bool
	debounce  time.Duration
	target    Target
	logger    *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFSNotifier builds a notifier for root. A zero debounce uses 500ms.
func NewFSNotifier(root string, recursive bool, debounce time.Duration, target Target, logger *slog.Logger) *FSNotifier {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &FSNotifier{
		root:      filepath.Clean(root),
		recursive: recursive,
		debounce:  debounce,
		target:    target,
		logger:    logging.NewComponentLogger(logger, "fsnotify"),
	}
}

// Start registers the watches and begins forwarding events.
func (n *FSNotifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := n.addTree(watcher, n.root); err != nil {
		_ = watcher.Close()
		return err
	}
	n.watcher = watcher
	n.done = make(chan struct{})
	n.wg.Add(1)
	go n.loop(ctx, watcher, n.done)

	n.logger.Info("filesystem notifications enabled",
		logging.String("watch_dir", n.root),
		logging.Bool("recursive", n.recursive),
		logging.Event("fsnotify_started"),
	)
	return nil
}

// Stop removes the watches and waits for the event loop to exit.
func (n *FSNotifier) Stop() {
	n.mu.Lock()
	watcher := n.watcher
	done := n.done
	n.watcher = nil
	n.done = nil
	n.mu.Unlock()
	if watcher == nil {
		return
	}
	close(done)
	_ = watcher.Close()
	n.wg.Wait()
}

func (n *FSNotifier) addTree(watcher *fsnotify.Watcher, dir string) error {
	if !n.recursive {
		return watcher.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			n.logger.Debug("watch add failed", logging.Path(path), logging.Error(err))
		}
		return nil
	})
}

func (n *FSNotifier) loop(ctx context.Context, watcher *fsnotify.Watcher, done <-chan struct{}) {
	defer n.wg.Done()
	timer := time.NewTimer(n.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-done:
			timer.Stop()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			if n.recursive && event.Has(fsnotify.Create) {
				n.maybeWatchNewDir(watcher, event.Name)
			}
			if !pending {
				pending = true
				timer.Reset(n.debounce)
			}
		case <-timer.C:
			pending = false
			n.logger.Debug("filesystem change detected; scan requested",
				logging.Event("fsnotify_trigger"),
			)
			n.target.Trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				n.target.Trigger()
			}
			logging.WarnWithContext(n.logger, "filesystem watcher error", "fsnotify_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "changes are still picked up by polling"),
			)
		}
	}
}

func (n *FSNotifier) maybeWatchNewDir(watcher *fsnotify.Watcher, path string) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}
	if err := n.addTree(watcher, path); err != nil {
		n.logger.Debug("new directory not watched", logging.Path(path), logging.Error(err))
	}
}

func relevant(event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}
