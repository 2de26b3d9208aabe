package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/phasegate/internal/debuglog"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// watchDepth is how far below the state root directories are watched:
// root, iteration dirs and their tasks/verify/checkpoints subdirs.
const watchDepth = 2

// Watcher signals when documents under the state root change. Bursts of
// events are coalesced into one pending signal.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	changes chan struct{}
	stop    chan struct{}
}

// NewWatcher creates a watcher for the state root. The root must exist.
func NewWatcher(root string) (*Watcher, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("state root: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		root:    root,
		watcher: fw,
		changes: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}, nil
}

// Start registers the directory tree and begins forwarding events.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	go w.run(ctx)
	return nil
}

// Changes returns the coalesced change channel.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	select {
	case <-w.stop:
		return nil
	default:
		close(w.stop)
		return w.watcher.Close()
	}
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ignored(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						log.Printf("[dashboard] warning: %v", err)
					}
				}
			}
			debuglog.Printf("[dashboard] %s %s", event.Op, event.Name)
			w.notify()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[dashboard] warning: watcher: %v", err)
		}
	}
}

func (w *Watcher) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

// addTree watches dir and its subdirectories down to watchDepth below the
// state root.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && ignored(path) {
			return filepath.SkipDir
		}
		if w.depth(path) > watchDepth {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) depth(path string) int {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(filepath.ToSlash(rel), "/") + 1
}

// ignored filters out the journal database, debug logs and temp files,
// which change on every command and carry nothing the dashboard shows.
func ignored(path string) bool {
	base := filepath.Base(path)
	switch {
	case base == "logs":
		return true
	case strings.HasSuffix(base, ".db"), strings.HasSuffix(base, ".db-wal"),
		strings.HasSuffix(base, ".db-shm"), strings.HasSuffix(base, ".db-journal"):
		return true
	case strings.Contains(base, ".tmp."):
		return true
	case strings.HasSuffix(base, ".log"):
		return true
	}
	return filepath.Base(filepath.Dir(path)) == "logs"
}
