package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadWatcher watches the on-disk vector index, schema CSV, and safe-join
// map files for changes and debounces them into a single reload trigger.
// Grounded on the teacher's HybridWatcher: fsnotify events fan in to a
// single debounce window so a burst of writes (e.g. an offline rebuild tool
// rewriting all three files in sequence) triggers exactly one reload.
type ReloadWatcher struct {
	fsWatcher *fsnotify.Watcher
	paths     []string
	debounce  time.Duration
	triggerCh chan struct{}
	stopCh    chan struct{}
}

// NewReloadWatcher builds a watcher over the parent directories of paths.
// debounce is the quiet period required after the last filesystem event
// before a reload is triggered.
func NewReloadWatcher(paths []string, debounce time.Duration) (*ReloadWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dirs := map[string]struct{}{}
	for _, p := range paths {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &ReloadWatcher{
		fsWatcher: fsw,
		paths:     paths,
		debounce:  debounce,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}, nil
}

// Triggers returns a channel that receives a value after a debounced burst
// of changes to any watched path. The channel is buffered to 1; a pending
// trigger is not duplicated while the previous one hasn't been drained yet.
func (w *ReloadWatcher) Triggers() <-chan struct{} {
	return w.triggerCh
}

// Start runs the watch loop until ctx is cancelled or Stop is called.
func (w *ReloadWatcher) Start(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	resetTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.NewTimer(w.debounce)
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.fsWatcher.Close()
			return
		case <-w.stopCh:
			_ = w.fsWatcher.Close()
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if w.matchesWatchedFile(event.Name) {
				resetTimer()
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Warn("reload watcher error", slog.String("error", err.Error()))
		case <-timerC:
			timerC = nil
			select {
			case w.triggerCh <- struct{}{}:
			default:
			}
		}
	}
}

// matchesWatchedFile reports whether name refers to one of the watched
// paths (by base name, since fsnotify on most platforms reports the path
// as passed to the directory watch plus the changed entry's name).
func (w *ReloadWatcher) matchesWatchedFile(name string) bool {
	base := filepath.Base(name)
	for _, p := range w.paths {
		if filepath.Base(p) == base {
			return true
		}
	}
	return false
}

// Stop halts the watch loop and releases the underlying fsnotify watcher.
func (w *ReloadWatcher) Stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}
