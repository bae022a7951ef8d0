// ABOUTME: fsnotify-based watcher for config hot-reload
// ABOUTME: Watches the parent directories of the config files and debounces bursts of events

package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mauromedda/pyrefactor-go/internal/log"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher calls onChange once per burst of changes to any monitored file.
// Files may not exist yet; creating one counts as a change.
type Watcher struct {
	files    map[string]bool
	onChange func()
	debounce time.Duration

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	done     chan struct{}
	running  bool
	stopOnce sync.Once
}

// NewWatcher creates a watcher that calls onChange when any monitored file changes.
func NewWatcher(paths []string, onChange func()) *Watcher {
	files := make(map[string]bool, len(paths))
	for _, p := range paths {
		files[filepath.Clean(p)] = true
	}
	return &Watcher{
		files:    files,
		onChange: onChange,
		debounce: defaultDebounce,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetDebounce overrides how long the watcher waits for quiet before reporting.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start begins watching. Directories that do not exist are skipped.
// Calling Start on a running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	select {
	case <-w.stopCh:
		return nil
	default:
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	watched := 0
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			log.Debug("config: not watching %s: %v", dir, err)
			continue
		}
		watched++
	}
	log.Debug("config: watching %d director(ies)", watched)

	w.watcher = fw
	w.running = true
	go w.loop(fw, w.debounce)
	return nil
}

// Stop halts the watcher. Safe to call multiple times and concurrently.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		running := w.running
		w.running = false
		fw := w.watcher
		w.mu.Unlock()

		close(w.stopCh)
		if running {
			_ = fw.Close()
			<-w.done
		}
	})
}

func (w *Watcher) loop(fw *fsnotify.Watcher, debounce time.Duration) {
	defer close(w.done)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-timer.C:
			w.onChange()
		case err, ok := <-fw.Errors:
			if !ok {
				continue
			}
			log.Warn("config: watch error: %v", err)
		case ev, ok := <-fw.Events:
			if !ok {
				continue
			}
			if !w.relevant(ev) {
				continue
			}
			log.Debug("config: %s %s", ev.Op, ev.Name)
			timer.Reset(debounce)
		}
	}
}

// relevant drops chmod-only events and files outside the watched set.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	return w.files[filepath.Clean(ev.Name)]
}
