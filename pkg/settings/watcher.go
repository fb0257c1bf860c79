package settings

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the settings file when it changes on disk and hands each
// new snapshot to a callback. It watches the parent directory because most
// editors save by writing a temp file and renaming it over the original.
type Watcher struct {
	mu          sync.Mutex
	store       *Store
	logger      Logger
	watcher     *fsnotify.Watcher
	target      string
	debounceDur time.Duration
	pendingAt   time.Time
	last        Settings
	hasLast     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

func NewWatcher(store *Store, logger Logger) (*Watcher, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	target, err := filepath.Abs(store.Path())
	if err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		store:       store,
		logger:      logger,
		watcher:     fw,
		target:      target,
		debounceDur: 250 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet period before a reload. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDur = d
}

// Prime records the snapshot already in use so an identical reload is not
// reported as a change.
func (w *Watcher) Prime(s Settings) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = s.Clone()
	w.hasLast = true
}

// Start begins watching. onChange runs on the watcher goroutine.
func (w *Watcher) Start(ctx context.Context, onChange func(Settings)) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.target)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.logger.Info("watching settings file", "path", w.target)

	go w.run(ctx, onChange)
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context, onChange func(Settings)) {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("settings watcher error", "error", err)
		case <-ticker.C:
			w.flush(onChange)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != w.target {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	w.pendingAt = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(onChange func(Settings)) {
	w.mu.Lock()
	if w.pendingAt.IsZero() || time.Since(w.pendingAt) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pendingAt = time.Time{}
	w.mu.Unlock()

	s, err := w.store.Read()
	if err != nil {
		w.logger.Warn("ignoring unreadable settings change", "path", w.target, "error", err)
		return
	}

	w.mu.Lock()
	if w.hasLast && reflect.DeepEqual(w.last, s) {
		w.mu.Unlock()
		return
	}
	w.last = s.Clone()
	w.hasLast = true
	w.mu.Unlock()

	w.logger.Info("settings file changed", "path", w.target)
	onChange(s)
}
