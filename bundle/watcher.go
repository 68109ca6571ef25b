package bundle

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// eventChannelBuffer is the size of the watch event channel.
	eventChannelBuffer = 64

	// defaultDebounce is how long to wait for a dropped archive to settle
	// before announcing it.
	defaultDebounce = 500 * time.Millisecond
)

// WatchEvent announces a bundle archive that appeared in the inbox.
type WatchEvent struct {
	// Path is the absolute path of the archive.
	Path string
}

// Watcher observes an inbox directory for new .zip bundle archives. Writes
// are debounced so an archive still being copied in is announced once,
// after it settles.
type Watcher struct {
	inboxDir string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]time.Time

	events chan WatchEvent

	droppedEvents atomic.Int64
}

// NewWatcher creates a watcher for the inbox directory. A zero debounce uses
// the default.
func NewWatcher(inboxDir string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		inboxDir: inboxDir,
		debounce: debounce,
		watcher:  fsw,
		logger:   logger,
		pending:  make(map[string]time.Time),
		events:   make(chan WatchEvent, eventChannelBuffer),
	}, nil
}

// Events returns the channel of settled bundle arrivals.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Start begins watching the inbox directory. Archives already present are
// announced immediately.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.inboxDir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.inboxDir); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.inboxDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && isZip(e.Name()) {
			w.sendEvent(WatchEvent{Path: filepath.Join(w.inboxDir, e.Name())})
		}
	}

	go w.processEvents(ctx)

	w.logger.Info("Bundle inbox watcher started",
		slog.String("inbox", w.inboxDir),
		slog.Duration("debounce", w.debounce))
	return nil
}

// Stop stops the watcher. The events channel is closed by processEvents.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// DroppedEvents returns the number of events dropped due to channel overflow.
func (w *Watcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			w.flushSettled()
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if !isZip(event.Name) {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.pendingMu.Lock()
		delete(w.pending, event.Name)
		w.pendingMu.Unlock()
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] = time.Now()
	w.pendingMu.Unlock()

	w.logger.Debug("Bundle archive change detected", slog.String("path", event.Name))
}

// flushSettled announces pending archives that have not changed for a full
// debounce interval.
func (w *Watcher) flushSettled() {
	cutoff := time.Now().Add(-w.debounce)

	w.pendingMu.Lock()
	var ready []string
	for path, last := range w.pending {
		if last.Before(cutoff) {
			ready = append(ready, path)
		}
	}
	for _, path := range ready {
		delete(w.pending, path)
	}
	w.pendingMu.Unlock()

	for _, path := range ready {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		w.sendEvent(WatchEvent{Path: path})
	}
}

func (w *Watcher) sendEvent(event WatchEvent) {
	select {
	case w.events <- event:
		w.logger.Debug("Announced bundle", slog.String("path", event.Path))
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("Event channel full, dropping bundle event",
			slog.String("path", event.Path),
			slog.Int64("total_dropped", dropped))
	}
}

func isZip(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}
