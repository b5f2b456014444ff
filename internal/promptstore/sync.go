package promptstore

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const syncDebounce = 400 * time.Millisecond

// SyncWatcher watches the store root with fsnotify and evicts memories whose
// directories are removed externally. Memory deletion belongs to the external
// Memory layer; this keeps the indexes and warm cache from serving ghosts.
type SyncWatcher struct {
	store    *Store
	debounce time.Duration
	logger   *zap.Logger

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	debounceMap map[string]*time.Timer
	started     bool
}

// NewSyncWatcher creates a watcher for the store.
func NewSyncWatcher(store *Store, logger *zap.Logger) *SyncWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncWatcher{
		store:       store,
		debounce:    syncDebounce,
		logger:      logger,
		debounceMap: make(map[string]*time.Timer),
	}
}

// Start starts watching. It runs until ctx is cancelled.
func (w *SyncWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.store.Root()); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Debug("store sync watcher started", zap.String("root", w.store.Root()))

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(ctx, event)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("store sync watcher error", zap.Error(err))
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (w *SyncWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	id := filepath.Base(event.Name)
	if id == "." || id == "" {
		return
	}

	// Debounce: a directory removal produces a burst of events.
	w.mu.Lock()
	if timer, ok := w.debounceMap[id]; ok {
		timer.Stop()
	}
	w.debounceMap[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, id)
		w.mu.Unlock()
		w.store.forget(ctx, id)
		w.logger.Debug("externally removed memory evicted", zap.String("memory_id", id))
	})
	w.mu.Unlock()
}
