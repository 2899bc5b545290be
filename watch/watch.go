// Package watch reloads the ledger when its files change on disk.
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/robinvdvleuten/beancount-mcp/loader"
)

// DefaultDebounce is how long the watcher waits for writes to settle before it
// reloads. Editors often save a file in several steps.
const DefaultDebounce = 2 * time.Second

// ReloadFunc rebuilds the ledger from disk.
type ReloadFunc func(ctx context.Context) error

// Watcher watches a directory for changes to ledger files.
type Watcher struct {
	dir      string
	reload   ReloadFunc
	debounce time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long changes must settle before a reload.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New returns a watcher calling reload after ledger files in dir change.
func New(dir string, reload ReloadFunc, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		reload:   reload,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It returns once the directory is watched; events are handled
// in the background until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// The directory is watched rather than the file so atomic saves, which replace
	// the file, are seen too.
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = fw.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !loader.IsLedgerFile(event.Name) {
				continue
			}
			w.logger.Debug("ledger file changed", zap.String("file", event.Name), zap.Stringer("op", event.Op))
			w.schedule(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// schedule (re)starts the debounce timer.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if err := w.reload(ctx); err != nil {
			w.logger.Error("failed to reload ledger", zap.Error(err))
			return
		}
		w.logger.Info("ledger reloaded after file change", zap.String("dir", w.dir))
	})
}
