package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/poiesic/coverwise/core"
)

// DefaultDebounce is how long the watcher waits after the last change event
// before reloading.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a policy file whenever it changes on disk. A file that
// fails to load never replaces the current document.
type Watcher struct {
	path     string
	onChange func(*core.PolicyDocument)
	onError  func(error)
	debounce time.Duration
	fsw      *fsnotify.Watcher
	logger   *slog.Logger

	mu      sync.RWMutex
	current *core.PolicyDocument
}

// Option configures a Watcher.
type Option func(*Watcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// WithDebounce sets the quiet period before a reload.
// Default is DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) error {
		if d < 0 {
			return fmt.Errorf("debounce must not be negative, got %v", d)
		}
		w.debounce = d
		return nil
	}
}

// WithErrorHandler is called with every failed reload.
func WithErrorHandler(fn func(error)) Option {
	return func(w *Watcher) error {
		w.onError = fn
		return nil
	}
}

// NewWatcher loads path and prepares to watch it. onChange receives every
// successfully reloaded document; it is not called for the initial load.
// The containing directory is watched so editors that replace the file by
// rename are handled.
func NewWatcher(path string, onChange func(*core.PolicyDocument), opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	w := &Watcher{
		path:     abs,
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	w.logger = w.logger.With("component", "policy-watcher", "path", abs)

	doc, err := Load(abs)
	if err != nil {
		return nil, err
	}
	w.current = doc

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	w.fsw = fsw
	return w, nil
}

// Current returns a copy of the most recently loaded document.
func (w *Watcher) Current() *core.PolicyDocument {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.Clone()
}

// Run processes file events until ctx is done, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	w.logger.Info("watching policy file", "debounce", w.debounce)

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(ev) {
				reload = time.After(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "err", err)
		case <-reload:
			reload = nil
			w.reload()
		}
	}
}

// handleEvent reports whether ev should trigger a reload.
func (w *Watcher) handleEvent(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	switch {
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
		return true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.logger.Warn("policy file removed, keeping current document", "op", ev.Op.String())
	}
	return false
}

func (w *Watcher) reload() {
	doc, err := Load(w.path)
	if err != nil {
		w.logger.Error("policy reload failed, keeping current document", "err", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	w.current = doc
	w.mu.Unlock()

	w.logger.Info("policy reloaded", "policy_id", doc.Meta.ID, "status", doc.Meta.Status)
	if w.onChange != nil {
		w.onChange(doc.Clone())
	}
}

// Close stops watching without waiting for Run to return.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
