package ingestspec

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Registry caches parsed specs by name and invalidates the cache when
// files under the specs directory change. Safe for concurrent use.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*Spec
}

// NewRegistry creates a registry over dir. Nothing is loaded until Get.
func NewRegistry(dir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{dir: dir, logger: logger, cache: make(map[string]*Spec)}
}

// Dir returns the directory the registry reads from.
func (r *Registry) Dir() string { return r.dir }

// Get returns the named spec, loading and caching it on first use.
func (r *Registry) Get(name string) (*Spec, error) {
	r.mu.RLock()
	spec, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return spec, nil
	}

	spec, err := LoadByName(r.dir, name)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[name] = spec
	r.mu.Unlock()
	return spec, nil
}

// List returns the spec names currently on disk.
func (r *Registry) List() ([]string, error) {
	return List(r.dir)
}

// Invalidate drops every cached spec.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]*Spec)
	r.mu.Unlock()
}

// Watch invalidates the cache whenever the specs directory changes.
// Blocks until ctx is done; callers run it in its own goroutine.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				r.logger.Debug("spec registry invalidated", "file", ev.Name, "op", ev.Op.String())
				r.Invalidate()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("spec watcher error", "error", err)
		}
	}
}
