// Package factory maps backend names to storage constructors so the
// server and CLI can pick a store from configuration alone. Drivers
// register themselves from init in their factory_*.go shims; importing
// this package pulls in every built-in backend.
package factory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/weftdb/weft/internal/storage"
)

// Config carries the backend-specific connection settings. Path feeds
// sqlite and memory, DSN feeds mysql.
type Config struct {
	Backend string
	Path    string
	DSN     string
}

// Factory constructs a store from a Config.
type Factory func(ctx context.Context, cfg Config) (storage.Storage, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a backend under name. Panics on duplicates; backends
// register from init and a collision is a programming error.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic("storage factory: duplicate backend " + name)
	}
	factories[name] = f
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the named backend. An empty name selects sqlite.
func New(ctx context.Context, cfg Config) (storage.Storage, error) {
	name := cfg.Backend
	if name == "" {
		name = "sqlite"
	}
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown storage backend %q (have %v)", name, Backends())
	}
	return f(ctx, cfg)
}
