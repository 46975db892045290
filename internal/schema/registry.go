package schema

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/weftdb/weft/internal/types"
)

// Registry loads, validates, and caches domain schemas from a
// directory of YAML files. Schemas registered through the API live in
// the same cache. Safe for concurrent use.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry creates a registry over dir.
func NewRegistry(dir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{dir: dir, logger: logger, schemas: make(map[string]*Schema)}
}

// Dir returns the directory the registry reads from.
func (r *Registry) Dir() string { return r.dir }

// Get returns the schema for workspaceID, loading it from disk when
// not cached. The schema file is whichever *.yaml under the directory
// declares `workspace: <workspaceID>`.
func (r *Registry) Get(workspaceID string) (*Schema, error) {
	r.mu.RLock()
	s, ok := r.schemas[workspaceID]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	return r.load(workspaceID)
}

// Register validates and caches a schema directly, e.g. one uploaded
// through the workspace API.
func (r *Registry) Register(s *Schema) error {
	if errs := s.Check(); len(errs) > 0 {
		return fmt.Errorf("%w: schema for %s: %v", types.ErrValidation, s.Workspace, errs)
	}
	r.mu.Lock()
	r.schemas[s.Workspace] = s
	r.mu.Unlock()
	return nil
}

// List returns every workspace with a schema, cached or on disk.
func (r *Registry) List() []string {
	seen := make(map[string]bool)
	r.mu.RLock()
	for ws := range r.schemas {
		seen[ws] = true
	}
	r.mu.RUnlock()

	for _, path := range r.candidateFiles() {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var head struct {
			Workspace string `yaml:"workspace"`
		}
		if err := yaml.Unmarshal(raw, &head); err != nil || head.Workspace == "" {
			continue
		}
		seen[head.Workspace] = true
	}

	workspaces := make([]string, 0, len(seen))
	for ws := range seen {
		workspaces = append(workspaces, ws)
	}
	sort.Strings(workspaces)
	return workspaces
}

// Invalidate drops every cached schema.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.schemas = make(map[string]*Schema)
	r.mu.Unlock()
}

// Watch invalidates the cache whenever the schemas directory changes.
// Blocks until ctx is done.
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
				r.logger.Debug("schema registry invalidated", "file", ev.Name, "op", ev.Op.String())
				r.Invalidate()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("schema watcher error", "error", err)
		}
	}
}

func (r *Registry) load(workspaceID string) (*Schema, error) {
	for _, path := range r.candidateFiles() {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var head struct {
			Workspace string `yaml:"workspace"`
		}
		if err := yaml.Unmarshal(raw, &head); err != nil || head.Workspace != workspaceID {
			continue
		}
		s, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.schemas[workspaceID] = s
		r.mu.Unlock()
		r.logger.Info("loaded workspace schema", "workspace", workspaceID, "file", filepath.Base(path))
		return s, nil
	}
	return nil, fmt.Errorf("%w: no schema for workspace %q in %s", types.ErrNotFound, workspaceID, r.dir)
}

func (r *Registry) candidateFiles() []string {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		paths = append(paths, filepath.Join(r.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths
}
