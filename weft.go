// Package weft provides a minimal public API for embedding the weft
// assertion graph in other Go programs.
//
// Most integrations should talk to the HTTP API of `weft serve`. This
// package exports only the essential types and constructors needed to
// run ingestion and resolution in-process against weft's storage layer.
package weft

import (
	"context"

	"github.com/weftdb/weft/internal/engine"
	"github.com/weftdb/weft/internal/resolve"
	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/storage/memory"
	"github.com/weftdb/weft/internal/storage/sqlite"
	"github.com/weftdb/weft/internal/types"
)

// Core types of the assertion graph.
type (
	Entity          = types.Entity
	AssertionRecord = types.AssertionRecord
	PropertyValue   = types.PropertyValue
	ImportRun       = types.ImportRun
	ImportStats     = types.ImportStats
	Source          = types.Source
	SourceType      = types.SourceType
	RunStatus       = types.RunStatus
)

// Source type constants.
const (
	SourceExcel        = types.SourceExcel
	SourceAPI          = types.SourceAPI
	SourceManual       = types.SourceManual
	SourceLLMExtracted = types.SourceLLMExtracted
	SourceComputed     = types.SourceComputed
)

// DefaultScenario is the overlay assertions belong to unless a
// scenario is requested explicitly.
const DefaultScenario = types.DefaultScenario

// Storage is the backend interface shared by every driver.
type Storage = storage.Storage

// Engine types for running ingestion programmatically.
type (
	Engine        = engine.Engine
	ImportOptions = engine.Options
	ImportResult  = engine.Result
)

// Claim is one assertion annotated with the resolution outcome.
type Claim = resolve.Claim

// NewSQLiteStorage opens (creating if necessary) a weft SQLite
// database for programmatic access.
func NewSQLiteStorage(ctx context.Context, path string) (Storage, error) {
	return sqlite.New(ctx, path)
}

// NewMemoryStorage returns an ephemeral in-memory store, useful for
// tests and experiments.
func NewMemoryStorage() Storage {
	return memory.New()
}

// NewEngine builds an ingestion engine over the store.
func NewEngine(store Storage, opts ...engine.Option) *Engine {
	return engine.New(store, opts...)
}

// ResolveAssertion picks the winning claim among competitors for one
// assertion key. See the resolve package for the full pipeline.
var ResolveAssertion = resolve.ResolveAssertion
