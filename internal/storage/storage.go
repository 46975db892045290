// Package storage defines the data access port of the assertion graph.
//
// The concrete drivers live in the sqlite, mysql, and memory
// sub-packages. This package holds the narrow interface and the
// sentinel errors referenced by both the drivers and their consumers
// (the ingestion engine, the resolved view handlers, cmd/weft).
//
// Every operation is workspace-scoped and executes in its own
// transaction: a single call never partially commits. Any backend
// failure is wrapped in ErrStoreUnavailable so callers see one uniform
// retryable condition. Drivers never put NULL valid_to in an equality
// predicate; open-assertion filtering happens on the client side of
// the query.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/weftdb/weft/internal/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrStoreUnavailable wraps every backend failure. Callers may retry;
// the ingestion engine counts per-row occurrences instead of aborting.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrInvalidInput is returned for records that fail driver-side
// validation before touching the backend.
var ErrInvalidInput = errors.New("invalid input")

// Unavailable marks err as a retryable store failure, preserving the
// original error in the chain.
func Unavailable(op string, err error) error {
	return &unavailableError{op: op, err: err}
}

type unavailableError struct {
	op  string
	err error
}

func (e *unavailableError) Error() string { return e.op + ": " + e.err.Error() }

func (e *unavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

func (e *unavailableError) Unwrap() error { return e.err }

// Storage is the capability set the engine requires from any graph
// backend. Implementations escape all user-supplied strings via
// parameterized queries.
type Storage interface {
	// Entities
	// UpsertEntity looks up (workspace, type, primary key) and inserts
	// the entity if absent. created reports whether an insert happened.
	UpsertEntity(ctx context.Context, workspaceID, entityType, primaryKey, displayName string) (entityID string, created bool, err error)
	LookupEntity(ctx context.Context, workspaceID, entityType, primaryKey string) (*types.Entity, error)
	GetEntity(ctx context.Context, workspaceID, entityID string) (*types.Entity, error)
	SearchEntities(ctx context.Context, workspaceID, entityType, primaryKey string, limit int) ([]*types.Entity, error)

	// Assertions
	InsertAssertion(ctx context.Context, a *types.AssertionRecord) (assertionID string, err error)
	GetAssertion(ctx context.Context, workspaceID, assertionID string) (*types.AssertionRecord, error)
	CloseAssertion(ctx context.Context, workspaceID, assertionID string, validTo time.Time) error
	// LookupAssertionsByKey returns the OPEN assertions for one key in
	// one scenario, newest recorded_at first.
	LookupAssertionsByKey(ctx context.Context, workspaceID, assertionKey, scenarioID string) ([]*types.AssertionRecord, error)
	LookupAssertionsByImportRun(ctx context.Context, importRunID string) ([]*types.AssertionRecord, error)
	// GetAssertionsForEntity traverses ASSERTED_REL backwards from the
	// entity vertex and returns every assertion hanging off it.
	GetAssertionsForEntity(ctx context.Context, workspaceID, entityID string) ([]*types.AssertionRecord, error)

	// Property values
	InsertPropertyValue(ctx context.Context, pv *types.PropertyValue) (propertyValueID string, err error)
	GetPropertyValue(ctx context.Context, workspaceID, propertyValueID string) (*types.PropertyValue, error)

	// Edges
	// CreateAssertedRel inserts both directed edges of the assertion
	// topology: from → assertion and assertion → to.
	CreateAssertedRel(ctx context.Context, workspaceID, fromID, assertionID, toID string) error
	// GetAssertedTarget returns the vertex the assertion points at
	// (a PropertyValue for property claims, an Entity for relationships).
	GetAssertedTarget(ctx context.Context, workspaceID, assertionID string) (string, error)
	LinkCreatedAssertion(ctx context.Context, workspaceID, changeEventID, assertionID string) error
	LinkClosedAssertion(ctx context.Context, workspaceID, changeEventID, assertionID string) error
	LinkTriggeredBy(ctx context.Context, workspaceID, changeEventID, importRunID string) error

	// Change events
	InsertChangeEvent(ctx context.Context, ce *types.ChangeEvent) (changeEventID string, err error)
	GetChangeEventByImportRun(ctx context.Context, importRunID string) (*types.ChangeEvent, error)
	// ListChangeEventAssertions replays the CREATED_ASSERTION and
	// CLOSED_ASSERTION edges of one event.
	ListChangeEventAssertions(ctx context.Context, workspaceID, changeEventID string) (created, closed []string, err error)

	// Import runs
	InsertImportRun(ctx context.Context, ir *types.ImportRun) (importRunID string, err error)
	UpdateImportRun(ctx context.Context, ir *types.ImportRun) error
	GetImportRun(ctx context.Context, workspaceID, importRunID string) (*types.ImportRun, error)
	ListImportRuns(ctx context.Context, workspaceID string, limit int) ([]*types.ImportRun, error)

	// Sources
	UpsertSource(ctx context.Context, s *types.Source) (sourceID string, err error)
	GetSource(ctx context.Context, workspaceID, sourceID string) (*types.Source, error)
	ListSources(ctx context.Context, workspaceID string) ([]*types.Source, error)
	// GetSourceAuthorityMap returns source_id → authority_rank for the
	// workspace, the input to conflict resolution.
	GetSourceAuthorityMap(ctx context.Context, workspaceID string) (map[string]int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
