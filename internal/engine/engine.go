// Package engine orchestrates one ingestion run: parse the workbook,
// upsert entities, diff property and relationship assertions against
// the open graph state, close what disappeared, and record the change
// event. All writes are append-only except assertion closure.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/weftdb/weft/internal/hashing"
	"github.com/weftdb/weft/internal/idgen"
	"github.com/weftdb/weft/internal/ingestspec"
	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/tabular"
	"github.com/weftdb/weft/internal/telemetry"
	"github.com/weftdb/weft/internal/types"
)

// Engine runs ingestions against a storage backend. Safe for reuse
// across runs; each Run owns its own working state.
type Engine struct {
	store   storage.Storage
	clock   idgen.Clock
	logger  *slog.Logger
	parser  *tabular.Parser
	tracer  trace.Tracer
	metrics *telemetry.ImportMetrics

	prefetchWorkers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the run timestamp source.
func WithClock(c idgen.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics attaches the import instrument set.
func WithMetrics(m *telemetry.ImportMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPrefetchWorkers bounds the open-assertion prefetch fan-out.
func WithPrefetchWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.prefetchWorkers = n
		}
	}
}

// New builds an Engine over the store.
func New(store storage.Storage, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		clock:           idgen.WallClock{},
		logger:          slog.Default(),
		tracer:          telemetry.Tracer("github.com/weftdb/weft/engine"),
		prefetchWorkers: defaultPrefetchWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.parser = &tabular.Parser{Logger: e.logger}
	return e
}

// Options name the inputs of one run.
type Options struct {
	WorkspaceID string
	SpecName    string
	Spec        *ingestspec.Spec
	SourceFile  string
	Actor       string // defaults to "system:import"
	SourceID    string // registered source attribution, optional
}

// RowError is a per-row store failure the run survived.
type RowError struct {
	SourceRef string `json:"source_ref,omitempty"`
	Key       string `json:"assertion_key,omitempty"`
	Message   string `json:"message"`
}

// Result is the outcome of one run.
type Result struct {
	ImportRunID   string            `json:"import_run_id"`
	WorkspaceID   string            `json:"workspace_id"`
	Status        types.RunStatus   `json:"status"`
	Stats         types.ImportStats `json:"stats"`
	ChangeEventID string            `json:"change_event_id,omitempty"`
	Errors        []RowError        `json:"errors,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
}

const (
	defaultPrefetchWorkers = 8
	systemActor            = "system:import"
)

// run carries the working state of one ingestion.
type run struct {
	*Engine
	opts Options
	spec *ingestspec.Spec
	wid  string
	now  time.Time

	importRunID string
	entityIDs   map[string]string // etype + "\x00" + pk → entity id
	seenKeys    map[string]struct{}
	cache       *openCache

	stats      types.ImportStats
	createdIDs []string
	closedIDs  []string
	rowErrors  []RowError
}

// Run executes the eight-step ingestion pipeline. Per-row store
// errors are survived and reported in the result; fatal errors (parse
// failure, run bookkeeping) finalize the run as failed. The returned
// error is non-nil only when the run record itself could not be
// created.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.Run",
		trace.WithAttributes(
			attribute.String("workspace", opts.WorkspaceID),
			attribute.String("spec", opts.SpecName),
		))
	defer span.End()

	r := &run{
		Engine:    e,
		opts:      opts,
		spec:      opts.Spec,
		wid:       opts.WorkspaceID,
		now:       e.clock.Now().UTC(),
		entityIDs: make(map[string]string),
		seenKeys:  make(map[string]struct{}),
	}

	// Step 1: the run record. Without it there is nothing to finalize,
	// so insert failure aborts with no side effects.
	ir := &types.ImportRun{
		WorkspaceID: r.wid,
		SourceFile:  opts.SourceFile,
		SpecName:    opts.SpecName,
		StartedAt:   r.now,
		Status:      types.RunRunning,
	}
	id, err := e.store.InsertImportRun(ctx, ir)
	if err != nil {
		e.logger.Error("import run insert failed", "workspace", r.wid, "error", err)
		res := &Result{WorkspaceID: r.wid, Status: types.RunFailed, ErrorMessage: err.Error()}
		e.metrics.RecordRun(ctx, r.wid, string(types.RunFailed), time.Since(started))
		return res, err
	}
	r.importRunID = id

	result := r.execute(ctx)
	e.metrics.RecordRun(ctx, r.wid, string(result.Status), time.Since(started))
	e.metrics.RecordAssertions(ctx, r.wid, "created", result.Stats.AssertionsCreated)
	e.metrics.RecordAssertions(ctx, r.wid, "closed", result.Stats.AssertionsClosed)
	e.metrics.RecordAssertions(ctx, r.wid, "modified", result.Stats.AssertionsModified)
	e.metrics.RecordAssertions(ctx, r.wid, "unchanged", result.Stats.AssertionsUnchanged)
	e.metrics.RecordRowErrors(ctx, r.wid, len(result.Errors))
	return result, nil
}

func (r *run) execute(ctx context.Context) *Result {
	// Step 2: parse.
	rows, err := r.parser.ParseFile(r.opts.SourceFile, r.spec)
	if err != nil {
		return r.finalizeFailed(ctx, fmt.Sprintf("parse %s: %v", r.opts.SourceFile, err))
	}
	if err := ctx.Err(); err != nil {
		return r.finalizeFailed(ctx, "cancelled")
	}

	// Step 3: entities.
	r.upsertEntities(ctx, rows)
	if err := ctx.Err(); err != nil {
		return r.finalizeFailed(ctx, "cancelled")
	}

	// Batched read of current open state ahead of the write passes.
	r.cache = r.prefetchOpen(ctx, rows)

	// Step 4: properties.
	r.assertProperties(ctx, rows)
	if err := ctx.Err(); err != nil {
		return r.finalizeFailed(ctx, "cancelled")
	}

	// Step 5: relationships.
	r.assertRelationships(ctx, rows)
	if err := ctx.Err(); err != nil {
		return r.finalizeFailed(ctx, "cancelled")
	}

	// Step 6: disappearance.
	if err := r.closeDisappeared(ctx); err != nil {
		return r.finalizeFailed(ctx, err.Error())
	}
	if err := ctx.Err(); err != nil {
		return r.finalizeFailed(ctx, "cancelled")
	}

	// Step 7: change event.
	ceID, err := r.recordChangeEvent(ctx)
	if err != nil {
		return r.finalizeFailed(ctx, err.Error())
	}

	// Step 8: finalize.
	r.stats.Errors = len(r.rowErrors)
	completed := r.clock.Now().UTC()
	update := &types.ImportRun{
		ImportRunID: r.importRunID,
		WorkspaceID: r.wid,
		Status:      types.RunCompleted,
		CompletedAt: &completed,
		Stats:       marshalStats(r.stats),
	}
	if err := r.store.UpdateImportRun(ctx, update); err != nil {
		r.logger.Error("import run finalize failed", "run", r.importRunID, "error", err)
		return &Result{
			ImportRunID:  r.importRunID,
			WorkspaceID:  r.wid,
			Status:       types.RunFailed,
			Stats:        r.stats,
			Errors:       r.rowErrors,
			ErrorMessage: err.Error(),
		}
	}

	r.logger.Info("import run completed",
		"run", r.importRunID,
		"workspace", r.wid,
		"spec", r.opts.SpecName,
		"created", r.stats.AssertionsCreated,
		"modified", r.stats.AssertionsModified,
		"closed", r.stats.AssertionsClosed,
		"unchanged", r.stats.AssertionsUnchanged,
		"errors", len(r.rowErrors))

	return &Result{
		ImportRunID:   r.importRunID,
		WorkspaceID:   r.wid,
		Status:        types.RunCompleted,
		Stats:         r.stats,
		ChangeEventID: ceID,
		Errors:        r.rowErrors,
	}
}

// finalizeFailed marks the run failed and returns the terminal result.
// Partial writes remain; the store is append-only and the next run
// reconciles.
func (r *run) finalizeFailed(ctx context.Context, msg string) *Result {
	r.stats.Errors = len(r.rowErrors)
	completed := r.clock.Now().UTC()
	update := &types.ImportRun{
		ImportRunID:  r.importRunID,
		WorkspaceID:  r.wid,
		Status:       types.RunFailed,
		CompletedAt:  &completed,
		Stats:        marshalStats(r.stats),
		ErrorMessage: msg,
	}
	// Best effort under cancellation: the update context may already be
	// dead, so give the write its own deadline.
	uctx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := r.store.UpdateImportRun(uctx, update); err != nil {
		r.logger.Error("failed-run finalize failed", "run", r.importRunID, "error", err)
	}
	r.logger.Warn("import run failed", "run", r.importRunID, "workspace", r.wid, "error", msg)
	return &Result{
		ImportRunID:  r.importRunID,
		WorkspaceID:  r.wid,
		Status:       types.RunFailed,
		Stats:        r.stats,
		Errors:       r.rowErrors,
		ErrorMessage: msg,
	}
}

// upsertEntities resolves every staged (entity_type, primary_key) to a
// vertex id, first encounter wins, and fills the run's id map.
func (r *run) upsertEntities(ctx context.Context, rows []tabular.StagedRow) {
	for _, row := range rows {
		for _, se := range row.Entities {
			key := entityMapKey(se.EntityType, se.PrimaryKey)
			if _, done := r.entityIDs[key]; done {
				continue
			}
			id, created, err := r.store.UpsertEntity(ctx, r.wid, se.EntityType, se.PrimaryKey, se.DisplayName)
			if err != nil {
				r.rowError(se.SourceRef, "", fmt.Errorf("upsert entity %s/%s: %w", se.EntityType, se.PrimaryKey, err))
				continue
			}
			r.entityIDs[key] = id
			if created {
				r.stats.EntitiesCreated++
			} else {
				r.stats.EntitiesExisting++
			}
		}
	}
}

// assertProperties runs the diff for every staged property claim.
func (r *run) assertProperties(ctx context.Context, rows []tabular.StagedRow) {
	ser := r.spec.RawHashSerialization
	rules := r.spec.ChangeDetection.NormalizationRules

	for _, row := range rows {
		for _, se := range row.Entities {
			entityID, ok := r.entityIDs[entityMapKey(se.EntityType, se.PrimaryKey)]
			if !ok {
				continue // upsert failed earlier; already reported
			}
			for _, prop := range se.Properties {
				key := hashing.PropertyKey(r.wid, se.EntityType, se.PrimaryKey, prop.Key)
				r.seenKeys[key] = struct{}{}

				valueType := types.InferValueType(prop.Value)
				rawHash := hashing.PropertyRawHash(prop.Value, ser)
				normHash := hashing.PropertyNormalizedHash(prop.Value, ser, rules, valueType)

				open, err := r.cache.open(ctx, key)
				if err != nil {
					r.rowError(se.SourceRef, key, fmt.Errorf("lookup: %w", err))
					continue
				}

				switch {
				case matchesAny(open, rawHash, normHash, r.spec.ChangeDetection.Mode):
					r.stats.AssertionsUnchanged++
				case len(open) == 0:
					if err := r.createProperty(ctx, entityID, se, prop, key, rawHash, normHash, valueType, ""); err != nil {
						r.rowError(se.SourceRef, key, err)
						continue
					}
					r.stats.AssertionsCreated++
				default:
					supersedes, err := r.closeOpen(ctx, key, open)
					if err != nil {
						r.rowError(se.SourceRef, key, err)
						continue
					}
					if err := r.createProperty(ctx, entityID, se, prop, key, rawHash, normHash, valueType, supersedes); err != nil {
						r.rowError(se.SourceRef, key, err)
						continue
					}
					r.stats.AssertionsModified++
				}
			}
		}
	}
}

// assertRelationships diffs the staged relationships. The hashed value
// of a relationship claim is its own assertion key, so an existing
// open claim is always unchanged; disappearance closes dropped links.
func (r *run) assertRelationships(ctx context.Context, rows []tabular.StagedRow) {
	ser := r.spec.RawHashSerialization
	rules := r.spec.ChangeDetection.NormalizationRules

	for _, row := range rows {
		for _, sr := range row.Relationships {
			fromID, okFrom := r.entityIDs[entityMapKey(sr.FromEntityType, sr.FromPrimaryKey)]
			toID, okTo := r.entityIDs[entityMapKey(sr.ToEntityType, sr.ToPrimaryKey)]
			if !okFrom || !okTo {
				continue
			}

			key := hashing.RelationshipKey(r.wid, sr.FromEntityType, sr.FromPrimaryKey,
				sr.RelationshipType, sr.ToEntityType, sr.ToPrimaryKey)
			r.seenKeys[key] = struct{}{}

			keyCell := types.TextCell(key)
			rawHash := hashing.PropertyRawHash(keyCell, ser)
			normHash := hashing.PropertyNormalizedHash(keyCell, ser, rules, types.ValueString)

			open, err := r.cache.open(ctx, key)
			if err != nil {
				r.rowError(sr.SourceRef, key, fmt.Errorf("lookup: %w", err))
				continue
			}
			if matchesAny(open, rawHash, normHash, r.spec.ChangeDetection.Mode) {
				r.stats.AssertionsUnchanged++
				continue
			}

			supersedes := ""
			if len(open) > 0 {
				if supersedes, err = r.closeOpen(ctx, key, open); err != nil {
					r.rowError(sr.SourceRef, key, err)
					continue
				}
				r.stats.AssertionsModified++
			}

			a := r.newAssertion(key, rawHash, normHash, sr.SourceRef, supersedes)
			a.RelationshipType = sr.RelationshipType
			aID, err := r.store.InsertAssertion(ctx, a)
			if err != nil {
				r.rowError(sr.SourceRef, key, fmt.Errorf("insert assertion: %w", err))
				continue
			}
			if err := r.store.CreateAssertedRel(ctx, r.wid, fromID, aID, toID); err != nil {
				r.rowError(sr.SourceRef, key, fmt.Errorf("link relationship: %w", err))
				continue
			}
			r.cache.add(a)
			r.createdIDs = append(r.createdIDs, aID)
			if supersedes == "" {
				r.stats.AssertionsCreated++
				r.stats.RelationshipsCreated++
			}
		}
	}
}

// createProperty executes the property create path: value vertex,
// assertion vertex, both topology edges.
func (r *run) createProperty(ctx context.Context, entityID string, se tabular.StagedEntity,
	prop tabular.Property, key, rawHash, normHash string, valueType types.ValueType, supersedes string) error {

	pv := &types.PropertyValue{
		WorkspaceID: r.wid,
		PropertyKey: prop.Key,
		ValueType:   valueType,
	}
	if !prop.Value.IsNull() {
		display := prop.Value.Display()
		pv.Value = &display
	}
	pvID, err := r.store.InsertPropertyValue(ctx, pv)
	if err != nil {
		return fmt.Errorf("insert property value: %w", err)
	}

	a := r.newAssertion(key, rawHash, normHash, se.SourceRef, supersedes)
	a.RelationshipType = types.RelTypeHasProperty
	a.PropertyKey = prop.Key
	aID, err := r.store.InsertAssertion(ctx, a)
	if err != nil {
		return fmt.Errorf("insert assertion: %w", err)
	}
	if err := r.store.CreateAssertedRel(ctx, r.wid, entityID, aID, pvID); err != nil {
		return fmt.Errorf("link property: %w", err)
	}
	r.cache.add(a)
	r.createdIDs = append(r.createdIDs, aID)
	return nil
}

func (r *run) newAssertion(key, rawHash, normHash, sourceRef, supersedes string) *types.AssertionRecord {
	return &types.AssertionRecord{
		WorkspaceID:    r.wid,
		AssertionKey:   key,
		RawHash:        rawHash,
		NormalizedHash: normHash,
		SourceType:     types.SourceType(r.spec.SourceType),
		SourceRef:      sourceRef,
		SourceID:       r.opts.SourceID,
		ImportRunID:    r.importRunID,
		RecordedAt:     r.now,
		ValidFrom:      r.now,
		ScenarioID:     types.DefaultScenario,
		Confidence:     1.0,
		Supersedes:     supersedes,
	}
}

// closeOpen closes every open assertion under the key and returns the
// id the replacement supersedes: the most recently recorded closure.
// More than one open assertion means a prior invariant violation; the
// run repairs it and logs.
func (r *run) closeOpen(ctx context.Context, key string, open []*types.AssertionRecord) (string, error) {
	if len(open) > 1 {
		r.logger.Warn("multiple open assertions for key; closing all",
			"key", key, "count", len(open))
	}
	supersedes := open[0].AssertionID // lookup order is recorded_at desc
	for _, a := range open {
		if err := r.store.CloseAssertion(ctx, r.wid, a.AssertionID, r.now); err != nil {
			return "", fmt.Errorf("close assertion %s: %w", a.AssertionID, err)
		}
		r.cache.close(key, a.AssertionID)
		r.closedIDs = append(r.closedIDs, a.AssertionID)
	}
	return supersedes, nil
}

// closeDisappeared closes open assertions of the previous completed
// run of the same spec whose keys this run did not see.
func (r *run) closeDisappeared(ctx context.Context) error {
	prev, err := r.previousRun(ctx)
	if err != nil {
		return err
	}
	if prev == nil {
		return nil
	}

	prior, err := r.store.LookupAssertionsByImportRun(ctx, prev.ImportRunID)
	if err != nil {
		return fmt.Errorf("load previous run assertions: %w", err)
	}
	for _, a := range prior {
		if !a.IsOpen() {
			continue
		}
		if _, seen := r.seenKeys[a.AssertionKey]; seen {
			continue
		}
		if err := r.store.CloseAssertion(ctx, r.wid, a.AssertionID, r.now); err != nil {
			r.rowError("", a.AssertionKey, fmt.Errorf("close disappeared %s: %w", a.AssertionID, err))
			continue
		}
		r.stats.AssertionsClosed++
		r.closedIDs = append(r.closedIDs, a.AssertionID)
	}
	return nil
}

// previousRun finds the most recent completed run of the same spec,
// excluding this one.
func (r *run) previousRun(ctx context.Context) (*types.ImportRun, error) {
	runs, err := r.store.ListImportRuns(ctx, r.wid, 100)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	for _, ir := range runs {
		if ir.ImportRunID == r.importRunID {
			continue
		}
		if ir.SpecName != r.opts.SpecName {
			continue
		}
		if ir.Status != types.RunCompleted {
			continue
		}
		return ir, nil
	}
	return nil, nil
}

// recordChangeEvent writes the import_diff event when the run changed
// anything, linking every created and closed assertion.
func (r *run) recordChangeEvent(ctx context.Context) (string, error) {
	if len(r.createdIDs)+len(r.closedIDs) == 0 {
		return "", nil
	}

	actor := r.opts.Actor
	if actor == "" {
		actor = systemActor
	}
	stats := types.ChangeEventStats{
		Created:   r.stats.AssertionsCreated,
		Closed:    r.stats.AssertionsClosed,
		Modified:  r.stats.AssertionsModified,
		Unchanged: r.stats.AssertionsUnchanged,
	}
	statsJSON, _ := json.Marshal(stats)

	ce := &types.ChangeEvent{
		WorkspaceID: r.wid,
		EventType:   types.EventImportDiff,
		Description: fmt.Sprintf("Import run %s: %d created, %d modified, %d closed, %d unchanged",
			r.importRunID, r.stats.AssertionsCreated, r.stats.AssertionsModified,
			r.stats.AssertionsClosed, r.stats.AssertionsUnchanged),
		TS:          r.now,
		ImportRunID: r.importRunID,
		Actor:       actor,
		Stats:       string(statsJSON),
	}
	ceID, err := r.store.InsertChangeEvent(ctx, ce)
	if err != nil {
		return "", fmt.Errorf("insert change event: %w", err)
	}
	if err := r.store.LinkTriggeredBy(ctx, r.wid, ceID, r.importRunID); err != nil {
		return "", fmt.Errorf("link change event to run: %w", err)
	}
	for _, aID := range r.createdIDs {
		if err := r.store.LinkCreatedAssertion(ctx, r.wid, ceID, aID); err != nil {
			return "", fmt.Errorf("link created assertion: %w", err)
		}
	}
	for _, aID := range r.closedIDs {
		if err := r.store.LinkClosedAssertion(ctx, r.wid, ceID, aID); err != nil {
			return "", fmt.Errorf("link closed assertion: %w", err)
		}
	}
	return ceID, nil
}

func (r *run) rowError(sourceRef, key string, err error) {
	r.logger.Warn("row error", "run", r.importRunID, "source", sourceRef, "key", key, "error", err)
	r.rowErrors = append(r.rowErrors, RowError{SourceRef: sourceRef, Key: key, Message: err.Error()})
}

// matchesAny reports whether any open assertion carries the incoming
// hash under the configured change-detection mode.
func matchesAny(open []*types.AssertionRecord, rawHash, normHash, mode string) bool {
	for _, a := range open {
		if mode == ingestspec.ModeStrict {
			if a.RawHash == rawHash {
				return true
			}
		} else if a.NormalizedHash == normHash {
			return true
		}
	}
	return false
}

func entityMapKey(entityType, primaryKey string) string {
	return entityType + "\x00" + primaryKey
}

func marshalStats(s types.ImportStats) string {
	b, _ := json.Marshal(s)
	return string(b)
}
