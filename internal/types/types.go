// Package types defines the core data structures of the weft assertion graph.
package types

import (
	"fmt"
	"strconv"
	"time"
)

// DefaultScenario is the overlay every assertion belongs to unless an
// explicit scenario is requested.
const DefaultScenario = "base"

// RelTypeHasProperty marks an assertion as a property claim. Any other
// relationship_type is a domain relationship between two entities.
const RelTypeHasProperty = "HAS_PROPERTY"

// UnknownAuthorityRank is assigned to assertions whose source is not in
// the workspace authority map. Lower ranks are more authoritative, so
// unknown sources sort last.
const UnknownAuthorityRank = 999

// Entity is a real-world thing identified by (workspace, type, primary key).
// Entities are created on first encounter during ingestion and never
// deleted by the engine.
type Entity struct {
	EntityID    string    `json:"entity_id"`
	WorkspaceID string    `json:"workspace_id"`
	EntityType  string    `json:"entity_type"`
	PrimaryKey  string    `json:"primary_key"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AssertionRecord is a first-class, timestamped claim about a property
// value or a relationship. Competing claims share an assertion key.
// Records are append-only: after insert, only ValidTo is ever written.
type AssertionRecord struct {
	AssertionID      string     `json:"assertion_id"`
	WorkspaceID      string     `json:"workspace_id"`
	AssertionKey     string     `json:"assertion_key"`
	RawHash          string     `json:"raw_hash"`
	NormalizedHash   string     `json:"normalized_hash"`
	SourceType       SourceType `json:"source_type"`
	SourceRef        string     `json:"source_ref,omitempty"`
	SourceID         string     `json:"source_id,omitempty"`
	ImportRunID      string     `json:"import_run_id,omitempty"`
	RecordedAt       time.Time  `json:"recorded_at"`
	ValidFrom        time.Time  `json:"valid_from"`
	ValidTo          *time.Time `json:"valid_to,omitempty"` // nil while the claim is open
	ScenarioID       string     `json:"scenario_id"`
	Confidence       float64    `json:"confidence"`
	Supersedes       string     `json:"supersedes,omitempty"` // assertion closed by this one
	RelationshipType string     `json:"relationship_type"`
	PropertyKey      string     `json:"property_key,omitempty"` // set iff RelationshipType == HAS_PROPERTY
}

// IsOpen reports whether the assertion is currently valid (no closure).
func (a *AssertionRecord) IsOpen() bool {
	return a.ValidTo == nil
}

// IsProperty reports whether this is a property claim rather than a
// domain relationship.
func (a *AssertionRecord) IsProperty() bool {
	return a.RelationshipType == RelTypeHasProperty
}

// Validate checks structural invariants before insert.
func (a *AssertionRecord) Validate() error {
	if a.WorkspaceID == "" {
		return fmt.Errorf("assertion workspace_id is required")
	}
	if a.AssertionKey == "" {
		return fmt.Errorf("assertion_key is required")
	}
	if a.RawHash == "" || a.NormalizedHash == "" {
		return fmt.Errorf("assertion %s: raw_hash and normalized_hash are required", a.AssertionKey)
	}
	if !a.SourceType.IsValid() {
		return fmt.Errorf("invalid source_type: %s", a.SourceType)
	}
	if a.Confidence < 0.0 || a.Confidence > 1.0 {
		return fmt.Errorf("confidence %v out of range [0,1]", a.Confidence)
	}
	if a.ValidTo != nil && a.ValidTo.Before(a.ValidFrom) {
		return fmt.Errorf("valid_to precedes valid_from for %s", a.AssertionKey)
	}
	if a.RelationshipType == "" {
		return fmt.Errorf("relationship_type is required")
	}
	if a.RelationshipType == RelTypeHasProperty && a.PropertyKey == "" {
		return fmt.Errorf("property assertion %s missing property_key", a.AssertionKey)
	}
	return nil
}

// SetDefaults fills zero-valued fields with their documented defaults.
func (a *AssertionRecord) SetDefaults() {
	if a.ScenarioID == "" {
		a.ScenarioID = DefaultScenario
	}
	if a.Confidence == 0 {
		a.Confidence = 1.0
	}
}

// PropertyValue carries the concrete typed value of one property
// assertion. Exactly one exists per HAS_PROPERTY assertion.
type PropertyValue struct {
	PropertyValueID string    `json:"property_value_id"`
	WorkspaceID     string    `json:"workspace_id"`
	PropertyKey     string    `json:"property_key"`
	Value           *string   `json:"value"` // nil when the cell was empty
	ValueType       ValueType `json:"value_type"`
}

// ChangeEvent groups the mutations of a single cause (import run,
// manual edit, scenario delta). The timestamp field is named TS because
// the original graph backend reserves "timestamp"; every driver keeps
// the column name ts.
type ChangeEvent struct {
	ChangeEventID string    `json:"change_event_id"`
	WorkspaceID   string    `json:"workspace_id"`
	EventType     EventType `json:"event_type"`
	Description   string    `json:"description,omitempty"`
	TS            time.Time `json:"ts"`
	ImportRunID   string    `json:"import_run_id,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Stats         string    `json:"stats,omitempty"` // opaque JSON counters
}

// ImportRun is the execution record of one ingestion.
type ImportRun struct {
	ImportRunID  string     `json:"import_run_id"`
	WorkspaceID  string     `json:"workspace_id"`
	SourceFile   string     `json:"source_file,omitempty"`
	SpecName     string     `json:"spec_name,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Status       RunStatus  `json:"status"`
	Stats        string     `json:"stats,omitempty"` // JSON-encoded ImportStats
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Source is registered provenance metadata consulted by conflict
// resolution. AuthorityRank: lower = more authoritative.
type Source struct {
	SourceID         string     `json:"source_id"`
	WorkspaceID      string     `json:"workspace_id"`
	SourceName       string     `json:"source_name"`
	SourceType       SourceType `json:"source_type"`
	AuthorityRank    int        `json:"authority_rank"`
	AuthorityDomains []string   `json:"authority_domains,omitempty"`
	UpdateFrequency  string     `json:"update_frequency,omitempty"`
	Description      string     `json:"description,omitempty"`
}

// ImportStats are the counters accumulated over one run. The JSON keys
// are a stable contract; they appear verbatim in ImportRun.Stats.
type ImportStats struct {
	EntitiesCreated      int `json:"entities_created"`
	EntitiesExisting     int `json:"entities_existing"`
	AssertionsCreated    int `json:"assertions_created"`
	AssertionsClosed     int `json:"assertions_closed"`
	AssertionsModified   int `json:"assertions_modified"`
	AssertionsUnchanged  int `json:"assertions_unchanged"`
	RelationshipsCreated int `json:"relationships_created"`
	Errors               int `json:"errors"`
}

// ChangeEventStats are the counters stored on a ChangeEvent vertex.
type ChangeEventStats struct {
	Created   int `json:"created"`
	Closed    int `json:"closed"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
}

// SourceType attributes an assertion to the kind of system it came from.
type SourceType string

const (
	SourceExcel        SourceType = "excel"
	SourceAPI          SourceType = "api"
	SourceManual       SourceType = "manual"
	SourceLLMExtracted SourceType = "llm_extracted"
	SourceComputed     SourceType = "computed"
)

// IsValid checks if the source type is one of the known values.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceExcel, SourceAPI, SourceManual, SourceLLMExtracted, SourceComputed:
		return true
	}
	return false
}

// EventType classifies a ChangeEvent's cause.
type EventType string

const (
	EventImportDiff    EventType = "import_diff"
	EventManualResolve EventType = "manual_resolve"
	EventScenarioDelta EventType = "scenario_delta"
	EventManualEdit    EventType = "manual_edit"
)

// IsValid checks if the event type is one of the known values.
func (e EventType) IsValid() bool {
	switch e {
	case EventImportDiff, EventManualResolve, EventScenarioDelta, EventManualEdit:
		return true
	}
	return false
}

// ValueType is the declared or inferred type of a property value.
type ValueType string

const (
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueDate    ValueType = "date"
	ValueBoolean ValueType = "boolean"
	ValueJSON    ValueType = "json"
)

// IsValid checks if the value type is one of the known values.
func (v ValueType) IsValid() bool {
	switch v {
	case ValueString, ValueNumber, ValueDate, ValueBoolean, ValueJSON:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of an ImportRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IsValid checks if the run status is one of the known values.
func (r RunStatus) IsValid() bool {
	switch r {
	case RunRunning, RunCompleted, RunFailed:
		return true
	}
	return false
}

// ViewMode selects between the single-winner projection and the full
// claim list when reading an entity.
type ViewMode string

const (
	ViewResolved  ViewMode = "resolved"
	ViewAllClaims ViewMode = "all_claims"
)

// IsValid checks if the view mode is one of the known values.
func (v ViewMode) IsValid() bool {
	return v == ViewResolved || v == ViewAllClaims
}

// Edge types of the persisted graph. ASSERTED_REL always exists as two
// directed edges with the assertion vertex in the middle.
const (
	EdgeAssertedRel      = "ASSERTED_REL"
	EdgeCreatedAssertion = "CREATED_ASSERTION"
	EdgeClosedAssertion  = "CLOSED_ASSERTION"
	EdgeTriggeredBy      = "TRIGGERED_BY"
)

// Edge is one directed edge row as stored by a driver.
type Edge struct {
	WorkspaceID string `json:"workspace_id"`
	SrcID       string `json:"src_id"`
	EdgeType    string `json:"edge_type"`
	DstID       string `json:"dst_id"`
	Props       string `json:"props,omitempty"`
}

// InferValueType maps a cell to the ValueType persisted with its
// PropertyValue vertex.
func InferValueType(c Cell) ValueType {
	switch c.Kind {
	case CellBool:
		return ValueBoolean
	case CellInt, CellFloat:
		return ValueNumber
	case CellTime:
		return ValueDate
	case CellJSON:
		return ValueJSON
	default:
		return ValueString
	}
}

// FormatFloat renders a float the way cell coercion displays it:
// shortest representation that round-trips, fixed notation for the
// magnitudes spreadsheets produce.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
