package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/weftdb/weft/internal/idgen"
	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/types"
)

const assertionColumns = `assertion_id, workspace_id, assertion_key, raw_hash, normalized_hash,
source_type, source_ref, source_id, import_run_id, recorded_at, valid_from, valid_to,
scenario_id, confidence, supersedes, relationship_type, property_key`

// assertionColumnsQualified is assertionColumns with each column prefixed
// by the `a` table alias, for queries that join other tables sharing
// column names (e.g. workspace_id on edges).
const assertionColumnsQualified = `a.assertion_id, a.workspace_id, a.assertion_key, a.raw_hash, a.normalized_hash,
a.source_type, a.source_ref, a.source_id, a.import_run_id, a.recorded_at, a.valid_from, a.valid_to,
a.scenario_id, a.confidence, a.supersedes, a.relationship_type, a.property_key`

// InsertAssertion persists a new assertion. The record's id is minted
// here when absent; hashes and temporal fields are written once and
// never rewritten afterwards.
func (s *Store) InsertAssertion(ctx context.Context, a *types.AssertionRecord) (string, error) {
	a.SetDefaults()
	if err := a.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if a.AssertionID == "" {
		a.AssertionID = idgen.New(idgen.PrefixAssertion)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assertions (`+assertionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AssertionID, a.WorkspaceID, a.AssertionKey, a.RawHash, a.NormalizedHash,
		string(a.SourceType), nullStr(a.SourceRef), nullStr(a.SourceID), nullStr(a.ImportRunID),
		fmtTime(a.RecordedAt), fmtTime(a.ValidFrom), fmtNullTime(a.ValidTo),
		a.ScenarioID, a.Confidence, nullStr(a.Supersedes), a.RelationshipType, nullStr(a.PropertyKey))
	if err != nil {
		return "", storage.Unavailable("insert assertion", err)
	}
	return a.AssertionID, nil
}

// CloseAssertion sets valid_to, the only in-place mutation the store
// permits on an assertion.
func (s *Store) CloseAssertion(ctx context.Context, workspaceID, assertionID string, validTo time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assertions SET valid_to = ? WHERE workspace_id = ? AND assertion_id = ?`,
		fmtTime(validTo), workspaceID, assertionID)
	if err != nil {
		return storage.Unavailable("close assertion", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Unavailable("close assertion", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// LookupAssertionsByKey returns the open assertions for one key in one
// scenario, newest recorded_at first. The query reads every candidate
// for the key; the valid_to IS NULL filter runs here on the client
// side of the result set, never inside a predicate.
func (s *Store) LookupAssertionsByKey(ctx context.Context, workspaceID, assertionKey, scenarioID string) ([]*types.AssertionRecord, error) {
	if scenarioID == "" {
		scenarioID = types.DefaultScenario
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assertionColumns+` FROM assertions
		 WHERE workspace_id = ? AND assertion_key = ? AND scenario_id = ?
		 ORDER BY recorded_at DESC`,
		workspaceID, assertionKey, scenarioID)
	if err != nil {
		return nil, storage.Unavailable("lookup assertions by key", err)
	}
	all, err := collectAssertions(rows)
	if err != nil {
		return nil, err
	}
	open := all[:0]
	for _, a := range all {
		if a.IsOpen() {
			open = append(open, a)
		}
	}
	return open, nil
}

// LookupAssertionsByImportRun returns every assertion a run produced,
// open or closed.
func (s *Store) LookupAssertionsByImportRun(ctx context.Context, importRunID string) ([]*types.AssertionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assertionColumns+` FROM assertions WHERE import_run_id = ? ORDER BY recorded_at`,
		importRunID)
	if err != nil {
		return nil, storage.Unavailable("lookup assertions by import run", err)
	}
	return collectAssertions(rows)
}

// GetAssertionsForEntity walks ASSERTED_REL backwards: every assertion
// whose source edge starts at the entity vertex.
func (s *Store) GetAssertionsForEntity(ctx context.Context, workspaceID, entityID string) ([]*types.AssertionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assertionColumnsQualified+` FROM assertions a
		 JOIN edges e ON e.dst_id = a.assertion_id AND e.edge_type = ?
		 WHERE e.src_id = ? AND a.workspace_id = ?
		 ORDER BY a.recorded_at`,
		types.EdgeAssertedRel, entityID, workspaceID)
	if err != nil {
		return nil, storage.Unavailable("get assertions for entity", err)
	}
	return collectAssertions(rows)
}

// InsertPropertyValue persists the value vertex of a property claim.
func (s *Store) InsertPropertyValue(ctx context.Context, pv *types.PropertyValue) (string, error) {
	if pv.PropertyValueID == "" {
		pv.PropertyValueID = idgen.New(idgen.PrefixPropertyValue)
	}
	var value any
	if pv.Value != nil {
		value = *pv.Value
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO property_values (property_value_id, workspace_id, property_key, value, value_type)
		 VALUES (?, ?, ?, ?, ?)`,
		pv.PropertyValueID, pv.WorkspaceID, pv.PropertyKey, value, string(pv.ValueType))
	if err != nil {
		return "", storage.Unavailable("insert property value", err)
	}
	return pv.PropertyValueID, nil
}

// GetPropertyValue fetches one value vertex.
func (s *Store) GetPropertyValue(ctx context.Context, workspaceID, propertyValueID string) (*types.PropertyValue, error) {
	var pv types.PropertyValue
	var value sql.NullString
	var valueType string
	err := s.db.QueryRowContext(ctx,
		`SELECT property_value_id, workspace_id, property_key, value, value_type
		 FROM property_values WHERE workspace_id = ? AND property_value_id = ?`,
		workspaceID, propertyValueID).
		Scan(&pv.PropertyValueID, &pv.WorkspaceID, &pv.PropertyKey, &value, &valueType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.Unavailable("get property value", err)
	}
	if value.Valid {
		pv.Value = &value.String
	}
	pv.ValueType = types.ValueType(valueType)
	return &pv, nil
}

// CreateAssertedRel inserts the two directed edges of the assertion
// topology in one transaction: from → assertion, assertion → to.
func (s *Store) CreateAssertedRel(ctx context.Context, workspaceID, fromID, assertionID, toID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unavailable("create asserted rel", err)
	}
	defer tx.Rollback()

	const insertEdge = `INSERT OR IGNORE INTO edges (workspace_id, src_id, edge_type, dst_id, props) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertEdge, workspaceID, fromID, types.EdgeAssertedRel, assertionID, assertionID); err != nil {
		return storage.Unavailable("create asserted rel: in-edge", err)
	}
	if _, err := tx.ExecContext(ctx, insertEdge, workspaceID, assertionID, types.EdgeAssertedRel, toID, assertionID); err != nil {
		return storage.Unavailable("create asserted rel: out-edge", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Unavailable("create asserted rel: commit", err)
	}
	return nil
}

// GetAssertedTarget follows ASSERTED_REL out of the assertion vertex.
func (s *Store) GetAssertedTarget(ctx context.Context, workspaceID, assertionID string) (string, error) {
	var dst string
	err := s.db.QueryRowContext(ctx,
		`SELECT dst_id FROM edges WHERE workspace_id = ? AND src_id = ? AND edge_type = ?`,
		workspaceID, assertionID, types.EdgeAssertedRel).Scan(&dst)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", storage.Unavailable("get asserted target", err)
	}
	return dst, nil
}

func collectAssertions(rows *sql.Rows) ([]*types.AssertionRecord, error) {
	defer rows.Close()
	var out []*types.AssertionRecord
	for rows.Next() {
		a, err := scanAssertion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("collect assertions", err)
	}
	return out, nil
}

func scanAssertion(r rowScanner) (*types.AssertionRecord, error) {
	var a types.AssertionRecord
	var sourceType string
	var sourceRef, sourceID, importRunID, supersedes, propertyKey, validTo sql.NullString
	var recordedAt, validFrom string
	if err := r.Scan(&a.AssertionID, &a.WorkspaceID, &a.AssertionKey, &a.RawHash, &a.NormalizedHash,
		&sourceType, &sourceRef, &sourceID, &importRunID, &recordedAt, &validFrom, &validTo,
		&a.ScenarioID, &a.Confidence, &supersedes, &a.RelationshipType, &propertyKey); err != nil {
		return nil, storage.Unavailable("scan assertion", err)
	}
	a.SourceType = types.SourceType(sourceType)
	a.SourceRef = strOrEmpty(sourceRef)
	a.SourceID = strOrEmpty(sourceID)
	a.ImportRunID = strOrEmpty(importRunID)
	a.Supersedes = strOrEmpty(supersedes)
	a.PropertyKey = strOrEmpty(propertyKey)

	var err error
	if a.RecordedAt, err = parseTime(recordedAt); err != nil {
		return nil, fmt.Errorf("assertion %s recorded_at: %w", a.AssertionID, err)
	}
	if a.ValidFrom, err = parseTime(validFrom); err != nil {
		return nil, fmt.Errorf("assertion %s valid_from: %w", a.AssertionID, err)
	}
	if a.ValidTo, err = parseNullTime(validTo); err != nil {
		return nil, fmt.Errorf("assertion %s valid_to: %w", a.AssertionID, err)
	}
	return &a, nil
}

// GetAssertion fetches one assertion by id.
func (s *Store) GetAssertion(ctx context.Context, workspaceID, assertionID string) (*types.AssertionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assertionColumns+` FROM assertions WHERE workspace_id = ? AND assertion_id = ?`,
		workspaceID, assertionID)
	a, err := scanAssertion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}
