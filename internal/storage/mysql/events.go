package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/weftdb/weft/internal/idgen"
	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/types"
)

// InsertChangeEvent persists an event vertex.
func (s *Store) InsertChangeEvent(ctx context.Context, ce *types.ChangeEvent) (string, error) {
	if ce.ChangeEventID == "" {
		ce.ChangeEventID = idgen.New(idgen.PrefixChangeEvent)
	}
	_, err := s.execContext(ctx,
		`INSERT INTO change_events (change_event_id, workspace_id, event_type, description, ts, import_run_id, actor, stats)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ce.ChangeEventID, ce.WorkspaceID, string(ce.EventType), nullStr(ce.Description),
		ce.TS.UTC(), nullStr(ce.ImportRunID), nullStr(ce.Actor), nullStr(ce.Stats))
	if err != nil {
		return "", storage.Unavailable("insert change event", err)
	}
	return ce.ChangeEventID, nil
}

// GetChangeEventByImportRun returns the event a run triggered, if any.
func (s *Store) GetChangeEventByImportRun(ctx context.Context, importRunID string) (*types.ChangeEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT change_event_id, workspace_id, event_type, description, ts, import_run_id, actor, stats
		 FROM change_events WHERE import_run_id = ? ORDER BY ts DESC LIMIT 1`,
		importRunID)

	var ce types.ChangeEvent
	var eventType string
	var description, runID, actor, stats sql.NullString
	err := row.Scan(&ce.ChangeEventID, &ce.WorkspaceID, &eventType, &description, &ce.TS, &runID, &actor, &stats)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.Unavailable("get change event", err)
	}
	ce.EventType = types.EventType(eventType)
	ce.Description = strOrEmpty(description)
	ce.ImportRunID = strOrEmpty(runID)
	ce.Actor = strOrEmpty(actor)
	ce.Stats = strOrEmpty(stats)
	ce.TS = ce.TS.UTC()
	return &ce, nil
}

// ListChangeEventAssertions replays an event's provenance edges.
func (s *Store) ListChangeEventAssertions(ctx context.Context, workspaceID, changeEventID string) (created, closed []string, err error) {
	created, err = s.edgeTargets(ctx, workspaceID, changeEventID, types.EdgeCreatedAssertion)
	if err != nil {
		return nil, nil, err
	}
	closed, err = s.edgeTargets(ctx, workspaceID, changeEventID, types.EdgeClosedAssertion)
	if err != nil {
		return nil, nil, err
	}
	return created, closed, nil
}

// LinkCreatedAssertion records ChangeEvent → Assertion provenance for
// an assertion the event created.
func (s *Store) LinkCreatedAssertion(ctx context.Context, workspaceID, changeEventID, assertionID string) error {
	return s.insertEdge(ctx, workspaceID, changeEventID, types.EdgeCreatedAssertion, assertionID, "created")
}

// LinkClosedAssertion records ChangeEvent → Assertion provenance for
// an assertion the event closed.
func (s *Store) LinkClosedAssertion(ctx context.Context, workspaceID, changeEventID, assertionID string) error {
	return s.insertEdge(ctx, workspaceID, changeEventID, types.EdgeClosedAssertion, assertionID, "closed")
}

// LinkTriggeredBy records ChangeEvent → ImportRun causality.
func (s *Store) LinkTriggeredBy(ctx context.Context, workspaceID, changeEventID, importRunID string) error {
	return s.insertEdge(ctx, workspaceID, changeEventID, types.EdgeTriggeredBy, importRunID, "import")
}

func (s *Store) insertEdge(ctx context.Context, workspaceID, srcID, edgeType, dstID, props string) error {
	_, err := s.execContext(ctx,
		`INSERT IGNORE INTO edges (workspace_id, src_id, edge_type, dst_id, props) VALUES (?, ?, ?, ?, ?)`,
		workspaceID, srcID, edgeType, dstID, nullStr(props))
	if err != nil {
		return storage.Unavailable("insert edge "+edgeType, err)
	}
	return nil
}

func (s *Store) edgeTargets(ctx context.Context, workspaceID, srcID, edgeType string) ([]string, error) {
	rows, err := s.queryContext(ctx,
		`SELECT dst_id FROM edges WHERE workspace_id = ? AND src_id = ? AND edge_type = ?`,
		workspaceID, srcID, edgeType)
	if err != nil {
		return nil, storage.Unavailable("edge targets "+edgeType, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var dst string
		if err := rows.Scan(&dst); err != nil {
			return nil, storage.Unavailable("edge targets "+edgeType, err)
		}
		out = append(out, dst)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("edge targets "+edgeType, err)
	}
	return out, nil
}
