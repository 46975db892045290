package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/weftdb/weft/internal/idgen"
	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/types"
)

const importRunColumns = `import_run_id, workspace_id, source_file, spec_name, started_at, completed_at, status, stats, error_message`

// InsertImportRun records the start of an ingestion.
func (s *Store) InsertImportRun(ctx context.Context, ir *types.ImportRun) (string, error) {
	if ir.ImportRunID == "" {
		ir.ImportRunID = idgen.New(idgen.PrefixImportRun)
	}
	if ir.StartedAt.IsZero() {
		ir.StartedAt = s.clock.Now()
	}
	if ir.Status == "" {
		ir.Status = types.RunRunning
	}
	_, err := s.execContext(ctx,
		`INSERT INTO import_runs (`+importRunColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ir.ImportRunID, ir.WorkspaceID, nullStr(ir.SourceFile), nullStr(ir.SpecName),
		ir.StartedAt.UTC(), nullTime(ir.CompletedAt), string(ir.Status),
		nullStr(ir.Stats), nullStr(ir.ErrorMessage))
	if err != nil {
		return "", storage.Unavailable("insert import run", err)
	}
	return ir.ImportRunID, nil
}

// UpdateImportRun rewrites the mutable completion fields of a run.
func (s *Store) UpdateImportRun(ctx context.Context, ir *types.ImportRun) error {
	res, err := s.execContext(ctx,
		`UPDATE import_runs SET completed_at = ?, status = ?, stats = ?, error_message = ?
		 WHERE workspace_id = ? AND import_run_id = ?`,
		nullTime(ir.CompletedAt), string(ir.Status), nullStr(ir.Stats), nullStr(ir.ErrorMessage),
		ir.WorkspaceID, ir.ImportRunID)
	if err != nil {
		return storage.Unavailable("update import run", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Unavailable("update import run", err)
	}
	if n == 0 {
		// A no-op update also affects zero rows; confirm absence.
		if _, getErr := s.GetImportRun(ctx, ir.WorkspaceID, ir.ImportRunID); getErr != nil {
			return getErr
		}
	}
	return nil
}

// GetImportRun fetches one run by id.
func (s *Store) GetImportRun(ctx context.Context, workspaceID, importRunID string) (*types.ImportRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+importRunColumns+` FROM import_runs WHERE workspace_id = ? AND import_run_id = ?`,
		workspaceID, importRunID)
	ir, err := scanImportRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return ir, nil
}

// ListImportRuns returns the workspace's runs, most recent first.
func (s *Store) ListImportRuns(ctx context.Context, workspaceID string, limit int) ([]*types.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.queryContext(ctx,
		`SELECT `+importRunColumns+` FROM import_runs
		 WHERE workspace_id = ? ORDER BY started_at DESC LIMIT ?`,
		workspaceID, limit)
	if err != nil {
		return nil, storage.Unavailable("list import runs", err)
	}
	defer rows.Close()
	var out []*types.ImportRun
	for rows.Next() {
		ir, err := scanImportRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ir)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("list import runs", err)
	}
	return out, nil
}

func scanImportRun(r rowScanner) (*types.ImportRun, error) {
	var ir types.ImportRun
	var sourceFile, specName, stats, errMsg sql.NullString
	var completedAt sql.NullTime
	var status string
	if err := r.Scan(&ir.ImportRunID, &ir.WorkspaceID, &sourceFile, &specName,
		&ir.StartedAt, &completedAt, &status, &stats, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storage.Unavailable("scan import run", err)
	}
	ir.SourceFile = strOrEmpty(sourceFile)
	ir.SpecName = strOrEmpty(specName)
	ir.Status = types.RunStatus(status)
	ir.Stats = strOrEmpty(stats)
	ir.ErrorMessage = strOrEmpty(errMsg)
	ir.StartedAt = ir.StartedAt.UTC()
	ir.CompletedAt = timePtr(completedAt)
	return &ir, nil
}
