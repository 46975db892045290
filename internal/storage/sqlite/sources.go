package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/weftdb/weft/internal/idgen"
	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/types"
)

const sourceColumns = `source_id, workspace_id, source_name, source_type, authority_rank, authority_domains, update_frequency, description`

// UpsertSource registers a source or rewrites its metadata. Identity
// is (workspace_id, source_name); the id survives updates.
func (s *Store) UpsertSource(ctx context.Context, src *types.Source) (string, error) {
	domains, err := marshalDomains(src.AuthorityDomains)
	if err != nil {
		return "", fmt.Errorf("%w: authority domains: %v", storage.ErrInvalidInput, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", storage.Unavailable("upsert source", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT source_id FROM sources WHERE workspace_id = ? AND source_name = ?`,
		src.WorkspaceID, src.SourceName).Scan(&existingID)
	switch {
	case err == nil:
		src.SourceID = existingID
		_, err = tx.ExecContext(ctx,
			`UPDATE sources SET source_type = ?, authority_rank = ?, authority_domains = ?,
			 update_frequency = ?, description = ? WHERE source_id = ?`,
			string(src.SourceType), src.AuthorityRank, domains,
			nullStr(src.UpdateFrequency), nullStr(src.Description), existingID)
		if err != nil {
			return "", storage.Unavailable("upsert source: update", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		if src.SourceID == "" {
			src.SourceID = idgen.New(idgen.PrefixSource)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sources (`+sourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			src.SourceID, src.WorkspaceID, src.SourceName, string(src.SourceType),
			src.AuthorityRank, domains, nullStr(src.UpdateFrequency), nullStr(src.Description))
		if err != nil {
			return "", storage.Unavailable("upsert source: insert", err)
		}
	default:
		return "", storage.Unavailable("upsert source: lookup", err)
	}

	if err := tx.Commit(); err != nil {
		return "", storage.Unavailable("upsert source: commit", err)
	}
	return src.SourceID, nil
}

// GetSource fetches one source by id.
func (s *Store) GetSource(ctx context.Context, workspaceID, sourceID string) (*types.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE workspace_id = ? AND source_id = ?`,
		workspaceID, sourceID)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return src, nil
}

// ListSources returns the workspace's sources ordered by authority,
// most authoritative (lowest rank) first.
func (s *Store) ListSources(ctx context.Context, workspaceID string) ([]*types.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE workspace_id = ? ORDER BY authority_rank, source_name`,
		workspaceID)
	if err != nil {
		return nil, storage.Unavailable("list sources", err)
	}
	defer rows.Close()
	var out []*types.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("list sources", err)
	}
	return out, nil
}

// GetSourceAuthorityMap returns source_id → authority_rank, the input
// conflict resolution ranks competing assertions with.
func (s *Store) GetSourceAuthorityMap(ctx context.Context, workspaceID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, authority_rank FROM sources WHERE workspace_id = ?`,
		workspaceID)
	if err != nil {
		return nil, storage.Unavailable("source authority map", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var id string
		var rank int
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, storage.Unavailable("source authority map", err)
		}
		out[id] = rank
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("source authority map", err)
	}
	return out, nil
}

func scanSource(r rowScanner) (*types.Source, error) {
	var src types.Source
	var sourceType string
	var domains, updateFreq, description sql.NullString
	if err := r.Scan(&src.SourceID, &src.WorkspaceID, &src.SourceName, &sourceType,
		&src.AuthorityRank, &domains, &updateFreq, &description); err != nil {
		return nil, storage.Unavailable("scan source", err)
	}
	src.SourceType = types.SourceType(sourceType)
	src.UpdateFrequency = strOrEmpty(updateFreq)
	src.Description = strOrEmpty(description)
	if domains.Valid && domains.String != "" {
		if err := json.Unmarshal([]byte(domains.String), &src.AuthorityDomains); err != nil {
			return nil, fmt.Errorf("source %s authority_domains: %w", src.SourceID, err)
		}
	}
	return &src, nil
}

func marshalDomains(domains []string) (any, error) {
	if len(domains) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(domains)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
