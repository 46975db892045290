package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/weftdb/weft/internal/idgen"
	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/types"
)

const entityColumns = "entity_id, workspace_id, entity_type, primary_key, display_name, created_at, updated_at"

// UpsertEntity resolves (workspace, type, primary key) to an entity
// id, inserting the entity on first encounter. The unique key on the
// natural triple plus the transaction keeps concurrent upserts from
// minting two ids.
func (s *Store) UpsertEntity(ctx context.Context, workspaceID, entityType, primaryKey, displayName string) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, storage.Unavailable("upsert entity", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT entity_id FROM entities WHERE workspace_id = ? AND entity_type = ? AND primary_key = ?`,
		workspaceID, entityType, primaryKey).Scan(&existing)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, storage.Unavailable("upsert entity: lookup", err)
	}

	entityID := idgen.New(idgen.PrefixEntity)
	now := s.clock.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entities (`+entityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entityID, workspaceID, entityType, primaryKey, nullStr(displayName), now, now); err != nil {
		return "", false, storage.Unavailable("upsert entity: insert", err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, storage.Unavailable("upsert entity: commit", err)
	}
	return entityID, true, nil
}

// LookupEntity finds an entity by its natural key.
func (s *Store) LookupEntity(ctx context.Context, workspaceID, entityType, primaryKey string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE workspace_id = ? AND entity_type = ? AND primary_key = ?`,
		workspaceID, entityType, primaryKey)
	return scanEntity(row)
}

// GetEntity finds an entity by its system id.
func (s *Store) GetEntity(ctx context.Context, workspaceID, entityID string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE workspace_id = ? AND entity_id = ?`,
		workspaceID, entityID)
	return scanEntity(row)
}

// SearchEntities filters by entity type and/or primary-key prefix.
func (s *Store) SearchEntities(ctx context.Context, workspaceID, entityType, primaryKey string, limit int) ([]*types.Entity, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + entityColumns + ` FROM entities WHERE workspace_id = ?`
	args := []any{workspaceID}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, entityType)
	}
	if primaryKey != "" {
		query += ` AND primary_key LIKE ?`
		args = append(args, likePrefix(primaryKey))
	}
	query += ` ORDER BY entity_type, primary_key LIMIT ?`
	args = append(args, limit)

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Unavailable("search entities", err)
	}
	defer rows.Close()

	var out []*types.Entity
	for rows.Next() {
		e, err := scanEntityRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("search entities", err)
	}
	return out, nil
}

func scanEntity(row *sql.Row) (*types.Entity, error) {
	e, err := scanEntityRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func scanEntityRow(r rowScanner) (*types.Entity, error) {
	var e types.Entity
	var displayName sql.NullString
	if err := r.Scan(&e.EntityID, &e.WorkspaceID, &e.EntityType, &e.PrimaryKey, &displayName, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storage.Unavailable("scan entity", err)
	}
	e.DisplayName = strOrEmpty(displayName)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

// likePrefix escapes LIKE metacharacters and appends the wildcard.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
