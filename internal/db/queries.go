package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/pied/internal/errors"
)

// Node is a stored relay value at a path.
type Node struct {
	Path      string
	ValueJSON string
	UpdatedAt int64
}

// CacheRow is a stored local cache entry.
type CacheRow struct {
	Key        string
	Kind       string // "raw" or "envelope"
	Token      string
	EditorName *string
	EditedAt   *string // ISO-8601
	UpdatedAt  int64
}

// PutNode inserts or replaces the value stored at path.
func PutNode(ctx context.Context, db *sql.DB, path, valueJSON string) error {
	query := `
		INSERT INTO nodes (path, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, path, valueJSON, time.Now().UnixMilli()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteNode removes the value stored at path. Missing paths are not an error.
func DeleteNode(ctx context.Context, db *sql.DB, path string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM nodes WHERE path = ?`, path); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetNode retrieves the value stored at path.
func GetNode(ctx context.Context, db *sql.DB, path string) (*Node, error) {
	var n Node
	row := db.QueryRowContext(ctx, `SELECT path, value_json, updated_at FROM nodes WHERE path = ?`, path)
	err := row.Scan(&n.Path, &n.ValueJSON, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(path)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &n, nil
}

// ListNodes returns every node whose path starts with prefix, ordered by path.
// An empty prefix lists all nodes.
func ListNodes(ctx context.Context, db *sql.DB, prefix string) ([]Node, error) {
	query := `SELECT path, value_json, updated_at FROM nodes`
	args := []any{}
	if prefix != "" {
		query += ` WHERE path LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(prefix)+"%")
	}
	query += ` ORDER BY path`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.Path, &n.ValueJSON, &n.UpdatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return nodes, nil
}

// PutCacheEntry inserts or replaces a local cache entry.
func PutCacheEntry(ctx context.Context, db *sql.DB, r *CacheRow) error {
	query := `
		INSERT INTO cache_entries (cache_key, kind, token, editor_name, edited_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			kind = excluded.kind,
			token = excluded.token,
			editor_name = excluded.editor_name,
			edited_at = excluded.edited_at,
			updated_at = excluded.updated_at
	`
	updatedAt := r.UpdatedAt
	if updatedAt == 0 {
		updatedAt = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx, query,
		r.Key, r.Kind, r.Token, toNullString(r.EditorName), toNullString(r.EditedAt), updatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetCacheEntry retrieves a local cache entry by key.
func GetCacheEntry(ctx context.Context, db *sql.DB, key string) (*CacheRow, error) {
	var (
		r          CacheRow
		editorName sql.NullString
		editedAt   sql.NullString
	)
	row := db.QueryRowContext(ctx, `
		SELECT cache_key, kind, token, editor_name, edited_at, updated_at
		FROM cache_entries
		WHERE cache_key = ?
	`, key)
	err := row.Scan(&r.Key, &r.Kind, &r.Token, &editorName, &editedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(key)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	r.EditorName = fromNullString(editorName)
	r.EditedAt = fromNullString(editedAt)
	return &r, nil
}

// GetSetting retrieves a local setting.
func GetSetting(ctx context.Context, db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFound(key)
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return value, nil
}

// PutSetting inserts or replaces a local setting.
func PutSetting(ctx context.Context, db *sql.DB, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, key, value, time.Now().UnixMilli()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// escapeLike escapes LIKE wildcards so prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
