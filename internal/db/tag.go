package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Tag is `(workspaceId, name)`, attached to tasks through the task_tags
// join table.
type Tag struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
}

const tagColumns = `id, workspace_id, name`

func scanTag(row pgx.Row) (Tag, error) {
	var t Tag
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.Name)
	return t, err
}

// GetOrCreateTag returns the existing tag by (workspaceId, name), creating
// it if absent. Tags have no independent lifecycle beyond a workspace.
func (q *Queries) GetOrCreateTag(ctx context.Context, workspaceID uuid.UUID, name string) (Tag, error) {
	query := `INSERT INTO tags (workspace_id, name) VALUES ($1, $2)
		ON CONFLICT (workspace_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING ` + tagColumns
	return scanTag(q.db.QueryRow(ctx, query, workspaceID, name))
}

// ListTagsByIDs returns every tag row in ids that belongs to workspaceID,
// used to validate a task's tagIds payload before linking them.
func (q *Queries) ListTagsByIDs(ctx context.Context, workspaceID uuid.UUID, ids []uuid.UUID) ([]Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags WHERE workspace_id = $1 AND id = ANY($2)`
	rows, err := q.db.Query(ctx, query, workspaceID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LinkTaskTag inserts a task_tags join row.
func (q *Queries) LinkTaskTag(ctx context.Context, taskID, tagID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `INSERT INTO task_tags (task_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, taskID, tagID)
	return err
}

// ListTagsForTask returns every tag attached to a task.
func (q *Queries) ListTagsForTask(ctx context.Context, taskID uuid.UUID) ([]Tag, error) {
	query := `SELECT t.id, t.workspace_id, t.name FROM tags t
		JOIN task_tags tt ON tt.tag_id = t.id WHERE tt.task_id = $1`
	rows, err := q.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
