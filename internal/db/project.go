package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Project groups tasks within a workspace.
type Project struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const projectColumns = `id, workspace_id, name, created_by, created_at, updated_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreateProjectParams is the insert payload.
type CreateProjectParams struct {
	WorkspaceID uuid.UUID
	Name        string
	CreatedBy   uuid.UUID
}

// CreateProject inserts a new project row.
func (q *Queries) CreateProject(ctx context.Context, p CreateProjectParams) (Project, error) {
	query := `INSERT INTO projects (workspace_id, name, created_by)
		VALUES ($1, $2, $3)
		RETURNING ` + projectColumns
	return scanProject(q.db.QueryRow(ctx, query, p.WorkspaceID, p.Name, p.CreatedBy))
}

// GetProject looks up a project scoped to a workspace.
func (q *Queries) GetProject(ctx context.Context, workspaceID, id uuid.UUID) (Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1 AND workspace_id = $2`
	return scanProject(q.db.QueryRow(ctx, query, id, workspaceID))
}

// ListProjects returns every project in a workspace, backing the
// projects_list:{workspaceId} cache key.
func (q *Queries) ListProjects(ctx context.Context, workspaceID uuid.UUID) ([]Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE workspace_id = $1 ORDER BY created_at ASC`
	rows, err := q.db.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProject renames a project.
func (q *Queries) UpdateProject(ctx context.Context, workspaceID, id uuid.UUID, name string) (Project, error) {
	query := `UPDATE projects SET name = $3, updated_at = now()
		WHERE id = $1 AND workspace_id = $2 RETURNING ` + projectColumns
	return scanProject(q.db.QueryRow(ctx, query, id, workspaceID, name))
}

// DeleteProject deletes a project row; tasks keep project_id set to NULL
// via FK ON DELETE SET NULL rather than cascading deletion.
func (q *Queries) DeleteProject(ctx context.Context, workspaceID, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM projects WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	return err
}
