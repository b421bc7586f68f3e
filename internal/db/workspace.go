package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Workspace is a tenant-scoping container, not a PostgreSQL schema: all
// resource rows carry its id rather than living in a dedicated namespace.
type Workspace struct {
	ID        uuid.UUID
	Slug      string
	Name      string
	CreatedBy uuid.UUID
	Settings  []byte // JSON, validated against the workspace-settings schema by the caller
	CreatedAt time.Time
	UpdatedAt time.Time
}

const workspaceColumns = `id, slug, name, created_by, settings, created_at, updated_at`

func scanWorkspace(row pgx.Row) (Workspace, error) {
	var w Workspace
	err := row.Scan(&w.ID, &w.Slug, &w.Name, &w.CreatedBy, &w.Settings, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

// CreateWorkspaceParams is the insert payload.
type CreateWorkspaceParams struct {
	Slug      string
	Name      string
	CreatedBy uuid.UUID
	Settings  []byte
}

// CreateWorkspace inserts a new workspace row. Callers run this inside
// WithTransaction alongside the owner Membership insert (§4.5).
func (q *Queries) CreateWorkspace(ctx context.Context, p CreateWorkspaceParams) (Workspace, error) {
	query := `INSERT INTO workspaces (slug, name, created_by, settings)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + workspaceColumns
	return scanWorkspace(q.db.QueryRow(ctx, query, p.Slug, p.Name, p.CreatedBy, p.Settings))
}

// GetWorkspaceBySlug looks up a workspace by its globally unique slug.
func (q *Queries) GetWorkspaceBySlug(ctx context.Context, slug string) (Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE slug = $1`
	return scanWorkspace(q.db.QueryRow(ctx, query, slug))
}

// GetWorkspaceByID looks up a workspace by id.
func (q *Queries) GetWorkspaceByID(ctx context.Context, id uuid.UUID) (Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE id = $1`
	return scanWorkspace(q.db.QueryRow(ctx, query, id))
}

// UpdateWorkspace overwrites a workspace's name and settings blob.
func (q *Queries) UpdateWorkspace(ctx context.Context, id uuid.UUID, name string, settings []byte) (Workspace, error) {
	query := `UPDATE workspaces SET name = $2, settings = $3, updated_at = now()
		WHERE id = $1 RETURNING ` + workspaceColumns
	return scanWorkspace(q.db.QueryRow(ctx, query, id, name, settings))
}

// DeleteWorkspace removes a workspace row. Resource rows cascade via FK.
func (q *Queries) DeleteWorkspace(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	return err
}

// SlugExists reports whether a workspace already uses slug; workspace
// creation calls it to reject a slug that is taken.
func (q *Queries) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM workspaces WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}
