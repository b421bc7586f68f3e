package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Note is a workspace-scoped freeform resource (§3.1 supplemental
// entities), access-gated the same as every other resource.
type Note struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Body        string
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const noteColumns = `id, workspace_id, body, created_by, created_at, updated_at`

func scanNote(row pgx.Row) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.WorkspaceID, &n.Body, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

// CreateNoteParams is the insert payload.
type CreateNoteParams struct {
	WorkspaceID uuid.UUID
	Body        string
	CreatedBy   uuid.UUID
}

// CreateNote inserts a new note row.
func (q *Queries) CreateNote(ctx context.Context, p CreateNoteParams) (Note, error) {
	query := `INSERT INTO notes (workspace_id, body, created_by)
		VALUES ($1, $2, $3)
		RETURNING ` + noteColumns
	return scanNote(q.db.QueryRow(ctx, query, p.WorkspaceID, p.Body, p.CreatedBy))
}

// GetNote looks up a note scoped to a workspace.
func (q *Queries) GetNote(ctx context.Context, workspaceID, id uuid.UUID) (Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = $1 AND workspace_id = $2`
	return scanNote(q.db.QueryRow(ctx, query, id, workspaceID))
}

// UpdateNote replaces a note's body.
func (q *Queries) UpdateNote(ctx context.Context, workspaceID, id uuid.UUID, body string) (Note, error) {
	query := `UPDATE notes SET body = $3, updated_at = now()
		WHERE id = $1 AND workspace_id = $2 RETURNING ` + noteColumns
	return scanNote(q.db.QueryRow(ctx, query, id, workspaceID, body))
}

// DeleteNote deletes a note row.
func (q *Queries) DeleteNote(ctx context.Context, workspaceID, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM notes WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	return err
}
