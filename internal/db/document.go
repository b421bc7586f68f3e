package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Document is a workspace-scoped resource (§3's abstract Resource): access
// is gated solely through its workspace membership, never a per-row ACL.
type Document struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Title       string
	Body        string
	CreatedBy   uuid.UUID
	Archived    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const documentColumns = `id, workspace_id, title, body, created_by, archived, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.WorkspaceID, &d.Title, &d.Body, &d.CreatedBy, &d.Archived, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// CreateDocumentParams is the insert payload.
type CreateDocumentParams struct {
	WorkspaceID uuid.UUID
	Title       string
	Body        string
	CreatedBy   uuid.UUID
}

// CreateDocument inserts a new document row.
func (q *Queries) CreateDocument(ctx context.Context, p CreateDocumentParams) (Document, error) {
	query := `INSERT INTO documents (workspace_id, title, body, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + documentColumns
	return scanDocument(q.db.QueryRow(ctx, query, p.WorkspaceID, p.Title, p.Body, p.CreatedBy))
}

// GetDocument looks up a document by id, scoped to a workspace so a
// document from another workspace never leaks through a guessed id.
func (q *Queries) GetDocument(ctx context.Context, workspaceID, id uuid.UUID) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND workspace_id = $2`
	return scanDocument(q.db.QueryRow(ctx, query, id, workspaceID))
}

// ListDocuments returns a workspace's non-archived documents, backing the
// documents_list:{workspaceId} cached listing.
func (q *Queries) ListDocuments(ctx context.Context, workspaceID uuid.UUID) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE workspace_id = $1 AND archived = false ORDER BY updated_at DESC`
	rows, err := q.db.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.Title, &d.Body, &d.CreatedBy, &d.Archived, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDocument updates title/body.
func (q *Queries) UpdateDocument(ctx context.Context, workspaceID, id uuid.UUID, title, body string) (Document, error) {
	query := `UPDATE documents SET title = $3, body = $4, updated_at = now()
		WHERE id = $1 AND workspace_id = $2 RETURNING ` + documentColumns
	return scanDocument(q.db.QueryRow(ctx, query, id, workspaceID, title, body))
}

// ArchiveDocument marks a document archived instead of deleting it.
func (q *Queries) ArchiveDocument(ctx context.Context, workspaceID, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE documents SET archived = true, updated_at = now() WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	return err
}

// DeleteDocument hard-deletes a document row.
func (q *Queries) DeleteDocument(ctx context.Context, workspaceID, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	return err
}
