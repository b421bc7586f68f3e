package db

import (
	"context"

	"github.com/google/uuid"
)

// SearchResult is a single cross-resource search hit. Full-text indexing is
// explicitly out of scope (§ Non-goals); this is a plain ILIKE sweep across
// the resource types that carry free-text fields.
type SearchResult struct {
	ResourceType string
	ResourceID   uuid.UUID
	Title        string
	Snippet      string
}

// Search runs a simple substring search across documents, tasks, and notes
// within a workspace, capped at limit total results.
func (q *Queries) Search(ctx context.Context, workspaceID uuid.UUID, query string, limit int) ([]SearchResult, error) {
	like := "%" + query + "%"

	rows, err := q.db.Query(ctx, `
		(SELECT 'document', id, title, left(body, 200) FROM documents
			WHERE workspace_id = $1 AND archived = false AND (title ILIKE $2 OR body ILIKE $2))
		UNION ALL
		(SELECT 'task', id, title, '' FROM tasks
			WHERE workspace_id = $1 AND title ILIKE $2)
		UNION ALL
		(SELECT 'note', id, left(body, 60), left(body, 200) FROM notes
			WHERE workspace_id = $1 AND body ILIKE $2)
		LIMIT $3`, workspaceID, like, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ResourceType, &r.ResourceID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
