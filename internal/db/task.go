package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TaskStatus is a closed set of task states.
type TaskStatus string

const (
	TaskStatusOpen   TaskStatus = "open"
	TaskStatusDoing  TaskStatus = "doing"
	TaskStatusDone   TaskStatus = "done"
)

// Task is a workspace-scoped resource, optionally linked to a project and
// tagged via task_tags (§3.1 supplemental entities).
type Task struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	ProjectID   *uuid.UUID
	Title       string
	Status      TaskStatus
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const taskColumns = `id, workspace_id, project_id, title, status, created_by, created_at, updated_at`

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.ProjectID, &t.Title, &t.Status, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// CreateTaskParams is the insert payload.
type CreateTaskParams struct {
	WorkspaceID uuid.UUID
	ProjectID   *uuid.UUID
	Title       string
	CreatedBy   uuid.UUID
}

// CreateTask inserts a new task row with status=open. Callers that also
// attach tags run this under WithTransaction alongside LinkTaskTag (§4.5,
// S5).
func (q *Queries) CreateTask(ctx context.Context, p CreateTaskParams) (Task, error) {
	query := `INSERT INTO tasks (workspace_id, project_id, title, status, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + taskColumns
	return scanTask(q.db.QueryRow(ctx, query, p.WorkspaceID, p.ProjectID, p.Title, TaskStatusOpen, p.CreatedBy))
}

// GetTask looks up a task scoped to a workspace.
func (q *Queries) GetTask(ctx context.Context, workspaceID, id uuid.UUID) (Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND workspace_id = $2`
	return scanTask(q.db.QueryRow(ctx, query, id, workspaceID))
}

// ListTasksPage returns a page of a workspace's tasks ordered by creation,
// backing the tasks_list:workspace:{w}:page:{p}:limit:{l} cache key.
func (q *Queries) ListTasksPage(ctx context.Context, workspaceID uuid.UUID, limit, offset int) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE workspace_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, workspaceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.ProjectID, &t.Title, &t.Status, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTaskStatus transitions a task's status.
func (q *Queries) UpdateTaskStatus(ctx context.Context, workspaceID, id uuid.UUID, status TaskStatus) (Task, error) {
	query := `UPDATE tasks SET status = $3, updated_at = now()
		WHERE id = $1 AND workspace_id = $2 RETURNING ` + taskColumns
	return scanTask(q.db.QueryRow(ctx, query, id, workspaceID, status))
}

// DeleteTask deletes a task row; task_tags rows cascade via FK.
func (q *Queries) DeleteTask(ctx context.Context, workspaceID, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	return err
}
