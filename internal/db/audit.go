package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditEvent is an append-only record of a mutation, written by every
// mutating handler after its transaction commits (C10).
type AuditEvent struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	ActorID     uuid.UUID
	Action      string
	TargetType  string
	TargetID    uuid.UUID
	Detail      json.RawMessage
	At          time.Time
}

// CreateAuditEventParams is the insert payload for a single audit event.
type CreateAuditEventParams struct {
	WorkspaceID uuid.UUID
	ActorID     uuid.UUID
	Action      string
	TargetType  string
	TargetID    uuid.UUID
	Detail      json.RawMessage
}

const auditEventColumns = `id, workspace_id, actor_id, action, target_type, target_id, detail, at`

func scanAuditEvent(row pgx.Row) (AuditEvent, error) {
	var e AuditEvent
	err := row.Scan(&e.ID, &e.WorkspaceID, &e.ActorID, &e.Action, &e.TargetType, &e.TargetID, &e.Detail, &e.At)
	return e, err
}

// CreateAuditEvent inserts a single audit event row.
func (q *Queries) CreateAuditEvent(ctx context.Context, p CreateAuditEventParams) (AuditEvent, error) {
	query := `INSERT INTO audit_events (workspace_id, actor_id, action, target_type, target_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + auditEventColumns
	return scanAuditEvent(q.db.QueryRow(ctx, query, p.WorkspaceID, p.ActorID, p.Action, p.TargetType, p.TargetID, p.Detail))
}

// ListAuditEvents returns a workspace's audit log, most recent first.
func (q *Queries) ListAuditEvents(ctx context.Context, workspaceID uuid.UUID, limit, offset int) ([]AuditEvent, error) {
	query := `SELECT ` + auditEventColumns + ` FROM audit_events
		WHERE workspace_id = $1 ORDER BY at DESC LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, workspaceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.ActorID, &e.Action, &e.TargetType, &e.TargetID, &e.Detail, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountAuditEvents reports how many audit events exist for a workspace,
// backing offset pagination's total_items field.
func (q *Queries) CountAuditEvents(ctx context.Context, workspaceID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM audit_events WHERE workspace_id = $1`, workspaceID).Scan(&n)
	return n, err
}
