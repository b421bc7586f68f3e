package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Team groups principals within a workspace, distinct from Membership:
// team membership does not itself grant workspace access (I2 applies only
// at the workspace level; team rows are a grouping convenience).
type Team struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
	LeaderID    uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const teamColumns = `id, workspace_id, name, leader_id, created_at, updated_at`

func scanTeam(row pgx.Row) (Team, error) {
	var t Team
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.LeaderID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// CreateTeamParams is the insert payload.
type CreateTeamParams struct {
	WorkspaceID uuid.UUID
	Name        string
	LeaderID    uuid.UUID
}

// CreateTeam inserts a new team row. Callers run this inside
// WithTransaction alongside the leader's team_members insert (§4.5).
func (q *Queries) CreateTeam(ctx context.Context, p CreateTeamParams) (Team, error) {
	query := `INSERT INTO teams (workspace_id, name, leader_id)
		VALUES ($1, $2, $3)
		RETURNING ` + teamColumns
	return scanTeam(q.db.QueryRow(ctx, query, p.WorkspaceID, p.Name, p.LeaderID))
}

// GetTeam looks up a team scoped to a workspace.
func (q *Queries) GetTeam(ctx context.Context, workspaceID, id uuid.UUID) (Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1 AND workspace_id = $2`
	return scanTeam(q.db.QueryRow(ctx, query, id, workspaceID))
}

// ListTeams returns every team in a workspace, backing the
// teams_list:{workspaceId} cache key.
func (q *Queries) ListTeams(ctx context.Context, workspaceID uuid.UUID) ([]Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE workspace_id = $1 ORDER BY created_at ASC`
	rows, err := q.db.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.LeaderID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AddTeamMember inserts a team_members row.
func (q *Queries) AddTeamMember(ctx context.Context, teamID, principalID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `INSERT INTO team_members (team_id, principal_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, teamID, principalID)
	return err
}

// RemoveTeamMember deletes a team_members row.
func (q *Queries) RemoveTeamMember(ctx context.Context, teamID, principalID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1 AND principal_id = $2`, teamID, principalID)
	return err
}

// DeleteTeam deletes a team row; team_members rows cascade via FK.
func (q *Queries) DeleteTeam(ctx context.Context, workspaceID, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM teams WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	return err
}
