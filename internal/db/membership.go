package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Role is a membership role. Ordering is I1: viewer < editor < admin < owner.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// roleLevel gives each Role a monotonic rank for "role >= X" predicates.
var roleLevel = map[Role]int{
	RoleViewer: 10,
	RoleEditor: 20,
	RoleAdmin:  30,
	RoleOwner:  40,
}

// Level returns r's rank; an unrecognized role ranks below viewer.
func (r Role) Level() int {
	if l, ok := roleLevel[r]; ok {
		return l
	}
	return 0
}

// AtLeast reports whether r's rank is >= min's, per I1.
func (r Role) AtLeast(min Role) bool { return r.Level() >= min.Level() }

// Membership is a (workspaceId, principalId) -> role row.
type Membership struct {
	WorkspaceID uuid.UUID
	PrincipalID uuid.UUID
	Role        Role
	JoinedAt    time.Time
}

const membershipColumns = `workspace_id, principal_id, role, joined_at`

func scanMembership(row pgx.Row) (Membership, error) {
	var m Membership
	err := row.Scan(&m.WorkspaceID, &m.PrincipalID, &m.Role, &m.JoinedAt)
	return m, err
}

func scanMemberships(rows pgx.Rows) ([]Membership, error) {
	defer rows.Close()
	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.WorkspaceID, &m.PrincipalID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateMembership inserts a membership row. Used both for the owner
// membership at workspace creation and for invites.
func (q *Queries) CreateMembership(ctx context.Context, workspaceID, principalID uuid.UUID, role Role) (Membership, error) {
	query := `INSERT INTO memberships (workspace_id, principal_id, role)
		VALUES ($1, $2, $3)
		RETURNING ` + membershipColumns
	return scanMembership(q.db.QueryRow(ctx, query, workspaceID, principalID, role))
}

// GetMembership is the source-of-truth lookup the resolver's cache miss
// path consults (§4.3 step 3).
func (q *Queries) GetMembership(ctx context.Context, workspaceID, principalID uuid.UUID) (Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE workspace_id = $1 AND principal_id = $2`
	return scanMembership(q.db.QueryRow(ctx, query, workspaceID, principalID))
}

// ListMemberships returns every member of a workspace, backing the
// members:W cached list.
func (q *Queries) ListMemberships(ctx context.Context, workspaceID uuid.UUID) ([]Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE workspace_id = $1 ORDER BY joined_at ASC`
	rows, err := q.db.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	return scanMemberships(rows)
}

// MembershipDetail joins a membership row with the member's profile, for
// the members list endpoint.
type MembershipDetail struct {
	PrincipalID uuid.UUID
	Email       string
	Name        string
	Role        Role
	JoinedAt    time.Time
}

// ListMembershipDetails returns every member of a workspace joined with
// their profile, backing the members:{workspaceId} cached list.
func (q *Queries) ListMembershipDetails(ctx context.Context, workspaceID uuid.UUID) ([]MembershipDetail, error) {
	query := `SELECT m.principal_id, p.email, p.name, m.role, m.joined_at
		FROM memberships m JOIN principals p ON p.id = m.principal_id
		WHERE m.workspace_id = $1 ORDER BY m.joined_at ASC`
	rows, err := q.db.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MembershipDetail
	for rows.Next() {
		var d MembershipDetail
		if err := rows.Scan(&d.PrincipalID, &d.Email, &d.Name, &d.Role, &d.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateMembershipRole changes a member's role, used by member-management
// routes. Must run under WithTransaction when it could leave a workspace
// without an owner (read-modify-write under the chosen isolation, §4.5).
func (q *Queries) UpdateMembershipRole(ctx context.Context, workspaceID, principalID uuid.UUID, role Role) (Membership, error) {
	query := `UPDATE memberships SET role = $3 WHERE workspace_id = $1 AND principal_id = $2
		RETURNING ` + membershipColumns
	return scanMembership(q.db.QueryRow(ctx, query, workspaceID, principalID, role))
}

// CountOwners reports how many owner memberships a workspace has, used to
// enforce "exactly one owner per workspace" before a demotion or removal.
func (q *Queries) CountOwners(ctx context.Context, workspaceID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM memberships WHERE workspace_id = $1 AND role = $2`, workspaceID, RoleOwner).Scan(&n)
	return n, err
}

// RemoveMembership deletes a (workspace, principal) membership row.
func (q *Queries) RemoveMembership(ctx context.Context, workspaceID, principalID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM memberships WHERE workspace_id = $1 AND principal_id = $2`, workspaceID, principalID)
	return err
}

// ListWorkspaceIDsForPrincipal supports "my workspaces" listings.
func (q *Queries) ListWorkspaceIDsForPrincipal(ctx context.Context, principalID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `SELECT workspace_id FROM memberships WHERE principal_id = $1`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
