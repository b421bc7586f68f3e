package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Session backs an opaque session-id cookie (C8). The id itself is the
// cache/cookie key; this row is the durable source of truth the session
// manager consults on cache miss and logout deletes.
type Session struct {
	ID          string
	PrincipalID uuid.UUID
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

const sessionColumns = `id, principal_id, created_at, expires_at`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.PrincipalID, &s.CreatedAt, &s.ExpiresAt)
	return s, err
}

// CreateSession inserts a new session row.
func (q *Queries) CreateSession(ctx context.Context, id string, principalID uuid.UUID, expiresAt time.Time) (Session, error) {
	query := `INSERT INTO sessions (id, principal_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING ` + sessionColumns
	return scanSession(q.db.QueryRow(ctx, query, id, principalID, expiresAt))
}

// GetSession looks up a session by id.
func (q *Queries) GetSession(ctx context.Context, id string) (Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(q.db.QueryRow(ctx, query, id))
}

// RenewSession extends a session's expiry during sliding renewal.
func (q *Queries) RenewSession(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE sessions SET expires_at = $2 WHERE id = $1`, id, expiresAt)
	return err
}

// DeleteSession removes a session row, used by logout.
func (q *Queries) DeleteSession(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}
