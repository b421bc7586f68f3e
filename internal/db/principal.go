package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Principal is a registered user.
type Principal struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const principalColumns = `id, email, name, password_hash, created_at, updated_at`

func scanPrincipal(row pgx.Row) (Principal, error) {
	var p Principal
	err := row.Scan(&p.ID, &p.Email, &p.Name, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreatePrincipalParams is the insert payload for registration.
type CreatePrincipalParams struct {
	Email        string
	Name         string
	PasswordHash string
}

// CreatePrincipal inserts a new principal.
func (q *Queries) CreatePrincipal(ctx context.Context, p CreatePrincipalParams) (Principal, error) {
	query := `INSERT INTO principals (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + principalColumns
	return scanPrincipal(q.db.QueryRow(ctx, query, p.Email, p.Name, p.PasswordHash))
}

// GetPrincipalByID looks up a principal by id.
func (q *Queries) GetPrincipalByID(ctx context.Context, id uuid.UUID) (Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	return scanPrincipal(q.db.QueryRow(ctx, query, id))
}

// GetPrincipalByEmail looks up a principal by email, used at login.
func (q *Queries) GetPrincipalByEmail(ctx context.Context, email string) (Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE email = $1`
	return scanPrincipal(q.db.QueryRow(ctx, query, email))
}

// UpdatePrincipalProfile updates the mutable profile fields.
func (q *Queries) UpdatePrincipalProfile(ctx context.Context, id uuid.UUID, name string) (Principal, error) {
	query := `UPDATE principals SET name = $2, updated_at = now() WHERE id = $1 RETURNING ` + principalColumns
	return scanPrincipal(q.db.QueryRow(ctx, query, id, name))
}
