// Package db holds Kollab's hand-written SQL layer: one shared schema,
// workspace_id-scoped rows, no ORM. Every query is written out, scanned
// explicitly into a row struct, following the store idiom used throughout
// this codebase rather than a code generator.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so every Queries
// method works identically inside and outside a transaction (C5).
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a DBTX with Kollab's query set.
type Queries struct {
	db DBTX
}

// New builds a Queries bound to dbtx — a pool for ordinary calls, or a
// transaction handle inside WithTransaction.
func New(dbtx DBTX) *Queries {
	return &Queries{db: dbtx}
}
