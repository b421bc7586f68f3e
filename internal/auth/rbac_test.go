package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/membership"
)

type fakeMembershipQueries struct {
	rows map[uuid.UUID]db.Membership
}

func (f *fakeMembershipQueries) GetMembership(ctx context.Context, workspaceID, principalID uuid.UUID) (db.Membership, error) {
	m, ok := f.rows[workspaceID]
	if !ok || m.PrincipalID != principalID {
		return db.Membership{}, pgx.ErrNoRows
	}
	return m, nil
}

func newTestRouterWithRole(t *testing.T, fq *fakeMembershipQueries, minRole db.Role) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cache.NewStore(rdb, logger)
	resolver := membership.New(store, fq, logger)

	r := chi.NewRouter()
	r.With(RequireWorkspaceRole(resolver, WorkspaceIDParam, minRole, nil)).
		Get("/workspaces/{workspaceId}/thing", func(w http.ResponseWriter, r *http.Request) {
			m, ok := MembershipFromContext(r.Context())
			require.True(t, ok)
			w.Header().Set("X-Role", string(m.Role))
			w.WriteHeader(http.StatusOK)
		})
	return r
}

func TestRequireWorkspaceRoleRejectsUnauthenticated(t *testing.T) {
	handler := newTestRouterWithRole(t, &fakeMembershipQueries{rows: map[uuid.UUID]db.Membership{}}, db.RoleViewer)

	req := httptest.NewRequest(http.MethodGet, "/workspaces/"+uuid.New().String()+"/thing", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireWorkspaceRoleRejectsMalformedWorkspaceID(t *testing.T) {
	handler := newTestRouterWithRole(t, &fakeMembershipQueries{rows: map[uuid.UUID]db.Membership{}}, db.RoleViewer)

	req := httptest.NewRequest(http.MethodGet, "/workspaces/not-a-uuid/thing", nil)
	req = req.WithContext(NewContext(req.Context(), &Identity{PrincipalID: uuid.New()}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequireWorkspaceRoleRejectsBelowMinRole(t *testing.T) {
	ws := uuid.New()
	principalID := uuid.New()
	fq := &fakeMembershipQueries{rows: map[uuid.UUID]db.Membership{
		ws: {WorkspaceID: ws, PrincipalID: principalID, Role: db.RoleViewer},
	}}
	handler := newTestRouterWithRole(t, fq, db.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/workspaces/"+ws.String()+"/thing", nil)
	req = req.WithContext(NewContext(req.Context(), &Identity{PrincipalID: principalID}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireWorkspaceRoleAllowsAtOrAboveMinRole(t *testing.T) {
	ws := uuid.New()
	principalID := uuid.New()
	fq := &fakeMembershipQueries{rows: map[uuid.UUID]db.Membership{
		ws: {WorkspaceID: ws, PrincipalID: principalID, Role: db.RoleAdmin},
	}}
	handler := newTestRouterWithRole(t, fq, db.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/workspaces/"+ws.String()+"/thing", nil)
	req = req.WithContext(NewContext(req.Context(), &Identity{PrincipalID: principalID}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, string(db.RoleAdmin), rr.Header().Get("X-Role"))
}
