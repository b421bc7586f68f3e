package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/reqctx"
)

type fakePrincipalQueries struct {
	rows map[uuid.UUID]db.Principal
}

func (f *fakePrincipalQueries) GetPrincipalByID(ctx context.Context, id uuid.UUID) (db.Principal, error) {
	p, ok := f.rows[id]
	if !ok {
		return db.Principal{}, pgx.ErrNoRows
	}
	return p, nil
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return cache.NewStore(rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMiddlewareAttachesIdentityForValidCookie(t *testing.T) {
	fq := newFakeSessionQueries()
	store := newTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr, err := NewManager(testSecret, 30*24*time.Hour, fq, store, logger)
	require.NoError(t, err)

	principalID := uuid.New()
	token, _, err := mgr.Issue(context.Background(), principalID)
	require.NoError(t, err)

	principals := &fakePrincipalQueries{rows: map[uuid.UUID]db.Principal{
		principalID: {ID: principalID, Email: "u1@kollab.dev", Name: "U1"},
	}}

	var gotIdentity *Identity
	handler := Middleware(mgr, principals, store, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = FromContext(r.Context())
		require.Equal(t, principalID.String(), reqctx.PrincipalIDFromContext(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.NotNil(t, gotIdentity)
	require.Equal(t, "u1@kollab.dev", gotIdentity.Email)
}

func TestMiddlewareProceedsWithNoIdentityWhenCookieMissing(t *testing.T) {
	fq := newFakeSessionQueries()
	store := newTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr, err := NewManager(testSecret, 30*24*time.Hour, fq, store, logger)
	require.NoError(t, err)

	var called bool
	handler := Middleware(mgr, &fakePrincipalQueries{rows: map[uuid.UUID]db.Principal{}}, store, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Nil(t, FromContext(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.True(t, called)
}

func TestRequireAuthRejectsMissingIdentity(t *testing.T) {
	handler := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached without an identity")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuthAllowsAttachedIdentity(t *testing.T) {
	var called bool
	handler := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(NewContext(req.Context(), &Identity{PrincipalID: uuid.New()}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.True(t, called)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireSystemAdminRejectsNonAdmin(t *testing.T) {
	admin := func(principalID, email string) bool { return email == "root@kollab.dev" }
	handler := RequireSystemAdmin(admin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(NewContext(req.Context(), &Identity{PrincipalID: uuid.New(), Email: "u1@kollab.dev"}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireSystemAdminAllowsAdmin(t *testing.T) {
	admin := func(principalID, email string) bool { return email == "root@kollab.dev" }
	var called bool
	handler := RequireSystemAdmin(admin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(NewContext(req.Context(), &Identity{PrincipalID: uuid.New(), Email: "root@kollab.dev"}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.True(t, called)
}
