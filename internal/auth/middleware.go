package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kollabhq/kollab/internal/apierror"
	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/reqctx"
)

// SessionCookieName is the name of the cookie carrying the signed session
// token.
const SessionCookieName = "kollab_session"

// Identity is the authenticated caller attached to the request context by
// Middleware.
type Identity struct {
	PrincipalID uuid.UUID
	Email       string
	Name        string
	SessionID   string
}

type contextKey struct{}

// NewContext attaches id to ctx.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the authenticated Identity, or nil if the request
// was not authenticated (e.g. an exempt route).
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}

// PrincipalQueries is the subset of db.Queries Middleware needs to resolve
// a principal's profile for Identity.
type PrincipalQueries interface {
	GetPrincipalByID(ctx context.Context, id uuid.UUID) (db.Principal, error)
}

const principalCacheTTL = 15 * time.Minute

// Middleware implements pipeline stage 4 (§4.7): it parses the session
// cookie, validates it against C8, and attaches the resolved Identity to
// the request context. A request with no cookie, or an invalid one,
// proceeds with no Identity — RequireAuth is what actually rejects it,
// so exempt routes (login, register, health) can skip authentication
// entirely by simply not requiring it.
func Middleware(mgr *Manager, principals PrincipalQueries, store *cache.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	principalCache := cache.NewClient[db.Principal](store, "principal", principalCacheTTL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, ok := mgr.Validate(r.Context(), cookie.Value)
			if !ok {
				clearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}

			if res.Fresh {
				setSessionCookie(w, res.Token, res.Session.ExpiresAt)
			}

			principal, ok := lookupPrincipal(r.Context(), principalCache, principals, res.Session.PrincipalID, logger)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			identity := &Identity{
				PrincipalID: res.Session.PrincipalID,
				Email:       principal.Email,
				Name:        principal.Name,
				SessionID:   res.Session.ID,
			}
			ctx := NewContext(r.Context(), identity)
			ctx = reqctx.WithPrincipalID(ctx, identity.PrincipalID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func lookupPrincipal(ctx context.Context, c *cache.Client[db.Principal], q PrincipalQueries, id uuid.UUID, logger *slog.Logger) (db.Principal, bool) {
	if e, ok := c.Get(ctx, id.String()); ok {
		return e.Value, e.Present
	}
	p, err := q.GetPrincipalByID(ctx, id)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			logger.Error("principal lookup failed", "error", err)
		}
		return db.Principal{}, false
	}
	if err := c.Set(ctx, id.String(), p); err != nil {
		logger.Warn("principal cache write failed", "error", err)
	}
	return p, true
}

func setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		Expires:  expiresAt,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// RequireAuth rejects requests without a resolved Identity (§6's
// RequireAuth() pipeline hook).
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			apierror.WriteProblem(w, apierror.New(apierror.KindUnauthenticated, "UNAUTHENTICATED", "no valid session"), false)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSystemAdmin rejects requests whose Identity is not a configured
// system admin. admin evaluates the override, mirroring the membership
// resolver's own AdminOverride predicate.
func RequireSystemAdmin(admin func(principalID, email string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil || !admin(id.PrincipalID.String(), id.Email) {
				apierror.WriteProblem(w, apierror.New(apierror.KindForbidden, "SYSTEM_ADMIN_REQUIRED", "system admin privileges required"), false)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
