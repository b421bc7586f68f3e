package auth

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kollabhq/kollab/internal/apierror"
	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/membership"
)

// WorkspaceIDParam is the default chi URL parameter RequireWorkspaceRole
// reads the target workspace id from.
const WorkspaceIDParam = "workspaceId"

// AdminOverride is re-exported so callers wiring routes only need to
// import this package, not membership directly.
type AdminOverride = membership.AdminOverride

// RequireWorkspaceRole returns middleware that resolves the caller's
// membership in the workspace named by the chi URL parameter paramName and
// rejects the request if it is denied or below minRole. On success the
// resolved membership.Membership is attached to the context for handlers
// to read via MembershipFromContext.
func RequireWorkspaceRole(resolver *membership.Resolver, paramName string, minRole db.Role, admin AdminOverride) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				apierror.WriteProblem(w, apierror.New(apierror.KindUnauthenticated, "UNAUTHENTICATED", "no valid session"), false)
				return
			}

			workspaceID, err := uuid.Parse(chi.URLParam(r, paramName))
			if err != nil {
				apierror.WriteProblem(w, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"), false)
				return
			}

			m := resolver.Resolve(r.Context(), workspaceID, id.PrincipalID, id.Email, minRole, admin)
			if m.Denied {
				apierror.WriteProblem(w, apierror.New(apierror.KindForbidden, "FORBIDDEN", "insufficient role for this workspace"), false)
				return
			}

			ctx := withMembership(r.Context(), m)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type membershipContextKey struct{}

func withMembership(ctx context.Context, m membership.Membership) context.Context {
	return context.WithValue(ctx, membershipContextKey{}, m)
}

// MembershipFromContext returns the membership resolved by
// RequireWorkspaceRole, or the zero value if none was resolved (e.g. the
// route does not require one).
func MembershipFromContext(ctx context.Context) (membership.Membership, bool) {
	m, ok := ctx.Value(membershipContextKey{}).(membership.Membership)
	return m, ok
}
