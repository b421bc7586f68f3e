// Package member implements C10's workspace membership management: invite,
// remove, and list members (S2). Every mutation invalidates C3's resolver
// cache per I5.
package member

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kollabhq/kollab/internal/apierror"
	"github.com/kollabhq/kollab/internal/auth"
	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/dbtxn"
	"github.com/kollabhq/kollab/internal/httpserver"
	"github.com/kollabhq/kollab/internal/membership"
)

const membersListTTL = 10 * time.Minute

// Handler serves member-management routes, mounted under a workspace-scoped
// prefix already gated by auth.RequireWorkspaceRole.
type Handler struct {
	pool     *pgxpool.Pool
	queries  *db.Queries
	resolver *membership.Resolver
	list     *cache.Client[[]db.MembershipDetail]
	admin    auth.AdminOverride
	logger   *slog.Logger
}

// NewHandler creates a member Handler. The list cache's namespace ("members")
// and key shape intentionally match what Resolver.Invalidate already evicts
// by raw key, so a single invalidation clears both.
func NewHandler(pool *pgxpool.Pool, queries *db.Queries, resolver *membership.Resolver, store *cache.Store, admin auth.AdminOverride, logger *slog.Logger) *Handler {
	return &Handler{
		pool:     pool,
		queries:  queries,
		resolver: resolver,
		list:     cache.NewClient[[]db.MembershipDetail](store, "members", membersListTTL),
		admin:    admin,
		logger:   logger,
	}
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=viewer editor admin owner"`
}

type memberResponse struct {
	PrincipalID string `json:"principalId"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
}

func toMemberResponse(d db.MembershipDetail) memberResponse {
	return memberResponse{
		PrincipalID: d.PrincipalID.String(),
		Email:       d.Email,
		Name:        d.Name,
		Role:        string(d.Role),
	}
}

// Routes returns a chi.Router for "/{workspaceId}/members". The caller
// mounts this behind auth.RequireWorkspaceRole at db.RoleViewer (so list
// works for any member); invite and remove additionally self-check for
// db.RoleAdmin via the membership already resolved into the context.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleInvite)
	r.Delete("/{principalId}", h.handleRemove)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}

	key := workspaceID.String()
	if e, ok := h.list.Get(r.Context(), key); ok && e.Present {
		httpserver.Respond(w, http.StatusOK, toMemberResponses(e.Value))
		return
	}

	details, err := h.queries.ListMembershipDetails(r.Context(), workspaceID)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "MEMBERS_LIST_FAILED", "could not list members", err))
		return
	}
	if err := h.list.Set(r.Context(), key, details); err != nil {
		h.logger.Warn("members list cache write failed", "error", err)
	}
	httpserver.Respond(w, http.StatusOK, toMemberResponses(details))
}

func toMemberResponses(details []db.MembershipDetail) []memberResponse {
	out := make([]memberResponse, 0, len(details))
	for _, d := range details {
		out = append(out, toMemberResponse(d))
	}
	return out
}

// requireAdmin reports whether the caller's resolved membership (attached
// to the context by auth.RequireWorkspaceRole) is at least db.RoleAdmin,
// writing a 403 and returning false if not.
func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	m, ok := auth.MembershipFromContext(r.Context())
	if !ok || (!m.SystemAdmin && !m.Role.AtLeast(db.RoleAdmin)) {
		httpserver.HandleError(w, r, apierror.New(apierror.KindForbidden, "FORBIDDEN", "admin role required to manage members"))
		return false
	}
	return true
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}
	var req inviteRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	principal, err := h.queries.GetPrincipalByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.HandleError(w, r, apierror.New(apierror.KindNotFound, "PRINCIPAL_NOT_FOUND", "no account exists for this email"))
			return
		}
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "PRINCIPAL_LOOKUP_FAILED", "could not look up principal", err))
		return
	}

	if _, err := h.queries.CreateMembership(r.Context(), workspaceID, principal.ID, db.Role(req.Role)); err != nil {
		if isUniqueViolation(err) {
			httpserver.HandleError(w, r, apierror.New(apierror.KindConflict, "ALREADY_MEMBER", "this principal is already a member of the workspace"))
			return
		}
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "MEMBERSHIP_CREATE_FAILED", "could not create membership", err))
		return
	}

	h.resolver.Invalidate(r.Context(), workspaceID, principal.ID, true, principal.Email, h.admin)
	h.list.Delete(r.Context(), workspaceID.String())

	httpserver.Respond(w, http.StatusCreated, memberResponse{
		PrincipalID: principal.ID.String(),
		Email:       principal.Email,
		Name:        principal.Name,
		Role:        req.Role,
	})
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}
	principalID, err := uuid.Parse(chi.URLParam(r, "principalId"))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_PRINCIPAL_ID", "principal id is not a valid identifier"))
		return
	}

	// GetMembership, the owner-count check, and RemoveMembership run inside
	// one serializable transaction (§4.5): at read-committed, two concurrent
	// removals of the second-to-last owner can both observe owners==2, both
	// pass the owners<=1 check, and both commit, leaving zero owners.
	_, err = dbtxn.WithTransaction(r.Context(), h.pool, dbtxn.Serializable(), func(ctx context.Context, q *db.Queries) (struct{}, error) {
		target, err := q.GetMembership(ctx, workspaceID, principalID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return struct{}{}, apierror.New(apierror.KindNotFound, "MEMBERSHIP_NOT_FOUND", "this principal is not a member of the workspace")
			}
			return struct{}{}, apierror.Wrap(apierror.KindDatabase, "MEMBERSHIP_LOOKUP_FAILED", "could not look up membership", err)
		}

		if target.Role == db.RoleOwner {
			owners, err := q.CountOwners(ctx, workspaceID)
			if err != nil {
				return struct{}{}, apierror.Wrap(apierror.KindDatabase, "OWNER_COUNT_FAILED", "could not verify owner count", err)
			}
			if owners <= 1 {
				return struct{}{}, apierror.New(apierror.KindConflict, "LAST_OWNER", "a workspace must retain at least one owner")
			}
		}

		if err := q.RemoveMembership(ctx, workspaceID, principalID); err != nil {
			return struct{}{}, apierror.Wrap(apierror.KindDatabase, "MEMBERSHIP_REMOVE_FAILED", "could not remove membership", err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		httpserver.HandleError(w, r, err)
		return
	}

	h.resolver.Invalidate(r.Context(), workspaceID, principalID, false, "", h.admin)
	h.list.Delete(r.Context(), workspaceID.String())

	w.WriteHeader(http.StatusNoContent)
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
