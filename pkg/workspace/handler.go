// Package workspace implements C10's workspace lifecycle: create, get,
// update, delete. Grounded on the teacher's tenant provisioner shape
// (pkg/tenant/provisioner.go), minus schema creation — a workspace is a
// row, not a PostgreSQL schema (§3).
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
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

// slugPattern restricts workspace slugs to URL-safe identifiers.
var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,62}$`)

// Handler serves workspace CRUD routes.
type Handler struct {
	pool     *pgxpool.Pool
	queries  *db.Queries
	cache    *cache.Client[db.Workspace]
	resolver *membership.Resolver
}

// NewHandler creates a workspace Handler. store backs the workspace:
// namespace (30 min TTL per the cache table).
func NewHandler(pool *pgxpool.Pool, queries *db.Queries, store *cache.Store, resolver *membership.Resolver) *Handler {
	return &Handler{
		pool:     pool,
		queries:  queries,
		cache:    cache.NewClient[db.Workspace](store, "workspace", workspaceTTL),
		resolver: resolver,
	}
}

const workspaceTTL = 30 * time.Minute

type createRequest struct {
	Slug string `json:"slug" validate:"required,min=2,max=63"`
	Name string `json:"name" validate:"required,min=1,max=200"`
}

type updateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

type workspaceResponse struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func toResponse(w db.Workspace) workspaceResponse {
	return workspaceResponse{ID: w.ID.String(), Slug: w.Slug, Name: w.Name}
}

// Routes returns a chi.Router with only workspace creation mounted. Create
// has no workspace-scoped role check — any authenticated principal may
// create one — so it is mounted outside the RequireWorkspaceRole group.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	return r
}

// DetailRoutes returns a chi.Router for get/update/delete, meant to be
// mounted at "/workspaces/{workspaceId}" behind RequireWorkspaceRole
// alongside the other workspace-scoped feature routes.
func (h *Handler) DetailRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleGet)
	r.Patch("/", h.handleUpdate)
	r.Delete("/", h.handleDelete)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if !slugPattern.MatchString(req.Slug) {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_SLUG", "slug must be lowercase alphanumeric with hyphens"))
		return
	}

	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindUnauthenticated, "UNAUTHENTICATED", "no valid session"))
		return
	}

	ws, err := dbtxn.WithTransaction(r.Context(), h.pool, dbtxn.DefaultOptions(), func(ctx context.Context, q *db.Queries) (db.Workspace, error) {
		exists, err := q.SlugExists(ctx, req.Slug)
		if err != nil {
			return db.Workspace{}, apierror.Wrap(apierror.KindDatabase, "SLUG_CHECK_FAILED", "could not check slug availability", err)
		}
		if exists {
			return db.Workspace{}, apierror.New(apierror.KindConflict, "SLUG_TAKEN", "this slug is already in use")
		}

		created, err := q.CreateWorkspace(ctx, db.CreateWorkspaceParams{
			Slug:      req.Slug,
			Name:      req.Name,
			CreatedBy: id.PrincipalID,
			Settings:  json.RawMessage(`{}`),
		})
		if err != nil {
			return db.Workspace{}, apierror.Wrap(apierror.KindDatabase, "WORKSPACE_CREATE_FAILED", "could not create workspace", err)
		}

		if _, err := q.CreateMembership(ctx, created.ID, id.PrincipalID, db.RoleOwner); err != nil {
			return db.Workspace{}, apierror.Wrap(apierror.KindDatabase, "MEMBERSHIP_CREATE_FAILED", "could not create owner membership", err)
		}
		return created, nil
	})
	if err != nil {
		httpserver.HandleError(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, toResponse(ws))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}

	ws, ok := h.lookup(r.Context(), workspaceID)
	if !ok {
		httpserver.HandleError(w, r, apierror.New(apierror.KindNotFound, "WORKSPACE_NOT_FOUND", "workspace does not exist"))
		return
	}
	httpserver.Respond(w, http.StatusOK, toResponse(ws))
}

// requireRole reports whether the caller's resolved membership (attached
// to the context by auth.RequireWorkspaceRole) is at least min, writing a
// 403 and returning false if not.
func requireRole(w http.ResponseWriter, r *http.Request, min db.Role) bool {
	m, ok := auth.MembershipFromContext(r.Context())
	if !ok || (!m.SystemAdmin && !m.Role.AtLeast(min)) {
		httpserver.HandleError(w, r, apierror.New(apierror.KindForbidden, "FORBIDDEN", "insufficient role for this operation"))
		return false
	}
	return true
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, db.RoleAdmin) {
		return
	}
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}
	var req updateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	current, ok := h.lookup(r.Context(), workspaceID)
	if !ok {
		httpserver.HandleError(w, r, apierror.New(apierror.KindNotFound, "WORKSPACE_NOT_FOUND", "workspace does not exist"))
		return
	}

	updated, err := h.queries.UpdateWorkspace(r.Context(), workspaceID, req.Name, current.Settings)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "WORKSPACE_UPDATE_FAILED", "could not update workspace", err))
		return
	}
	h.cache.Delete(r.Context(), workspaceID.String())

	httpserver.Respond(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, db.RoleOwner) {
		return
	}
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}

	if err := h.queries.DeleteWorkspace(r.Context(), workspaceID); err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "WORKSPACE_DELETE_FAILED", "could not delete workspace", err))
		return
	}

	h.cache.Delete(r.Context(), workspaceID.String())
	h.resolver.InvalidateWorkspace(r.Context(), workspaceID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookup(ctx context.Context, id uuid.UUID) (db.Workspace, bool) {
	if e, ok := h.cache.Get(ctx, id.String()); ok {
		return e.Value, e.Present
	}
	ws, err := h.queries.GetWorkspaceByID(ctx, id)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return db.Workspace{}, false
		}
		_ = h.cache.SetAbsent(ctx, id.String(), workspaceTTL)
		return db.Workspace{}, false
	}
	_ = h.cache.Set(ctx, id.String(), ws)
	return ws, true
}
