// Package project implements the Project resource's CRUD routes.
package project

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kollabhq/kollab/internal/apierror"
	"github.com/kollabhq/kollab/internal/audit"
	"github.com/kollabhq/kollab/internal/auth"
	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/httpserver"
	"github.com/kollabhq/kollab/internal/listcache"
)

const listTTL = 5 * time.Minute

// Handler serves project routes.
type Handler struct {
	pool   *pgxpool.Pool
	store  *cache.Store
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a project Handler.
func NewHandler(pool *pgxpool.Pool, store *cache.Store, logger *slog.Logger, auditWriter *audit.Writer) *Handler {
	return &Handler{pool: pool, store: store, logger: logger, audit: auditWriter}
}

type createRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

type updateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

type projectResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toResponse(p db.Project) projectResponse {
	return projectResponse{ID: p.ID.String(), Name: p.Name}
}

func listKey(workspaceID uuid.UUID) string {
	return "projects_list:" + workspaceID.String()
}

// Routes returns a chi.Router for "/{workspaceId}/projects".
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{projectId}", h.handleGet)
	r.Patch("/{projectId}", h.handleUpdate)
	r.Delete("/{projectId}", h.handleDelete)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}

	projects, err := listcache.GetOrCompute(r.Context(), h.store, h.logger, listKey(workspaceID), listTTL, func(ctx context.Context) ([]db.Project, error) {
		return db.New(h.pool).ListProjects(ctx, workspaceID)
	})
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "PROJECTS_LIST_FAILED", "could not list projects", err))
		return
	}

	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, toResponse(p))
	}
	httpserver.Respond(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	workspaceID, projectID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	p, err := db.New(h.pool).GetProject(r.Context(), workspaceID, projectID)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindNotFound, "PROJECT_NOT_FOUND", "project does not exist", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, toResponse(p))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindUnauthenticated, "UNAUTHENTICATED", "no valid session"))
		return
	}

	p, err := db.New(h.pool).CreateProject(r.Context(), db.CreateProjectParams{
		WorkspaceID: workspaceID,
		Name:        req.Name,
		CreatedBy:   id.PrincipalID,
	})
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "PROJECT_CREATE_FAILED", "could not create project", err))
		return
	}

	h.store.Delete(r.Context(), "listcache:"+listKey(workspaceID))
	h.audit.LogFromRequest(r, workspaceID, "create", "project", p.ID, nil)

	httpserver.Respond(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	workspaceID, projectID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	p, err := db.New(h.pool).UpdateProject(r.Context(), workspaceID, projectID, req.Name)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "PROJECT_UPDATE_FAILED", "could not update project", err))
		return
	}

	h.store.Delete(r.Context(), "listcache:"+listKey(workspaceID))
	h.audit.LogFromRequest(r, workspaceID, "update", "project", projectID, nil)

	httpserver.Respond(w, http.StatusOK, toResponse(p))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	workspaceID, projectID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	if err := db.New(h.pool).DeleteProject(r.Context(), workspaceID, projectID); err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "PROJECT_DELETE_FAILED", "could not delete project", err))
		return
	}

	h.store.Delete(r.Context(), "listcache:"+listKey(workspaceID))
	h.audit.LogFromRequest(r, workspaceID, "delete", "project", projectID, nil)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return uuid.UUID{}, uuid.UUID{}, false
	}
	projectID, err := uuid.Parse(chi.URLParam(r, "projectId"))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_PROJECT_ID", "project id is not a valid identifier"))
		return uuid.UUID{}, uuid.UUID{}, false
	}
	return workspaceID, projectID, true
}
