// Package task implements the Task resource, including tag attachment
// (S5): creating a task with tagIds inserts the task row and its task_tags
// links atomically via C5, then invalidates every cached page of the
// workspace's task listing.
package task

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kollabhq/kollab/internal/apierror"
	"github.com/kollabhq/kollab/internal/audit"
	"github.com/kollabhq/kollab/internal/auth"
	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/dbtxn"
	"github.com/kollabhq/kollab/internal/httpserver"
	"github.com/kollabhq/kollab/internal/listcache"
)

const listTTL = 5 * time.Minute

// Handler serves task routes.
type Handler struct {
	pool   *pgxpool.Pool
	store  *cache.Store
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a task Handler.
func NewHandler(pool *pgxpool.Pool, store *cache.Store, logger *slog.Logger, auditWriter *audit.Writer) *Handler {
	return &Handler{pool: pool, store: store, logger: logger, audit: auditWriter}
}

type createRequest struct {
	Title     string      `json:"title" validate:"required,min=1,max=300"`
	ProjectID *uuid.UUID  `json:"projectId"`
	TagIDs    []uuid.UUID `json:"tagIds"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=open doing done"`
}

type taskResponse struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Status    string   `json:"status"`
	ProjectID *string  `json:"projectId,omitempty"`
	TagIDs    []string `json:"tagIds,omitempty"`
}

func toResponse(t db.Task, tags []db.Tag) taskResponse {
	resp := taskResponse{ID: t.ID.String(), Title: t.Title, Status: string(t.Status)}
	if t.ProjectID != nil {
		s := t.ProjectID.String()
		resp.ProjectID = &s
	}
	for _, tag := range tags {
		resp.TagIDs = append(resp.TagIDs, tag.ID.String())
	}
	return resp
}

// Routes returns a chi.Router for "/{workspaceId}/tasks".
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{taskId}", h.handleGet)
	r.Patch("/{taskId}/status", h.handleUpdateStatus)
	r.Delete("/{taskId}", h.handleDelete)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_PAGE_PARAMS", err.Error()))
		return
	}

	key := "tasks_list:workspace:" + workspaceID.String() + ":page:" + strconv.Itoa(params.Page) + ":limit:" + strconv.Itoa(params.PageSize)
	tasks, err := listcache.GetOrCompute(r.Context(), h.store, h.logger, key, listTTL, func(ctx context.Context) ([]db.Task, error) {
		return db.New(h.pool).ListTasksPage(ctx, workspaceID, params.PageSize, params.Offset)
	})
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "TASKS_LIST_FAILED", "could not list tasks", err))
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toResponse(t, nil))
	}
	httpserver.Respond(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	workspaceID, taskID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	q := db.New(h.pool)
	t, err := q.GetTask(r.Context(), workspaceID, taskID)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindNotFound, "TASK_NOT_FOUND", "task does not exist", err))
		return
	}
	tags, err := q.ListTagsForTask(r.Context(), taskID)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "TASK_TAGS_LOOKUP_FAILED", "could not look up task tags", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, toResponse(t, tags))
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

	type created struct {
		task db.Task
		tags []db.Tag
	}

	res, txErr := dbtxn.WithTransaction(r.Context(), h.pool, dbtxn.DefaultOptions(), func(ctx context.Context, q *db.Queries) (created, error) {
		task, err := q.CreateTask(ctx, db.CreateTaskParams{
			WorkspaceID: workspaceID,
			ProjectID:   req.ProjectID,
			Title:       req.Title,
			CreatedBy:   id.PrincipalID,
		})
		if err != nil {
			return created{}, apierror.Wrap(apierror.KindDatabase, "TASK_CREATE_FAILED", "could not create task", err)
		}

		var tags []db.Tag
		if len(req.TagIDs) > 0 {
			tags, err = q.ListTagsByIDs(ctx, workspaceID, req.TagIDs)
			if err != nil {
				return created{}, apierror.Wrap(apierror.KindDatabase, "TAG_LOOKUP_FAILED", "could not look up tags", err)
			}
			for _, tag := range tags {
				if err := q.LinkTaskTag(ctx, task.ID, tag.ID); err != nil {
					return created{}, apierror.Wrap(apierror.KindDatabase, "TASK_TAG_LINK_FAILED", "could not link tag to task", err)
				}
			}
		}

		return created{task: task, tags: tags}, nil
	})
	if txErr != nil {
		httpserver.HandleError(w, r, txErr)
		return
	}

	listcache.Invalidate(r.Context(), h.store, "tasks_list:workspace", workspaceID.String())
	h.audit.LogFromRequest(r, workspaceID, "create", "task", res.task.ID, nil)

	httpserver.Respond(w, http.StatusCreated, toResponse(res.task, res.tags))
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	workspaceID, taskID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t, err := db.New(h.pool).UpdateTaskStatus(r.Context(), workspaceID, taskID, db.TaskStatus(req.Status))
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "TASK_STATUS_UPDATE_FAILED", "could not update task status", err))
		return
	}

	listcache.Invalidate(r.Context(), h.store, "tasks_list:workspace", workspaceID.String())
	h.audit.LogFromRequest(r, workspaceID, "update", "task", taskID, nil)

	httpserver.Respond(w, http.StatusOK, toResponse(t, nil))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	workspaceID, taskID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	if err := db.New(h.pool).DeleteTask(r.Context(), workspaceID, taskID); err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "TASK_DELETE_FAILED", "could not delete task", err))
		return
	}

	listcache.Invalidate(r.Context(), h.store, "tasks_list:workspace", workspaceID.String())
	h.audit.LogFromRequest(r, workspaceID, "delete", "task", taskID, nil)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return uuid.UUID{}, uuid.UUID{}, false
	}
	taskID, err := uuid.Parse(chi.URLParam(r, "taskId"))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_TASK_ID", "task id is not a valid identifier"))
		return uuid.UUID{}, uuid.UUID{}, false
	}
	return workspaceID, taskID, true
}
