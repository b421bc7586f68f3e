// Package note implements the Note resource: simple per-item CRUD, with
// no listing endpoint — notes have no list cache namespace in the
// authoritative cache table and are addressed individually.
package note

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kollabhq/kollab/internal/apierror"
	"github.com/kollabhq/kollab/internal/audit"
	"github.com/kollabhq/kollab/internal/auth"
	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/httpserver"
)

// Handler serves note routes.
type Handler struct {
	pool  *pgxpool.Pool
	audit *audit.Writer
}

// NewHandler creates a note Handler.
func NewHandler(pool *pgxpool.Pool, auditWriter *audit.Writer) *Handler {
	return &Handler{pool: pool, audit: auditWriter}
}

type createRequest struct {
	Body string `json:"body" validate:"required,min=1"`
}

type updateRequest struct {
	Body string `json:"body" validate:"required,min=1"`
}

type noteResponse struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	CreatedBy string `json:"createdBy"`
}

func toResponse(n db.Note) noteResponse {
	return noteResponse{ID: n.ID.String(), Body: n.Body, CreatedBy: n.CreatedBy.String()}
}

// Routes returns a chi.Router for "/{workspaceId}/notes".
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/{noteId}", h.handleGet)
	r.Patch("/{noteId}", h.handleUpdate)
	r.Delete("/{noteId}", h.handleDelete)
	return r
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

	n, err := db.New(h.pool).CreateNote(r.Context(), db.CreateNoteParams{
		WorkspaceID: workspaceID,
		Body:        req.Body,
		CreatedBy:   id.PrincipalID,
	})
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "NOTE_CREATE_FAILED", "could not create note", err))
		return
	}

	h.audit.LogFromRequest(r, workspaceID, "create", "note", n.ID, nil)
	httpserver.Respond(w, http.StatusCreated, toResponse(n))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	workspaceID, noteID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	n, err := db.New(h.pool).GetNote(r.Context(), workspaceID, noteID)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindNotFound, "NOTE_NOT_FOUND", "note does not exist", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, toResponse(n))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	workspaceID, noteID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	n, err := db.New(h.pool).UpdateNote(r.Context(), workspaceID, noteID, req.Body)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "NOTE_UPDATE_FAILED", "could not update note", err))
		return
	}

	h.audit.LogFromRequest(r, workspaceID, "update", "note", noteID, nil)
	httpserver.Respond(w, http.StatusOK, toResponse(n))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	workspaceID, noteID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	if err := db.New(h.pool).DeleteNote(r.Context(), workspaceID, noteID); err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "NOTE_DELETE_FAILED", "could not delete note", err))
		return
	}

	h.audit.LogFromRequest(r, workspaceID, "delete", "note", noteID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return uuid.UUID{}, uuid.UUID{}, false
	}
	noteID, err := uuid.Parse(chi.URLParam(r, "noteId"))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_NOTE_ID", "note id is not a valid identifier"))
		return uuid.UUID{}, uuid.UUID{}, false
	}
	return workspaceID, noteID, true
}
