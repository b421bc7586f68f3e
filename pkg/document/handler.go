// Package document implements the Document resource's CRUD routes: list
// (via C4's cached aggregator), create, update, archive, delete. Every
// mutation invalidates the documents_list:{workspaceId} cache and appends
// an audit event.
package document

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

// documentsListKey must match the shortKey listcache.GetOrCompute is
// called with in handleList, so invalidation evicts exactly that entry.
func documentsListKey(workspaceID uuid.UUID) string {
	return "documents_list:" + workspaceID.String()
}

func (h *Handler) invalidateList(ctx context.Context, workspaceID uuid.UUID) {
	h.store.Delete(ctx, "listcache:"+documentsListKey(workspaceID))
}

const listTTL = 5 * time.Minute

// Handler serves document routes, mounted under a workspace-scoped prefix.
type Handler struct {
	pool   *pgxpool.Pool
	store  *cache.Store
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a document Handler.
func NewHandler(pool *pgxpool.Pool, store *cache.Store, logger *slog.Logger, auditWriter *audit.Writer) *Handler {
	return &Handler{pool: pool, store: store, logger: logger, audit: auditWriter}
}

type createRequest struct {
	Title string `json:"title" validate:"required,min=1,max=300"`
	Body  string `json:"body"`
}

type updateRequest struct {
	Title string `json:"title" validate:"required,min=1,max=300"`
	Body  string `json:"body"`
}

type documentResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Archived  bool   `json:"archived"`
	CreatedBy string `json:"createdBy"`
}

func toResponse(d db.Document) documentResponse {
	return documentResponse{ID: d.ID.String(), Title: d.Title, Body: d.Body, Archived: d.Archived, CreatedBy: d.CreatedBy.String()}
}

// Routes returns a chi.Router for "/{workspaceId}/documents".
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{documentId}", h.handleGet)
	r.Patch("/{documentId}", h.handleUpdate)
	r.Post("/{documentId}/archive", h.handleArchive)
	r.Delete("/{documentId}", h.handleDelete)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}

	docs, err := listcache.GetOrCompute(r.Context(), h.store, h.logger, documentsListKey(workspaceID), listTTL, func(ctx context.Context) ([]db.Document, error) {
		return db.New(h.pool).ListDocuments(ctx, workspaceID)
	})
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "DOCUMENTS_LIST_FAILED", "could not list documents", err))
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toResponse(d))
	}
	httpserver.Respond(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	workspaceID, documentID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	doc, err := db.New(h.pool).GetDocument(r.Context(), workspaceID, documentID)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindNotFound, "DOCUMENT_NOT_FOUND", "document does not exist", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, toResponse(doc))
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

	doc, err := db.New(h.pool).CreateDocument(r.Context(), db.CreateDocumentParams{
		WorkspaceID: workspaceID,
		Title:       req.Title,
		Body:        req.Body,
		CreatedBy:   id.PrincipalID,
	})
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "DOCUMENT_CREATE_FAILED", "could not create document", err))
		return
	}

	h.invalidateList(r.Context(), workspaceID)
	h.audit.LogFromRequest(r, workspaceID, "create", "document", doc.ID, nil)

	httpserver.Respond(w, http.StatusCreated, toResponse(doc))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	workspaceID, documentID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	doc, err := db.New(h.pool).UpdateDocument(r.Context(), workspaceID, documentID, req.Title, req.Body)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "DOCUMENT_UPDATE_FAILED", "could not update document", err))
		return
	}

	h.invalidateList(r.Context(), workspaceID)
	h.audit.LogFromRequest(r, workspaceID, "update", "document", documentID, nil)

	httpserver.Respond(w, http.StatusOK, toResponse(doc))
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	workspaceID, documentID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	if err := db.New(h.pool).ArchiveDocument(r.Context(), workspaceID, documentID); err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "DOCUMENT_ARCHIVE_FAILED", "could not archive document", err))
		return
	}

	h.invalidateList(r.Context(), workspaceID)
	h.audit.LogFromRequest(r, workspaceID, "archive", "document", documentID, nil)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	workspaceID, documentID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	if err := db.New(h.pool).DeleteDocument(r.Context(), workspaceID, documentID); err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "DOCUMENT_DELETE_FAILED", "could not delete document", err))
		return
	}

	h.invalidateList(r.Context(), workspaceID)
	h.audit.LogFromRequest(r, workspaceID, "delete", "document", documentID, nil)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return uuid.UUID{}, uuid.UUID{}, false
	}
	documentID, err := uuid.Parse(chi.URLParam(r, "documentId"))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_DOCUMENT_ID", "document id is not a valid identifier"))
		return uuid.UUID{}, uuid.UUID{}, false
	}
	return workspaceID, documentID, true
}
