package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kollabhq/kollab/internal/apierror"
	"github.com/kollabhq/kollab/internal/auth"
	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/httpserver"
)

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	queries *db.Queries
}

// NewHandler creates an audit log Handler.
func NewHandler(queries *db.Queries) *Handler {
	return &Handler{queries: queries}
}

// Routes returns a chi.Router with audit log routes mounted. The caller
// mounts this under a workspace-scoped prefix already guarded by
// auth.RequireWorkspaceRole.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}

	params, perr := httpserver.ParseOffsetParams(r)
	if perr != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindValidation, "INVALID_PAGE_PARAMS", perr.Error(), perr))
		return
	}

	entries, err := h.queries.ListAuditEvents(r.Context(), workspaceID, params.PageSize, params.Offset)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "AUDIT_LIST_FAILED", "failed to list audit log", err))
		return
	}

	total, err := h.queries.CountAuditEvents(r.Context(), workspaceID)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "AUDIT_COUNT_FAILED", "failed to count audit log", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(entries, params, total))
}
