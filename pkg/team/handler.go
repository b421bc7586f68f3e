// Package team implements the Team resource. Creating a team inserts the
// team row and its leader's team_members row atomically via C5, per the
// "team + leader membership" transaction example (§4.5).
package team

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
	"github.com/kollabhq/kollab/internal/dbtxn"
	"github.com/kollabhq/kollab/internal/httpserver"
	"github.com/kollabhq/kollab/internal/listcache"
)

const listTTL = 5 * time.Minute

// Handler serves team routes.
type Handler struct {
	pool   *pgxpool.Pool
	store  *cache.Store
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a team Handler.
func NewHandler(pool *pgxpool.Pool, store *cache.Store, logger *slog.Logger, auditWriter *audit.Writer) *Handler {
	return &Handler{pool: pool, store: store, logger: logger, audit: auditWriter}
}

type createRequest struct {
	Name     string     `json:"name" validate:"required,min=1,max=200"`
	LeaderID *uuid.UUID `json:"leaderId"`
}

type memberRequest struct {
	PrincipalID string `json:"principalId" validate:"required,uuid"`
}

type teamResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LeaderID string `json:"leaderId"`
}

func toResponse(t db.Team) teamResponse {
	return teamResponse{ID: t.ID.String(), Name: t.Name, LeaderID: t.LeaderID.String()}
}

func listKey(workspaceID uuid.UUID) string {
	return "teams_list:" + workspaceID.String()
}

// Routes returns a chi.Router for "/{workspaceId}/teams".
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{teamId}", h.handleGet)
	r.Post("/{teamId}/members", h.handleAddMember)
	r.Delete("/{teamId}/members/{principalId}", h.handleRemoveMember)
	r.Delete("/{teamId}", h.handleDelete)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}

	teams, err := listcache.GetOrCompute(r.Context(), h.store, h.logger, listKey(workspaceID), listTTL, func(ctx context.Context) ([]db.Team, error) {
		return db.New(h.pool).ListTeams(ctx, workspaceID)
	})
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "TEAMS_LIST_FAILED", "could not list teams", err))
		return
	}

	out := make([]teamResponse, 0, len(teams))
	for _, t := range teams {
		out = append(out, toResponse(t))
	}
	httpserver.Respond(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	workspaceID, teamID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	t, err := db.New(h.pool).GetTeam(r.Context(), workspaceID, teamID)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindNotFound, "TEAM_NOT_FOUND", "team does not exist", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, toResponse(t))
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
	leaderID := id.PrincipalID
	if req.LeaderID != nil {
		leaderID = *req.LeaderID
	}

	team, txErr := dbtxn.WithTransaction(r.Context(), h.pool, dbtxn.DefaultOptions(), func(ctx context.Context, q *db.Queries) (db.Team, error) {
		team, err := q.CreateTeam(ctx, db.CreateTeamParams{
			WorkspaceID: workspaceID,
			Name:        req.Name,
			LeaderID:    leaderID,
		})
		if err != nil {
			return db.Team{}, apierror.Wrap(apierror.KindDatabase, "TEAM_CREATE_FAILED", "could not create team", err)
		}
		if err := q.AddTeamMember(ctx, team.ID, leaderID); err != nil {
			return db.Team{}, apierror.Wrap(apierror.KindDatabase, "TEAM_MEMBER_ADD_FAILED", "could not add leader to team", err)
		}
		return team, nil
	})
	if txErr != nil {
		httpserver.HandleError(w, r, txErr)
		return
	}

	h.store.Delete(r.Context(), "listcache:"+listKey(workspaceID))
	h.audit.LogFromRequest(r, workspaceID, "create", "team", team.ID, nil)

	httpserver.Respond(w, http.StatusCreated, toResponse(team))
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	workspaceID, teamID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	var req memberRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	principalID, err := uuid.Parse(req.PrincipalID)
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_PRINCIPAL_ID", "principal id is not a valid identifier"))
		return
	}

	if err := db.New(h.pool).AddTeamMember(r.Context(), teamID, principalID); err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "TEAM_MEMBER_ADD_FAILED", "could not add team member", err))
		return
	}

	h.audit.LogFromRequest(r, workspaceID, "add_member", "team", teamID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	workspaceID, teamID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	principalID, err := uuid.Parse(chi.URLParam(r, "principalId"))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_PRINCIPAL_ID", "principal id is not a valid identifier"))
		return
	}

	if err := db.New(h.pool).RemoveTeamMember(r.Context(), teamID, principalID); err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "TEAM_MEMBER_REMOVE_FAILED", "could not remove team member", err))
		return
	}

	h.audit.LogFromRequest(r, workspaceID, "remove_member", "team", teamID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	workspaceID, teamID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	if err := db.New(h.pool).DeleteTeam(r.Context(), workspaceID, teamID); err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "TEAM_DELETE_FAILED", "could not delete team", err))
		return
	}

	h.store.Delete(r.Context(), "listcache:"+listKey(workspaceID))
	h.audit.LogFromRequest(r, workspaceID, "delete", "team", teamID, nil)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return uuid.UUID{}, uuid.UUID{}, false
	}
	teamID, err := uuid.Parse(chi.URLParam(r, "teamId"))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_TEAM_ID", "team id is not a valid identifier"))
		return uuid.UUID{}, uuid.UUID{}, false
	}
	return workspaceID, teamID, true
}
