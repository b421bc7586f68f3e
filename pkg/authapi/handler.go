// Package authapi implements the unauthenticated entry points of C10:
// register, login, logout, and the authenticated "me" endpoint. Register
// provisions a principal plus a default owner-owned workspace in one
// transaction (S1).
package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kollabhq/kollab/internal/apierror"
	"github.com/kollabhq/kollab/internal/auth"
	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/dbtxn"
	"github.com/kollabhq/kollab/internal/httpserver"
)

// Handler serves the auth entry points.
type Handler struct {
	pool     *pgxpool.Pool
	queries  *db.Queries
	sessions *auth.Manager
}

// NewHandler creates an authapi Handler.
func NewHandler(pool *pgxpool.Pool, queries *db.Queries, sessions *auth.Manager) *Handler {
	return &Handler{pool: pool, queries: queries, sessions: sessions}
}

// Routes returns a chi.Router with the auth routes mounted. Register and
// Login must be rate-limited with the "auth" bucket and are CSRF/session
// exempt by the pipeline's static exempt set.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(auth.RequireAuth).Get("/me", h.handleMe)
	return r
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1,max=200"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type workspaceSummary struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type sessionResponse struct {
	Principal principalSummary `json:"principal"`
	Workspace workspaceSummary `json:"workspace,omitempty"`
}

type principalSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if violations := auth.ValidatePassword(req.Password); len(violations) > 0 {
		err := apierror.New(apierror.KindValidation, "WEAK_PASSWORD", "password does not meet the policy")
		err.WithDetail("violations", violations)
		httpserver.HandleError(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindInternal, "PASSWORD_HASH_FAILED", "could not hash password", err))
		return
	}

	type registerResult struct {
		principal db.Principal
		workspace db.Workspace
	}

	res, txErr := dbtxn.WithTransaction(r.Context(), h.pool, dbtxn.DefaultOptions(), func(ctx context.Context, q *db.Queries) (registerResult, error) {
		principal, err := q.CreatePrincipal(ctx, db.CreatePrincipalParams{
			Email:        req.Email,
			Name:         req.Name,
			PasswordHash: hash,
		})
		if err != nil {
			if isUniqueViolation(err) {
				return registerResult{}, apierror.New(apierror.KindConflict, "EMAIL_TAKEN", "an account with this email already exists")
			}
			return registerResult{}, apierror.Wrap(apierror.KindDatabase, "PRINCIPAL_CREATE_FAILED", "could not create principal", err)
		}

		slug := fmt.Sprintf("a-workspace-%d", time.Now().UnixNano())
		workspace, err := q.CreateWorkspace(ctx, db.CreateWorkspaceParams{
			Slug:      slug,
			Name:      req.Name + "'s Workspace",
			CreatedBy: principal.ID,
			Settings:  json.RawMessage(`{}`),
		})
		if err != nil {
			return registerResult{}, apierror.Wrap(apierror.KindDatabase, "WORKSPACE_CREATE_FAILED", "could not create default workspace", err)
		}

		if _, err := q.CreateMembership(ctx, workspace.ID, principal.ID, db.RoleOwner); err != nil {
			return registerResult{}, apierror.Wrap(apierror.KindDatabase, "MEMBERSHIP_CREATE_FAILED", "could not create owner membership", err)
		}

		return registerResult{principal: principal, workspace: workspace}, nil
	})
	if txErr != nil {
		httpserver.HandleError(w, r, txErr)
		return
	}

	token, _, err := h.sessions.Issue(r.Context(), res.principal.ID)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindInternal, "SESSION_ISSUE_FAILED", "could not start session", err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	httpserver.Respond(w, http.StatusCreated, sessionResponse{
		Principal: principalSummary{ID: res.principal.ID.String(), Email: res.principal.Email, Name: res.principal.Name},
		Workspace: workspaceSummary{ID: res.workspace.ID.String(), Slug: res.workspace.Slug, Name: res.workspace.Name, Role: string(db.RoleOwner)},
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	principal, err := h.queries.GetPrincipalByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.HandleError(w, r, apierror.New(apierror.KindUnauthenticated, "INVALID_CREDENTIALS", "email or password is incorrect"))
			return
		}
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "PRINCIPAL_LOOKUP_FAILED", "could not look up principal", err))
		return
	}

	if !auth.ComparePassword(principal.PasswordHash, req.Password) {
		httpserver.HandleError(w, r, apierror.New(apierror.KindUnauthenticated, "INVALID_CREDENTIALS", "email or password is incorrect"))
		return
	}

	token, _, err := h.sessions.Issue(r.Context(), principal.ID)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindInternal, "SESSION_ISSUE_FAILED", "could not start session", err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	httpserver.Respond(w, http.StatusOK, sessionResponse{
		Principal: principalSummary{ID: principal.ID.String(), Email: principal.Email, Name: principal.Name},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
		h.sessions.Logout(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	httpserver.Respond(w, http.StatusOK, principalSummary{ID: id.PrincipalID.String(), Email: id.Email, Name: id.Name})
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
