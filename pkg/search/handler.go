// Package search implements the cached cross-resource search endpoint.
// Results are cached under search: (md5 of query+workspaceId+limit, 2 min),
// never explicitly invalidated — staleness is bounded purely by the short
// ttl, since a write-triggered invalidation would have to fan out across
// every indexed resource type for no real benefit at this ttl.
package search

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kollabhq/kollab/internal/apierror"
	"github.com/kollabhq/kollab/internal/auth"
	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/httpserver"
)

const (
	ttl          = 2 * time.Minute
	defaultLimit = 20
	maxLimit     = 100
)

// Handler serves the search endpoint.
type Handler struct {
	pool   *pgxpool.Pool
	cache  *cache.Client[[]db.SearchResult]
	logger *slog.Logger
}

// NewHandler creates a search Handler.
func NewHandler(pool *pgxpool.Pool, store *cache.Store, logger *slog.Logger) *Handler {
	return &Handler{
		pool:   pool,
		cache:  cache.NewClient[[]db.SearchResult](store, "search", ttl),
		logger: logger,
	}
}

type resultResponse struct {
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
}

// Routes returns a chi.Router for "/{workspaceId}/search".
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleSearch)
	return r
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, auth.WorkspaceIDParam))
	if err != nil {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "INVALID_WORKSPACE_ID", "workspace id is not a valid identifier"))
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		httpserver.HandleError(w, r, apierror.New(apierror.KindValidation, "MISSING_QUERY", "q query parameter is required"))
		return
	}

	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	key := searchCacheKey(query, workspaceID, limit)
	if e, ok := h.cache.Get(r.Context(), key); ok && e.Present {
		httpserver.Respond(w, http.StatusOK, toResponses(e.Value))
		return
	}

	results, err := db.New(h.pool).Search(r.Context(), workspaceID, query, limit)
	if err != nil {
		httpserver.HandleError(w, r, apierror.Wrap(apierror.KindDatabase, "SEARCH_FAILED", "could not run search", err))
		return
	}
	if err := h.cache.Set(r.Context(), key, results); err != nil {
		h.logger.Warn("search cache write failed", "error", err)
	}

	httpserver.Respond(w, http.StatusOK, toResponses(results))
}

func toResponses(results []db.SearchResult) []resultResponse {
	out := make([]resultResponse, 0, len(results))
	for _, r := range results {
		out = append(out, resultResponse{
			ResourceType: r.ResourceType,
			ResourceID:   r.ResourceID.String(),
			Title:        r.Title,
			Snippet:      r.Snippet,
		})
	}
	return out
}

func searchCacheKey(query string, workspaceID uuid.UUID, limit int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s:%d", query, workspaceID.String(), limit)))
	return hex.EncodeToString(sum[:])
}
