package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kollabhq/kollab/internal/auth"
	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/config"
	"github.com/kollabhq/kollab/internal/ratelimit"
)

// Server holds the HTTP server dependencies.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router // CSRF-protected, session-authenticated /api/v1 sub-router
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer wires the pipeline described by §4.7: CORS, CSRF issuance and
// validation, session authentication, error-context enrichment, the
// performance logger, and (per-route) rate limiting. Domain handlers are
// mounted onto APIRouter by the caller after NewServer returns.
func NewServer(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, sessions *auth.Manager, principals auth.PrincipalQueries, store *cache.Store) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Metrics)
	s.Router.Use(PerformanceLogger(logger))
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", csrfHeaderName},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/health/live", s.handleHealthz)
	s.Router.Get("/health/ready", s.handleReadyz)
	s.Router.Handle(cfg.MetricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(IssueCSRFCookie)
		r.Use(ValidateCSRF)
		r.Use(auth.Middleware(sessions, principals, store, logger))
		r.Use(ErrorContext(false))

		s.APIRouter = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		Respond(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "component": "database"})
		return
	}

	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("readiness check: redis ping failed", "error", err)
		Respond(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "component": "cache"})
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// RateLimited wraps handler with the rate limiter bound to bucket, the
// convenience form of RateLimit for per-route mounting.
func RateLimited(limiter *ratelimit.Limiter, bucketName string, handler http.HandlerFunc) http.Handler {
	bucket, ok := ratelimit.Buckets[bucketName]
	if !ok {
		bucket = ratelimit.Bucket{Name: bucketName, Window: time.Minute, MaxRequest: 60}
	}
	return RateLimit(limiter, bucket)(handler)
}
