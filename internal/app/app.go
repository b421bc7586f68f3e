// Package app wires every core and feature package into a running server:
// config, database, cache, migrations, the membership resolver, the rate
// limiter, the session manager, and the route tree described by §2's
// component table.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/kollabhq/kollab/internal/audit"
	"github.com/kollabhq/kollab/internal/auth"
	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/config"
	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/httpserver"
	"github.com/kollabhq/kollab/internal/membership"
	"github.com/kollabhq/kollab/internal/platform"
	"github.com/kollabhq/kollab/internal/ratelimit"
	"github.com/kollabhq/kollab/internal/telemetry"
	"github.com/kollabhq/kollab/pkg/authapi"
	"github.com/kollabhq/kollab/pkg/document"
	"github.com/kollabhq/kollab/pkg/member"
	"github.com/kollabhq/kollab/pkg/note"
	"github.com/kollabhq/kollab/pkg/project"
	"github.com/kollabhq/kollab/pkg/search"
	"github.com/kollabhq/kollab/pkg/task"
	"github.com/kollabhq/kollab/pkg/team"
	"github.com/kollabhq/kollab/pkg/workspace"
)

// Run is the application entry point: it reads config, connects to
// infrastructure, and serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting kollab",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb, err := platform.NewCacheClient(ctx, cfg.CacheURL)
	if err != nil {
		return fmt.Errorf("connecting to cache: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing cache client", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, pool, rdb, metricsReg)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	store := cache.NewStore(rdb, logger)
	queries := db.New(pool)

	if cfg.AuthSecret == "" {
		return errors.New("AUTH_SECRET must be set")
	}
	sessionExpiry := time.Duration(cfg.SessionExpiryDays) * 24 * time.Hour
	sessions, err := auth.NewManager(cfg.AuthSecret, sessionExpiry, queries, store, logger)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	resolver := membership.New(store, queries, logger)
	limiter := ratelimit.New(store, logger)

	// Audit log writer (async, buffered).
	auditWriter := audit.NewWriter(pool, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	srv := httpserver.NewServer(cfg, logger, pool, rdb, metricsReg, sessions, queries, store)

	// --- Auth routes: login/register are in the CSRF exempt set (§4.7
	// stage 3) and rate-limited against brute force; /me requires a
	// session like any other authenticated route. ---
	authHandler := authapi.NewHandler(pool, queries, sessions)
	srv.APIRouter.Mount("/auth", httpserver.RateLimited(limiter, "auth", authHandler.Routes().ServeHTTP))

	// --- Workspace-scoped feature routes, mounted under /api/v1 ---
	workspaceHandler := workspace.NewHandler(pool, queries, store, resolver)
	srv.APIRouter.Mount("/workspaces", workspaceHandler.Routes())

	memberHandler := member.NewHandler(pool, queries, resolver, store, cfg.IsSystemAdmin, logger)
	documentHandler := document.NewHandler(pool, store, logger, auditWriter)
	taskHandler := task.NewHandler(pool, store, logger, auditWriter)
	projectHandler := project.NewHandler(pool, store, logger, auditWriter)
	teamHandler := team.NewHandler(pool, store, logger, auditWriter)
	noteHandler := note.NewHandler(pool, auditWriter)
	searchHandler := search.NewHandler(pool, store, logger)

	srv.APIRouter.Route("/workspaces/{"+auth.WorkspaceIDParam+"}", func(r chi.Router) {
		r.Use(auth.RequireWorkspaceRole(resolver, auth.WorkspaceIDParam, db.RoleViewer, cfg.IsSystemAdmin))
		r.Mount("/", workspaceHandler.DetailRoutes())
		r.Mount("/members", memberHandler.Routes())
		r.Mount("/documents", documentHandler.Routes())
		r.Mount("/tasks", taskHandler.Routes())
		r.Mount("/projects", projectHandler.Routes())
		r.Mount("/teams", teamHandler.Routes())
		r.Mount("/notes", noteHandler.Routes())
		r.Mount("/search", searchHandler.Routes())
	})

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
