package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kollabhq/kollab/internal/apierror"
	"github.com/kollabhq/kollab/internal/reqctx"
	"github.com/kollabhq/kollab/internal/telemetry"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// RequestID injects a unique request ID into each request's context and
// response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code and
// response size, both needed by the performance logger's fields.
type statusWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.bytesWritten += n
	return n, err
}

// PerformanceLogger is stage 6 of the pipeline (§4.7): it records a single
// structured line per request with the level selected by status/duration.
func PerformanceLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			duration := time.Since(start)
			route := normalizedRoute(r)
			attrs := []any{
				"method", r.Method,
				"route", route,
				"status", sw.status,
				"duration_ms", duration.Milliseconds(),
				"principal_id", reqctx.PrincipalIDFromContext(r.Context()),
				"request_bytes", r.ContentLength,
				"response_bytes", sw.bytesWritten,
				"request_id", RequestIDFromContext(r.Context()),
			}

			switch {
			case sw.status >= 500:
				logger.Error("http request", attrs...)
			case sw.status >= 400 || duration > 1000*time.Millisecond:
				logger.Warn("http request", attrs...)
			case duration >= 500*time.Millisecond:
				logger.Info("http request", attrs...)
			default:
				logger.Debug("http request", attrs...)
			}
		})
	}
}

// Metrics records request duration and count to Prometheus, keyed by
// normalized route (§4.9).
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := normalizedRoute(r)
		status := strconv.Itoa(sw.status)
		telemetry.HTTPRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		telemetry.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

func normalizedRoute(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// ErrorContext is stage 5: it enriches any typed failure a downstream
// handler stashed on the request (via HandleError) with correlation
// fields, then renders it. Handlers call HandleError instead of writing
// the response body directly so this stage can annotate before encoding.
func ErrorContext(devMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ew := &errorCapturingWriter{ResponseWriter: w}
			next.ServeHTTP(ew, r)
			if ew.err == nil {
				return
			}
			enriched := apierror.Enrich(ew.err, apierror.Context{
				Path:        r.URL.Path,
				Method:      r.Method,
				PrincipalID: reqctx.PrincipalIDFromContext(r.Context()),
				Timestamp:   time.Now(),
			})
			RespondProblem(w, enriched, devMode)
		})
	}
}

// errorCapturingWriter lets a handler defer writing the body until
// ErrorContext has had a chance to enrich the error via HandleError.
type errorCapturingWriter struct {
	http.ResponseWriter
	err error
}

// HandleError is called by route handlers instead of RespondProblem
// directly, so the error-context middleware can enrich it first.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if ew, ok := w.(*errorCapturingWriter); ok {
		ew.err = err
		return
	}
	// No ErrorContext middleware present (e.g. unit test harness): render directly.
	RespondProblem(w, err, false)
}

// PrincipalIDFromContext delegates to reqctx, kept here so callers in this
// package do not need the extra import.
func PrincipalIDFromContext(ctx context.Context) string {
	return reqctx.PrincipalIDFromContext(ctx)
}
