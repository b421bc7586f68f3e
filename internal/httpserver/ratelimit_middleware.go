package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kollabhq/kollab/internal/apierror"
	"github.com/kollabhq/kollab/internal/ratelimit"
)

func rateLimitedErr(bucket string) error {
	return apierror.New(apierror.KindRateLimited, "RATE_LIMITED", "too many requests").WithDetail("bucket", bucket)
}

// RateLimit is pipeline stage 7 (§4.7): a middleware factory bound to a
// single bucket, applied per-route. It writes X-RateLimit-* headers on
// every response and Retry-After / X-RateLimit-Warning when applicable.
func RateLimit(limiter *ratelimit.Limiter, bucket ratelimit.Bucket) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := ratelimit.KeyPrincipal(PrincipalIDFromContext(r.Context()), clientAddr(r))
			res := limiter.Check(r.Context(), bucket, principal)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.ResetAt.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}
			if res.Degraded {
				w.Header().Set("X-RateLimit-Warning", "rate limiter cache unavailable, failing open")
			}

			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter/time.Second)))
				HandleError(w, r, rateLimitedErr(bucket.Name))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	return r.RemoteAddr
}
