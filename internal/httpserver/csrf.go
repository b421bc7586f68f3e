package httpserver

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/kollabhq/kollab/internal/apierror"
)

const (
	csrfCookieName = "kollab_csrf"
	csrfHeaderName = "X-CSRF-Token"
	csrfCookieTTL  = 7 * 24 * time.Hour
	csrfTokenBytes = 32
)

// csrfExempt is the exempt set from §4.7 stage 3: routes state-changing
// methods never require a matching CSRF header on.
var csrfExempt = map[string]struct{}{
	"/api/v1/auth/login":    {},
	"/api/v1/auth/register": {},
	"/health/live":          {},
	"/health/ready":         {},
}

// IssueCSRFCookie is pipeline stage 2: ensure a cookie-bound token exists,
// issuing a new one when absent.
func IssueCSRFCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(csrfCookieName); err != nil {
			token := newCSRFToken()
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookieName,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				Secure:   true,
				SameSite: http.SameSiteStrictMode,
				Expires:  time.Now().Add(csrfCookieTTL),
			})
		}
		next.ServeHTTP(w, r)
	})
}

// ValidateCSRF is pipeline stage 3: for state-changing methods outside the
// exempt set, the request header token must match the cookie token,
// compared in constant time.
func ValidateCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isStateChanging(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		if _, exempt := csrfExempt[r.URL.Path]; exempt {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil {
			HandleError(w, r, apierror.New(apierror.KindForbidden, "CSRF_MISSING", "missing CSRF cookie"))
			return
		}
		header := r.Header.Get(csrfHeaderName)
		if header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
			HandleError(w, r, apierror.New(apierror.KindForbidden, "CSRF_MISMATCH", "CSRF token mismatch"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func newCSRFToken() string {
	b := make([]byte, csrfTokenBytes)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
