// Package apierror defines Kollab's typed failure taxonomy and its RFC 7807
// wire representation. Feature code raises these instead of string errors;
// the request pipeline's error-context stage enriches them and the outermost
// handler renders them without reclassifying.
package apierror

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind is a closed set of failure categories, neither HTTP- nor
// language-specific, per spec §4.6.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindRateLimited        Kind = "rate_limited"
	KindDatabase           Kind = "database"
	KindInternal           Kind = "internal"
	KindServiceUnavailable Kind = "service_unavailable"
)

// statusByKind maps each Kind to its HTTP status per the authoritative table.
var statusByKind = map[Kind]int{
	KindValidation:         http.StatusBadRequest,
	KindUnauthenticated:    http.StatusUnauthorized,
	KindForbidden:          http.StatusForbidden,
	KindNotFound:           http.StatusNotFound,
	KindConflict:           http.StatusConflict,
	KindRateLimited:        http.StatusTooManyRequests,
	KindDatabase:           http.StatusInternalServerError,
	KindInternal:           http.StatusInternalServerError,
	KindServiceUnavailable: http.StatusServiceUnavailable,
}

// Status returns the HTTP status code for a Kind, defaulting to 500 for an
// unrecognized kind.
func (k Kind) Status() int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is Kollab's typed failure. Code is an uppercase snake_case wire
// identifier distinct from Kind (Kind groups errors for HTTP mapping, Code
// is the stable machine-readable identifier a client may switch on).
type Error struct {
	Kind    Kind
	Code    string
	Detail  string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a typed Error.
func New(kind Kind, code, detail string) *Error {
	return &Error{Kind: kind, Code: code, Detail: detail, Details: map[string]any{}}
}

// Wrap creates a typed Error around a lower-level cause, preserving it for
// %w-style unwrapping while keeping the detail message user-facing.
func Wrap(kind Kind, code, detail string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Detail: detail, Details: map[string]any{}, cause: cause}
}

// WithDetail sets a key in the Details map, returning the receiver for
// chaining. It never overwrites a key that is already set.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	if _, exists := e.Details[key]; !exists {
		e.Details[key] = value
	}
	return e
}

// Problem is the RFC 7807 wire representation.
type Problem struct {
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Status  int            `json:"status"`
	Code    string         `json:"code"`
	Detail  string         `json:"detail"`
	Details map[string]any `json:"details,omitempty"`
}

// typeBase is the stable URI prefix for the `type` field of every problem.
const typeBase = "https://docs.kollab.dev/errors/"

// ToProblem converts a typed Error into its RFC 7807 representation.
func (e *Error) ToProblem() Problem {
	return Problem{
		Type:    typeBase + string(e.Kind),
		Title:   title(e.Kind),
		Status:  e.Kind.Status(),
		Code:    e.Code,
		Detail:  e.Detail,
		Details: e.Details,
	}
}

func title(k Kind) string {
	switch k {
	case KindValidation:
		return "Validation Failed"
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "Not Found"
	case KindConflict:
		return "Conflict"
	case KindRateLimited:
		return "Rate Limited"
	case KindDatabase:
		return "Database Error"
	case KindServiceUnavailable:
		return "Service Unavailable"
	default:
		return "Internal Error"
	}
}

// As reports whether err is (or wraps) an *Error, returning it if so.
func As(err error) (*Error, bool) {
	type wrapper interface{ Unwrap() error }
	for err != nil {
		if ae, ok := err.(*Error); ok {
			return ae, true
		}
		w, ok := err.(wrapper)
		if !ok {
			return nil, false
		}
		err = w.Unwrap()
	}
	return nil, false
}

// ToProblemAny converts any error into a Problem. Unknown errors are mapped
// to KindInternal with the original message suppressed unless dev is true.
func ToProblemAny(err error, dev bool) Problem {
	if ae, ok := As(err); ok {
		return ae.ToProblem()
	}
	detail := "an unexpected error occurred"
	if dev && err != nil {
		detail = err.Error()
	}
	return (&Error{Kind: KindInternal, Code: "INTERNAL", Detail: detail}).ToProblem()
}

// WriteProblem renders err as an RFC 7807 problem document directly onto
// w. It exists so packages that cannot import httpserver (to avoid an
// import cycle, e.g. auth) can still emit the same wire shape.
func WriteProblem(w http.ResponseWriter, err error, dev bool) {
	p := ToProblemAny(err, dev)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
