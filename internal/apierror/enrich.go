package apierror

import "time"

// Context carries the correlation fields the error-context stage adds to
// every typed failure's Details: path, method, principalId, timestamp.
type Context struct {
	Path        string
	Method      string
	PrincipalID string
	Timestamp   time.Time
}

// Enrich annotates err's Details with ctx's correlation fields, merging
// without overwriting any field the caller already set. Enrich is a no-op
// for errors that are not *Error (those are mapped to KindInternal by
// ToProblemAny at render time, where no per-request context is attached).
func Enrich(err error, ctx Context) error {
	ae, ok := As(err)
	if !ok {
		return err
	}
	ae.WithDetail("path", ctx.Path)
	ae.WithDetail("method", ctx.Method)
	if ctx.PrincipalID != "" {
		ae.WithDetail("principalId", ctx.PrincipalID)
	}
	ae.WithDetail("timestamp", ctx.Timestamp.UTC().Format(time.RFC3339))
	return ae
}
