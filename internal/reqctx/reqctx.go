// Package reqctx holds the request-context keys shared between the auth
// and httpserver packages, so neither has to import the other just to pass
// the authenticated principal id through context.Context.
package reqctx

import "context"

type principalIDKey struct{}

// WithPrincipalID attaches a principal id to ctx.
func WithPrincipalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, principalIDKey{}, id)
}

// PrincipalIDFromContext returns the attached principal id, or "" if none.
func PrincipalIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(principalIDKey{}).(string); ok {
		return v
	}
	return ""
}
