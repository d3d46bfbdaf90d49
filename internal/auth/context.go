package auth

import "context"

type principalKey struct{}

// WithPrincipal attaches the authenticated principal id to the context.
// The API layer calls this after validating the session; the
// orchestrator reads it back so the value never comes from the request
// body.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalKey{}, principalID)
}

// PrincipalID returns the authenticated principal id, or empty when the
// request was not authenticated.
func PrincipalID(ctx context.Context) string {
	id, _ := ctx.Value(principalKey{}).(string)
	return id
}
