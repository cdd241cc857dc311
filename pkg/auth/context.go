package auth

import "context"

// securityContextKey is a private type for the context key.
type securityContextKey struct{}

// WithSecurityContext attaches the active SecurityContext to the context so
// downstream handlers can retrieve it without threading it through every
// call signature.
func WithSecurityContext(ctx context.Context, sc *SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey{}, sc)
}

// FromContext retrieves the active SecurityContext.
// Returns nil if none is attached.
func FromContext(ctx context.Context) *SecurityContext {
	if v, ok := ctx.Value(securityContextKey{}).(*SecurityContext); ok {
		return v
	}
	return nil
}
