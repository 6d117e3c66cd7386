// ABOUTME: Request-scoped caller identity carried through context.Context
// ABOUTME: Provides WithClaims/FromContext so tools can see who is calling

package auth

import (
	"context"
)

// claimsContextKey is the key type for storing Claims in context.Context.
type claimsContextKey struct{}

// WithClaims returns a new context with the caller's claims attached.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

// FromContext retrieves the caller's claims, returning nil if not present.
func FromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return c
}

// MustFromContext retrieves the caller's claims, panicking if not present.
func MustFromContext(ctx context.Context) *Claims {
	c := FromContext(ctx)
	if c == nil {
		panic("auth: Claims not found in context")
	}
	return c
}
