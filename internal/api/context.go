package api

import (
	"context"
	"errors"

	"github.com/hyperengineering/goalboard/internal/identity"
)

// claimsContextKey is the context key for verified session claims.
type claimsContextKey struct{}

// ErrNoClaimsInContext indicates the request was not authenticated.
var ErrNoClaimsInContext = errors.New("no session claims in context")

// WithClaims returns a new context with the session claims attached.
func WithClaims(ctx context.Context, c *identity.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

// ClaimsFromContext extracts the session claims from the context.
func ClaimsFromContext(ctx context.Context) (*identity.Claims, error) {
	c, ok := ctx.Value(claimsContextKey{}).(*identity.Claims)
	if !ok || c == nil {
		return nil, ErrNoClaimsInContext
	}
	return c, nil
}
