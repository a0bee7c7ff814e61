// Package auth provides the pluggable authentication core: credential-typed
// single-mechanism backends, the ordered composite backend, the per-request
// AuthSession, and the propose-auth challenge responders.
package auth

import (
	"context"

	"github.com/gatehouse-dev/gatehouse/pkg/providers"
)

// UserContextKey is the key used to store the authenticated user in the
// request context.
//
// Using an empty struct as the key prevents collisions with other context
// keys, as each empty struct type is distinct even if they have the same name
// in different packages.
type UserContextKey struct{}

// WithUser stores the authenticated user in the context.
// If user is nil, the original context is returned unchanged.
//
// This is typically called by the authentication middleware after successful
// authentication to make the principal available to downstream handlers.
func WithUser(ctx context.Context, user *providers.User) context.Context {
	if user == nil {
		return ctx
	}
	return context.WithValue(ctx, UserContextKey{}, user)
}

// UserFromContext retrieves the authenticated user from the context.
// Returns the user and true if present, nil and false otherwise.
func UserFromContext(ctx context.Context) (*providers.User, bool) {
	user, ok := ctx.Value(UserContextKey{}).(*providers.User)
	return user, ok
}

// authSessionContextKey is the key used to store the AuthSession in the
// request context.
type authSessionContextKey struct{}

// WithAuthSession stores an AuthSession in the context.
func WithAuthSession(ctx context.Context, as *AuthSession) context.Context {
	if as == nil {
		return ctx
	}
	return context.WithValue(ctx, authSessionContextKey{}, as)
}

// AuthSessionFromContext retrieves the AuthSession from the context.
func AuthSessionFromContext(ctx context.Context) (*AuthSession, bool) {
	as, ok := ctx.Value(authSessionContextKey{}).(*AuthSession)
	return as, ok
}
