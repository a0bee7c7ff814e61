// Package providers defines the capability contracts the authentication core
// consumes from the user/permission store, together with an in-memory
// implementation and the password comparators.
//
// Persistence is external to the core: anything that can answer these
// interfaces can back it. The in-memory provider in this package is used by
// tests and small deployments; pkg/providers/sqlite carries the SQL flavor.
package providers

import (
	"context"

	"github.com/gatehouse-dev/gatehouse/pkg/permissions"
)

// User is the principal record the providers hand back.
// Equality of users is defined solely by PrincipalID.
type User struct {
	// PrincipalID is the stable, unique, case-sensitive principal identifier.
	PrincipalID string

	// Name is the display name.
	Name string

	// PasswordHash is the stored password verifier, empty when the user
	// cannot authenticate with a password.
	PasswordHash string

	// AccessToken is the last OAuth2 access token stored for the user,
	// empty when the user never completed an OAuth2 login.
	AccessToken string
}

// Equal reports whether two users denote the same principal.
func (u *User) Equal(other *User) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.PrincipalID == other.PrincipalID
}

// Clone returns a copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// UserProvider looks up users by principal id.
type UserProvider interface {
	// GetByPrincipalID returns the user with the given principal id.
	// It returns a not_found error when no such user exists, and must be
	// idempotent and side-effect free.
	GetByPrincipalID(ctx context.Context, principalID string) (*User, error)
}

// PermissionProvider resolves the permissions attached to a user directly and
// through its groups.
type PermissionProvider interface {
	// GetUserPermissions returns the permissions granted to the user itself.
	GetUserPermissions(ctx context.Context, user *User) (permissions.Set, error)

	// GetGroupPermissions returns the permissions granted through the
	// user's group memberships.
	GetGroupPermissions(ctx context.Context, user *User) (permissions.Set, error)
}

// OAuth2UserStore persists OAuth2 access tokens for known principals.
type OAuth2UserStore interface {
	UserProvider

	// UpdateAccessToken stores the access token for the given principal and
	// returns the updated user. It returns a not_found error for unknown
	// principals and is atomic with respect to concurrent lookups of the
	// same principal.
	UpdateAccessToken(ctx context.Context, principalID, token string) (*User, error)
}

// PasswordComparator verifies a cleartext password against a stored verifier.
// Implementations must take constant time with respect to the password.
type PasswordComparator interface {
	// Compare reports whether password matches the stored verifier.
	// A mismatch is (false, nil); the error is reserved for malformed
	// verifiers or comparator failures.
	Compare(password, stored string) (bool, error)
}
