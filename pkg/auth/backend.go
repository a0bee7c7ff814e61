package auth

import (
	"context"
	"net/http"

	"github.com/gatehouse-dev/gatehouse/pkg/credentials"
	"github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
	"github.com/gatehouse-dev/gatehouse/pkg/session"
)

// Session keys the authentication core persists in the external session
// store.
const (
	// SessionKeyPrincipalID identifies the logged-in user.
	SessionKeyPrincipalID = "auth.principal_id"

	// SessionKeyNextURL is the post-login redirect target captured before an
	// OAuth redirect or a login form challenge.
	SessionKeyNextURL = "auth.next-url"

	// SessionKeyCSRFState is the state value sent to the OAuth provider.
	// It is consumed exactly once by the callback.
	SessionKeyCSRFState = "oauth.csrf-state"
)

// Backend is the contract every single-mechanism authentication backend
// implements. The composite backend aggregates Backends in a fixed order.
type Backend interface {
	// Authenticate verifies explicit credentials. A (nil, nil) return means
	// the credentials were rejected; errors are reserved for CSRF
	// mismatches, wrong credential kinds and provider failures.
	Authenticate(ctx context.Context, creds credentials.Credentials) (*providers.User, error)

	// GetUser looks up a user by principal id.
	GetUser(ctx context.Context, principalID string) (*providers.User, error)

	// AuthenticateRequest probes the request for credentials this backend
	// recognizes. A (nil, nil) return means the request carries nothing for
	// this backend, or what it carries was rejected.
	AuthenticateRequest(ctx context.Context, r *http.Request, sess *session.Session) (*providers.User, error)

	// ProposeAuthAction returns the challenge this backend offers for an
	// unauthenticated request, or nil when it offers none.
	ProposeAuthAction(r *http.Request) (*ProposeAuthAction, error)
}

// authenticatePassword is the password verification shared by the Basic and
// Form backends: look up the user, then compare in constant time.
//
// Unknown users and wrong passwords are both plain rejections so that
// callers cannot be distinguished by response shape (enumeration
// resistance).
func authenticatePassword(
	ctx context.Context,
	users providers.UserProvider,
	comparator providers.PasswordComparator,
	creds credentials.Password,
) (*providers.User, error) {
	user, err := users.GetByPrincipalID(ctx, creds.User)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	if user.PasswordHash == "" {
		// The user cannot authenticate with a password at all.
		return nil, nil
	}

	match, err := comparator.Compare(creds.Password, user.PasswordHash)
	if err != nil {
		return nil, errors.NewProviderBackendError("password comparison failed", err)
	}
	if !match {
		return nil, nil
	}
	return user, nil
}
