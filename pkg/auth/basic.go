package auth

import (
	"context"
	"net/http"

	"github.com/gatehouse-dev/gatehouse/pkg/credentials"
	"github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
	"github.com/gatehouse-dev/gatehouse/pkg/session"
)

// DefaultRealm is the Basic authentication realm used when none is
// configured.
const DefaultRealm = "Restricted"

// BasicBackend authenticates requests carrying an Authorization: Basic
// header against the user store.
type BasicBackend struct {
	users      providers.UserProvider
	comparator providers.PasswordComparator
	mode       Mode
	realm      string
}

// BasicOption configures a BasicBackend.
type BasicOption func(*BasicBackend)

// WithBasicMode sets the backend mode.
func WithBasicMode(mode Mode) BasicOption {
	return func(b *BasicBackend) {
		b.mode = mode
	}
}

// WithBasicRealm sets the challenge realm.
func WithBasicRealm(realm string) BasicOption {
	return func(b *BasicBackend) {
		b.realm = realm
	}
}

// NewBasicBackend creates an HTTP Basic authentication backend.
func NewBasicBackend(users providers.UserProvider, comparator providers.PasswordComparator, opts ...BasicOption) *BasicBackend {
	b := &BasicBackend{
		users:      users,
		comparator: comparator,
		mode:       ModeProposed,
		realm:      DefaultRealm,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Authenticate verifies password credentials.
func (b *BasicBackend) Authenticate(ctx context.Context, creds credentials.Credentials) (*providers.User, error) {
	pw, ok := creds.(credentials.Password)
	if !ok {
		return nil, errors.NewNoRequestedBackendError("basic backend only handles password credentials", nil)
	}
	return authenticatePassword(ctx, b.users, b.comparator, pw)
}

// GetUser looks up a user by principal id.
func (b *BasicBackend) GetUser(ctx context.Context, principalID string) (*providers.User, error) {
	return b.users.GetByPrincipalID(ctx, principalID)
}

// AuthenticateRequest decodes an Authorization: Basic header, if present,
// and verifies it. Requests without the header, or with a malformed one,
// carry nothing for this backend.
func (b *BasicBackend) AuthenticateRequest(ctx context.Context, r *http.Request, _ *session.Session) (*providers.User, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, nil
	}

	creds, err := credentials.NewPassword(username, password, "")
	if err != nil {
		// Empty username or password decodes fine but cannot match anyone.
		return nil, nil
	}
	return b.Authenticate(ctx, creds)
}

// ProposeAuthAction offers the Basic challenge in proposed mode.
func (b *BasicBackend) ProposeAuthAction(_ *http.Request) (*ProposeAuthAction, error) {
	if b.mode != ModeProposed {
		return nil, nil
	}
	return ProposeBasic(b.realm), nil
}

// userProvider exposes the provider identity for the composite's
// single-instance check.
func (b *BasicBackend) userProvider() providers.UserProvider {
	return b.users
}

var _ Backend = (*BasicBackend)(nil)
