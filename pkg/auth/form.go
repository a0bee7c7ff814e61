package auth

import (
	"context"
	"net/http"

	"github.com/gatehouse-dev/gatehouse/pkg/credentials"
	"github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
	"github.com/gatehouse-dev/gatehouse/pkg/session"
)

// DefaultLoginURL is the login form location used when none is configured.
const DefaultLoginURL = "/login"

// FormBackend authenticates username/password pairs submitted through the
// HTML login form. It never authenticates a bare request by itself: a
// successful form login persists the principal in the session, and the
// session layer recognizes it on subsequent requests.
type FormBackend struct {
	users      providers.UserProvider
	comparator providers.PasswordComparator
	mode       Mode
	loginURL   string
}

// FormOption configures a FormBackend.
type FormOption func(*FormBackend)

// WithFormMode sets the backend mode.
func WithFormMode(mode Mode) FormOption {
	return func(f *FormBackend) {
		f.mode = mode
	}
}

// WithLoginURL sets the login form location.
func WithLoginURL(loginURL string) FormOption {
	return func(f *FormBackend) {
		f.loginURL = loginURL
	}
}

// NewFormBackend creates a login form authentication backend.
func NewFormBackend(users providers.UserProvider, comparator providers.PasswordComparator, opts ...FormOption) *FormBackend {
	f := &FormBackend{
		users:      users,
		comparator: comparator,
		mode:       ModeProposed,
		loginURL:   DefaultLoginURL,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// LoginURL returns the login form location.
func (f *FormBackend) LoginURL() string {
	return f.loginURL
}

// Authenticate verifies password credentials.
func (f *FormBackend) Authenticate(ctx context.Context, creds credentials.Credentials) (*providers.User, error) {
	pw, ok := creds.(credentials.Password)
	if !ok {
		return nil, errors.NewNoRequestedBackendError("form backend only handles password credentials", nil)
	}
	return authenticatePassword(ctx, f.users, f.comparator, pw)
}

// GetUser looks up a user by principal id.
func (f *FormBackend) GetUser(ctx context.Context, principalID string) (*providers.User, error) {
	return f.users.GetByPrincipalID(ctx, principalID)
}

// AuthenticateRequest never recognizes per-request credentials; only
// session-carried principals reach this backend, and those are resolved by
// the session layer.
func (*FormBackend) AuthenticateRequest(context.Context, *http.Request, *session.Session) (*providers.User, error) {
	return nil, nil
}

// ProposeAuthAction offers the login form challenge in proposed mode,
// preserving the originally requested URL.
func (f *FormBackend) ProposeAuthAction(r *http.Request) (*ProposeAuthAction, error) {
	if f.mode != ModeProposed {
		return nil, nil
	}
	return ProposeLoginForm(f.loginURL, r.URL.RequestURI()), nil
}

// userProvider exposes the provider identity for the composite's
// single-instance check.
func (f *FormBackend) userProvider() providers.UserProvider {
	return f.users
}

var _ Backend = (*FormBackend)(nil)
