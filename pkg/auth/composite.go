package auth

import (
	"context"
	"net/http"

	"github.com/gatehouse-dev/gatehouse/pkg/credentials"
	"github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/logger"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
	"github.com/gatehouse-dev/gatehouse/pkg/session"
)

// CompositeBackend aggregates up to one backend per mechanism behind a
// single Backend surface. Request probing and challenge selection run the
// children strictly in declared order: Basic, Form, OAuth2, ClientCert.
//
// All children must share the same provider instances; this is checked once
// at construction time, never at runtime.
type CompositeBackend struct {
	basic      *BasicBackend
	form       *FormBackend
	oauth2     *OAuth2Backend
	clientCert *ClientCertBackend

	users providers.UserProvider
}

// CompositeOption configures a CompositeBackend.
type CompositeOption func(*CompositeBackend)

// WithBasic adds the HTTP Basic backend.
func WithBasic(b *BasicBackend) CompositeOption {
	return func(c *CompositeBackend) {
		c.basic = b
	}
}

// WithForm adds the login form backend.
func WithForm(f *FormBackend) CompositeOption {
	return func(c *CompositeBackend) {
		c.form = f
	}
}

// WithOAuth2 adds the OAuth2 backend.
func WithOAuth2(o *OAuth2Backend) CompositeOption {
	return func(c *CompositeBackend) {
		c.oauth2 = o
	}
}

// WithClientCert adds the client TLS certificate backend.
func WithClientCert(cc *ClientCertBackend) CompositeOption {
	return func(c *CompositeBackend) {
		c.clientCert = cc
	}
}

// NewCompositeBackend creates a composite backend over the configured
// children. It fails when no child is configured, and when two children do
// not share the same user provider instance.
func NewCompositeBackend(opts ...CompositeOption) (*CompositeBackend, error) {
	c := &CompositeBackend{}
	for _, opt := range opts {
		opt(c)
	}

	var userProviders []providers.UserProvider
	if c.basic != nil {
		userProviders = append(userProviders, c.basic.userProvider())
	}
	if c.form != nil {
		userProviders = append(userProviders, c.form.userProvider())
	}
	if c.oauth2 != nil {
		userProviders = append(userProviders, c.oauth2.userProvider())
	}
	if c.clientCert != nil {
		userProviders = append(userProviders, c.clientCert.userProvider())
	}

	if len(userProviders) == 0 {
		return nil, errors.NewNoRequestedBackendError("composite backend needs at least one child backend", nil)
	}
	for _, p := range userProviders[1:] {
		// Interface identity: providers are pointer-shaped, so equality is
		// pointer equality on the underlying instance.
		if p != userProviders[0] {
			return nil, errors.NewDifferentProvidersError("all child backends must share the same provider instance", nil)
		}
	}
	c.users = userProviders[0]

	return c, nil
}

// children returns the present child backends in declared order.
func (c *CompositeBackend) children() []Backend {
	out := make([]Backend, 0, 4)
	if c.basic != nil {
		out = append(out, c.basic)
	}
	if c.form != nil {
		out = append(out, c.form)
	}
	if c.oauth2 != nil {
		out = append(out, c.oauth2)
	}
	if c.clientCert != nil {
		out = append(out, c.clientCert)
	}
	return out
}

// Authenticate dispatches the credentials to the child responsible for
// their kind. There is no fallback across credential kinds: a missing child
// is a no_requested_backend error.
//
// Password credentials go to the form backend when present, otherwise to the
// basic backend; the two verify identically.
func (c *CompositeBackend) Authenticate(ctx context.Context, creds credentials.Credentials) (*providers.User, error) {
	switch creds.Kind() {
	case credentials.KindPassword:
		if c.form != nil {
			return c.form.Authenticate(ctx, creds)
		}
		if c.basic != nil {
			return c.basic.Authenticate(ctx, creds)
		}
	case credentials.KindOAuth2:
		if c.oauth2 != nil {
			return c.oauth2.Authenticate(ctx, creds)
		}
	case credentials.KindClientCert:
		if c.clientCert != nil {
			return c.clientCert.Authenticate(ctx, creds)
		}
	}
	return nil, errors.NewNoRequestedBackendError(
		"no backend configured for credential kind "+string(creds.Kind()), nil)
}

// GetUser looks up a user by principal id through the shared provider.
func (c *CompositeBackend) GetUser(ctx context.Context, principalID string) (*providers.User, error) {
	return c.users.GetByPrincipalID(ctx, principalID)
}

// AuthenticateRequest probes the children in declared order. The first user
// wins; fatal errors short-circuit; soft failures let the next child take a
// turn.
func (c *CompositeBackend) AuthenticateRequest(ctx context.Context, r *http.Request, sess *session.Session) (*providers.User, error) {
	for _, child := range c.children() {
		user, err := child.AuthenticateRequest(ctx, r, sess)
		if err != nil {
			if errors.IsFatal(err) {
				return nil, err
			}
			logger.Debugw("backend rejected request credentials", "error", err)
			continue
		}
		if user != nil {
			return user, nil
		}
	}
	return nil, nil
}

// ProposeAuthAction returns the first challenge any child offers for the
// request, in declared order. Challenge selection never fails: a child whose
// proposal errors is skipped.
func (c *CompositeBackend) ProposeAuthAction(r *http.Request) (*ProposeAuthAction, error) {
	for _, child := range c.children() {
		action, err := child.ProposeAuthAction(r)
		if err != nil {
			logger.Warnw("backend failed to propose a challenge", "error", err)
			continue
		}
		if action != nil {
			return action, nil
		}
	}
	return nil, nil
}

var _ Backend = (*CompositeBackend)(nil)
