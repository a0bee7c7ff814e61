package auth

import (
	"context"
	"crypto/x509"
	"fmt"
	"net/http"

	"github.com/gatehouse-dev/gatehouse/pkg/credentials"
	"github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
	"github.com/gatehouse-dev/gatehouse/pkg/session"
)

// PrincipalSource selects the leaf certificate field the principal id is
// extracted from.
type PrincipalSource string

// Principal sources
const (
	// PrincipalFromCN uses the subject common name
	PrincipalFromCN = PrincipalSource("cn")

	// PrincipalFromSANDNS uses the first DNS subject alternative name
	PrincipalFromSANDNS = PrincipalSource("san_dns")

	// PrincipalFromSANURI uses the first URI subject alternative name
	PrincipalFromSANURI = PrincipalSource("san_uri")
)

// ParsePrincipalSource converts a configuration string into a
// PrincipalSource.
func ParsePrincipalSource(s string) (PrincipalSource, error) {
	switch PrincipalSource(s) {
	case PrincipalFromCN, PrincipalFromSANDNS, PrincipalFromSANURI:
		return PrincipalSource(s), nil
	default:
		return "", fmt.Errorf("unknown principal source %q (want cn, san_dns or san_uri)", s)
	}
}

// ClientCertBackend authenticates requests by the client TLS certificate the
// TLS layer verified during the handshake. The backend only re-checks that a
// certificate is present and maps its identity onto a known principal.
type ClientCertBackend struct {
	users  providers.UserProvider
	source PrincipalSource
}

// ClientCertOption configures a ClientCertBackend.
type ClientCertOption func(*ClientCertBackend)

// WithPrincipalSource sets the certificate field the principal id comes
// from.
func WithPrincipalSource(source PrincipalSource) ClientCertOption {
	return func(c *ClientCertBackend) {
		c.source = source
	}
}

// NewClientCertBackend creates a client TLS certificate backend.
func NewClientCertBackend(users providers.UserProvider, opts ...ClientCertOption) *ClientCertBackend {
	c := &ClientCertBackend{
		users:  users,
		source: PrincipalFromCN,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate maps the leaf certificate identity onto a known principal.
func (c *ClientCertBackend) Authenticate(ctx context.Context, creds credentials.Credentials) (*providers.User, error) {
	cc, ok := creds.(credentials.ClientCert)
	if !ok {
		return nil, errors.NewNoRequestedBackendError("client cert backend only handles certificate credentials", nil)
	}

	principalID := c.principalFromCert(cc.Leaf())
	if principalID == "" {
		return nil, nil
	}

	user, err := c.users.GetByPrincipalID(ctx, principalID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// principalFromCert extracts the principal id from the configured leaf
// certificate field.
func (c *ClientCertBackend) principalFromCert(leaf *x509.Certificate) string {
	switch c.source {
	case PrincipalFromSANDNS:
		if len(leaf.DNSNames) > 0 {
			return leaf.DNSNames[0]
		}
	case PrincipalFromSANURI:
		if len(leaf.URIs) > 0 {
			return leaf.URIs[0].String()
		}
	default:
		return leaf.Subject.CommonName
	}
	return ""
}

// GetUser looks up a user by principal id.
func (c *ClientCertBackend) GetUser(ctx context.Context, principalID string) (*providers.User, error) {
	return c.users.GetByPrincipalID(ctx, principalID)
}

// AuthenticateRequest pulls the peer certificates the TLS layer attached to
// the request, if any.
func (c *ClientCertBackend) AuthenticateRequest(ctx context.Context, r *http.Request, _ *session.Session) (*providers.User, error) {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return nil, nil
	}

	creds, err := credentials.NewClientCert(r.TLS.PeerCertificates)
	if err != nil {
		return nil, nil
	}
	return c.Authenticate(ctx, creds)
}

// ProposeAuthAction demands a client certificate. This challenge never
// redirects.
func (*ClientCertBackend) ProposeAuthAction(_ *http.Request) (*ProposeAuthAction, error) {
	return ProposeClientCertDenied(), nil
}

// userProvider exposes the provider identity for the composite's
// single-instance check.
func (c *ClientCertBackend) userProvider() providers.UserProvider {
	return c.users
}

var _ Backend = (*ClientCertBackend)(nil)
