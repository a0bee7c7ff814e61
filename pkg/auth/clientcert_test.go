package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-dev/gatehouse/pkg/providers"
)

func certWith(cn string, dnsNames []string, uris []*url.URL) *x509.Certificate {
	return &x509.Certificate{
		Subject:  pkix.Name{CommonName: cn},
		DNSNames: dnsNames,
		URIs:     uris,
	}
}

func requestWithCert(cert *x509.Certificate) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}
	return r
}

func TestParsePrincipalSource(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"cn", "san_dns", "san_uri"} {
		source, err := ParsePrincipalSource(valid)
		require.NoError(t, err)
		assert.Equal(t, PrincipalSource(valid), source)
	}

	_, err := ParsePrincipalSource("email")
	assert.Error(t, err)
}

func TestClientCertAuthenticateRequest(t *testing.T) {
	t.Parallel()

	spiffeID, err := url.Parse("spiffe://gatehouse/vovan")
	require.NoError(t, err)

	tests := []struct {
		name     string
		source   PrincipalSource
		cert     *x509.Certificate
		wantUser string
	}{
		{
			name:     "common name",
			source:   PrincipalFromCN,
			cert:     certWith("vovan", nil, nil),
			wantUser: "vovan",
		},
		{
			name:     "first dns san",
			source:   PrincipalFromSANDNS,
			cert:     certWith("ignored", []string{"vovan", "alt"}, nil),
			wantUser: "vovan",
		},
		{
			name:     "first uri san",
			source:   PrincipalFromSANURI,
			cert:     certWith("ignored", nil, []*url.URL{spiffeID}),
			wantUser: "spiffe://gatehouse/vovan",
		},
		{
			name:   "unknown principal",
			source: PrincipalFromCN,
			cert:   certWith("stranger", nil, nil),
		},
		{
			name:   "empty identity field",
			source: PrincipalFromSANDNS,
			cert:   certWith("vovan", nil, nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := providers.NewMemoryProvider()
			require.NoError(t, p.AddUser(&providers.User{PrincipalID: "vovan"}))
			require.NoError(t, p.AddUser(&providers.User{PrincipalID: "spiffe://gatehouse/vovan"}))

			b := NewClientCertBackend(p, WithPrincipalSource(tt.source))

			user, err := b.AuthenticateRequest(context.Background(), requestWithCert(tt.cert), nil)
			require.NoError(t, err)
			if tt.wantUser == "" {
				assert.Nil(t, user)
				return
			}
			require.NotNil(t, user)
			assert.Equal(t, tt.wantUser, user.PrincipalID)
		})
	}
}

func TestClientCertNoTLSState(t *testing.T) {
	t.Parallel()

	b := NewClientCertBackend(newTestProvider(t))

	user, err := b.AuthenticateRequest(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestClientCertProposeAuthAction(t *testing.T) {
	t.Parallel()

	b := NewClientCertBackend(newTestProvider(t))

	action, err := b.ProposeAuthAction(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, ActionClientCertDenied, action.Kind)
}
