package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-dev/gatehouse/pkg/credentials"
	"github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
)

func TestCompositeRequiresChildren(t *testing.T) {
	t.Parallel()

	_, err := NewCompositeBackend()
	assert.True(t, errors.IsNoRequestedBackend(err))
}

func TestCompositeRequiresSharedProvider(t *testing.T) {
	t.Parallel()

	comparator := providers.NewPlaintextComparator()
	first := newTestProvider(t)
	second := newTestProvider(t)

	_, err := NewCompositeBackend(
		WithBasic(NewBasicBackend(first, comparator)),
		WithForm(NewFormBackend(second, comparator)),
	)
	assert.True(t, errors.IsDifferentProviders(err))

	// The same instance behind every child is fine.
	_, err = NewCompositeBackend(
		WithBasic(NewBasicBackend(first, comparator)),
		WithForm(NewFormBackend(first, comparator)),
		WithClientCert(NewClientCertBackend(first)),
	)
	require.NoError(t, err)
}

func TestCompositeAuthenticateDispatch(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	comparator := providers.NewPlaintextComparator()

	c, err := NewCompositeBackend(
		WithBasic(NewBasicBackend(p, comparator)),
		WithForm(NewFormBackend(p, comparator)),
	)
	require.NoError(t, err)

	creds, err := credentials.NewPassword("vovan", "qwerty", "")
	require.NoError(t, err)

	user, err := c.Authenticate(context.Background(), creds)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "vovan", user.PrincipalID)

	// No cross-kind fallback: oauth2 credentials with no oauth2 child.
	oauthCreds, err := credentials.NewOAuth2("code", "s", "s")
	require.NoError(t, err)

	_, err = c.Authenticate(context.Background(), oauthCreds)
	assert.True(t, errors.IsNoRequestedBackend(err))
}

func TestCompositePasswordDispatchWithoutForm(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	c, err := NewCompositeBackend(
		WithBasic(NewBasicBackend(p, providers.NewPlaintextComparator())),
	)
	require.NoError(t, err)

	creds, err := credentials.NewPassword("vovan", "qwerty", "")
	require.NoError(t, err)

	user, err := c.Authenticate(context.Background(), creds)
	require.NoError(t, err)
	require.NotNil(t, user)
}

func TestCompositeProbeOrder(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	c, err := NewCompositeBackend(
		WithBasic(NewBasicBackend(p, providers.NewPlaintextComparator())),
		WithClientCert(NewClientCertBackend(p)),
	)
	require.NoError(t, err)

	// Both mechanisms could identify a user; the declared order makes the
	// Basic header win.
	r := requestWithCert(certWith("tokenonly", nil, nil))
	r.SetBasicAuth("vovan", "qwerty")

	user, err := c.AuthenticateRequest(context.Background(), r, nil)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "vovan", user.PrincipalID)
}

func TestCompositeProbeContinuesPastRejection(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	c, err := NewCompositeBackend(
		WithBasic(NewBasicBackend(p, providers.NewPlaintextComparator())),
		WithClientCert(NewClientCertBackend(p)),
	)
	require.NoError(t, err)

	// The Basic credentials are wrong, the certificate is good.
	r := requestWithCert(certWith("vovan", nil, nil))
	r.SetBasicAuth("vovan", "dvorak")

	user, err := c.AuthenticateRequest(context.Background(), r, nil)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "vovan", user.PrincipalID)
}

func TestCompositeProbeNobody(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	c, err := NewCompositeBackend(
		WithBasic(NewBasicBackend(p, providers.NewPlaintextComparator())),
	)
	require.NoError(t, err)

	user, err := c.AuthenticateRequest(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestCompositeProbeFatalShortCircuits(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)

	// The seeded verifier is not a bcrypt hash, so the comparison itself
	// fails, which is a fatal provider error rather than a rejection.
	c, err := NewCompositeBackend(
		WithBasic(NewBasicBackend(p, providers.NewBcryptComparator())),
		WithClientCert(NewClientCertBackend(p)),
	)
	require.NoError(t, err)

	r := requestWithCert(certWith("vovan", nil, nil))
	r.SetBasicAuth("vovan", "qwerty")

	_, err = c.AuthenticateRequest(context.Background(), r, nil)
	assert.True(t, errors.IsProviderBackend(err))
}

func TestCompositeProposeFirstChildWins(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	comparator := providers.NewPlaintextComparator()
	r := httptest.NewRequest(http.MethodGet, "/app/dashboard", nil)

	c, err := NewCompositeBackend(
		WithBasic(NewBasicBackend(p, comparator)),
		WithForm(NewFormBackend(p, comparator)),
	)
	require.NoError(t, err)

	action, err := c.ProposeAuthAction(r)
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, ActionBasic, action.Kind)

	// With Basic silenced, the form challenge comes through.
	c, err = NewCompositeBackend(
		WithBasic(NewBasicBackend(p, comparator, WithBasicMode(ModeSupported))),
		WithForm(NewFormBackend(p, comparator)),
	)
	require.NoError(t, err)

	action, err = c.ProposeAuthAction(r)
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, ActionLoginForm, action.Kind)
}

func TestCompositeProposeNoChallenge(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	c, err := NewCompositeBackend(
		WithBasic(NewBasicBackend(p, providers.NewPlaintextComparator(), WithBasicMode(ModeSupported))),
	)
	require.NoError(t, err)

	action, err := c.ProposeAuthAction(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, action)
}

func TestCompositeGetUser(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	c, err := NewCompositeBackend(
		WithBasic(NewBasicBackend(p, providers.NewPlaintextComparator())),
	)
	require.NoError(t, err)

	user, err := c.GetUser(context.Background(), "vovan")
	require.NoError(t, err)
	assert.Equal(t, "vovan", user.PrincipalID)

	_, err = c.GetUser(context.Background(), "nobody")
	assert.True(t, errors.IsNotFound(err))
}
