package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-dev/gatehouse/pkg/credentials"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
)

func TestFormAuthenticate(t *testing.T) {
	t.Parallel()

	f := NewFormBackend(newTestProvider(t), providers.NewPlaintextComparator())

	creds, err := credentials.NewPassword("vovan", "qwerty", "/app/dashboard")
	require.NoError(t, err)

	user, err := f.Authenticate(context.Background(), creds)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "vovan", user.PrincipalID)

	creds, err = credentials.NewPassword("vovan", "dvorak", "")
	require.NoError(t, err)

	user, err = f.Authenticate(context.Background(), creds)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestFormNeverAuthenticatesBareRequests(t *testing.T) {
	t.Parallel()

	f := NewFormBackend(newTestProvider(t), providers.NewPlaintextComparator())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetBasicAuth("vovan", "qwerty")

	user, err := f.AuthenticateRequest(context.Background(), r, nil)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestFormProposeAuthAction(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/app/dashboard?tab=1", nil)

	proposed := NewFormBackend(newTestProvider(t), providers.NewPlaintextComparator())
	action, err := proposed.ProposeAuthAction(r)
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, ActionLoginForm, action.Kind)
	assert.Equal(t, "/login", action.LoginURL)
	assert.Equal(t, "/app/dashboard?tab=1", action.InitialURL)

	supported := NewFormBackend(newTestProvider(t), providers.NewPlaintextComparator(),
		WithFormMode(ModeSupported))
	action, err = supported.ProposeAuthAction(r)
	require.NoError(t, err)
	assert.Nil(t, action)
}

func TestFormCustomLoginURL(t *testing.T) {
	t.Parallel()

	f := NewFormBackend(newTestProvider(t), providers.NewPlaintextComparator(),
		WithLoginURL("/auth/signin"))
	assert.Equal(t, "/auth/signin", f.LoginURL())

	action, err := f.ProposeAuthAction(httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, "/auth/signin", action.LoginURL)
}
