package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/permissions"
)

func TestMemoryProviderUserLookup(t *testing.T) {
	t.Parallel()

	p := NewMemoryProvider()
	require.NoError(t, p.AddUser(&User{PrincipalID: "vovan", Name: "Vovan"}))

	user, err := p.GetByPrincipalID(context.Background(), "vovan")
	require.NoError(t, err)
	assert.Equal(t, "vovan", user.PrincipalID)
	assert.Equal(t, "Vovan", user.Name)

	_, err = p.GetByPrincipalID(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryProviderCaseSensitivePrincipals(t *testing.T) {
	t.Parallel()

	p := NewMemoryProvider()
	require.NoError(t, p.AddUser(&User{PrincipalID: "Vovan"}))

	_, err := p.GetByPrincipalID(context.Background(), "vovan")
	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryProviderRejectsBadSeeds(t *testing.T) {
	t.Parallel()

	p := NewMemoryProvider()
	require.Error(t, p.AddUser(nil))
	require.Error(t, p.AddUser(&User{}))

	require.NoError(t, p.AddUser(&User{PrincipalID: "vovan"}))
	require.Error(t, p.AddUser(&User{PrincipalID: "vovan"}))
}

func TestMemoryProviderReturnsCopies(t *testing.T) {
	t.Parallel()

	p := NewMemoryProvider()
	require.NoError(t, p.AddUser(&User{PrincipalID: "vovan", Name: "Vovan"}))

	first, err := p.GetByPrincipalID(context.Background(), "vovan")
	require.NoError(t, err)
	first.Name = "mutated"

	second, err := p.GetByPrincipalID(context.Background(), "vovan")
	require.NoError(t, err)
	assert.Equal(t, "Vovan", second.Name)
}

func TestMemoryProviderPermissions(t *testing.T) {
	t.Parallel()

	p := NewMemoryProvider()
	require.NoError(t, p.AddUser(&User{PrincipalID: "vovan"}))
	p.GrantUser("vovan", "read", "write")
	p.AddGroup("admins", "admin")
	p.AddGroup("auditors", "audit")
	p.AssignGroup("vovan", "admins")

	user, err := p.GetByPrincipalID(context.Background(), "vovan")
	require.NoError(t, err)

	direct, err := p.GetUserPermissions(context.Background(), user)
	require.NoError(t, err)
	assert.ElementsMatch(t, []permissions.Permission{"read", "write"}, direct.Permissions())

	grouped, err := p.GetGroupPermissions(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, []permissions.Permission{"admin"}, grouped.Permissions())

	// Unassigned groups do not leak through.
	assert.False(t, grouped.Contains("audit"))
}

func TestMemoryProviderPermissionsForUnknownUser(t *testing.T) {
	t.Parallel()

	p := NewMemoryProvider()
	stranger := &User{PrincipalID: "stranger"}

	direct, err := p.GetUserPermissions(context.Background(), stranger)
	require.NoError(t, err)
	assert.True(t, direct.IsEmpty())

	grouped, err := p.GetGroupPermissions(context.Background(), stranger)
	require.NoError(t, err)
	assert.True(t, grouped.IsEmpty())
}

func TestMemoryProviderUpdateAccessToken(t *testing.T) {
	t.Parallel()

	p := NewMemoryProvider()
	require.NoError(t, p.AddUser(&User{PrincipalID: "vovan"}))

	updated, err := p.UpdateAccessToken(context.Background(), "vovan", "token-1")
	require.NoError(t, err)
	assert.Equal(t, "token-1", updated.AccessToken)

	reloaded, err := p.GetByPrincipalID(context.Background(), "vovan")
	require.NoError(t, err)
	assert.Equal(t, "token-1", reloaded.AccessToken)

	_, err = p.UpdateAccessToken(context.Background(), "nobody", "token-2")
	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryProviderStats(t *testing.T) {
	t.Parallel()

	p := NewMemoryProvider()
	require.NoError(t, p.AddUser(&User{PrincipalID: "vovan"}))
	p.AddGroup("admins", "admin")

	stats := p.Stats()
	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, 1, stats.Groups)
}

func TestMemoryProviderCancelledContext(t *testing.T) {
	t.Parallel()

	p := NewMemoryProvider()
	require.NoError(t, p.AddUser(&User{PrincipalID: "vovan"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GetByPrincipalID(ctx, "vovan")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUserEqual(t *testing.T) {
	t.Parallel()

	a := &User{PrincipalID: "vovan", Name: "first"}
	b := &User{PrincipalID: "vovan", Name: "second"}
	c := &User{PrincipalID: "petya"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
	assert.True(t, (*User)(nil).Equal(nil))
}
