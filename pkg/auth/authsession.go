package auth

import (
	"context"

	"github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
	"github.com/gatehouse-dev/gatehouse/pkg/session"
)

// AuthSession ties the request's session to the authentication backend. It
// answers "who is logged in" and carries the login and logout transitions,
// which always go through the session so they survive the request.
type AuthSession struct {
	backend Backend
	session *session.Session
	user    *providers.User
}

// NewAuthSession creates an AuthSession over a request session. The user is
// the principal resolved for this request, or nil when the request is
// anonymous.
func NewAuthSession(backend Backend, sess *session.Session, user *providers.User) *AuthSession {
	return &AuthSession{
		backend: backend,
		session: sess,
		user:    user,
	}
}

// User returns the authenticated user, or nil for an anonymous request.
func (a *AuthSession) User() *providers.User {
	return a.user
}

// Session returns the underlying request session.
func (a *AuthSession) Session() *session.Session {
	return a.session
}

// Backend returns the authentication backend serving this session.
func (a *AuthSession) Backend() Backend {
	return a.backend
}

// Login records the user as the session principal. The session id is
// regenerated so a pre-login id handed to the client can never name an
// authenticated session.
func (a *AuthSession) Login(user *providers.User) {
	a.session.Set(SessionKeyPrincipalID, user.PrincipalID)
	a.session.RegenerateID()
	a.user = user
}

// Logout destroys the session. The record and the cookie are removed on
// commit, discarding every stored value along with the principal.
func (a *AuthSession) Logout() {
	a.session.Destroy()
	a.user = nil
}

// ResolveSessionUser loads the user named by the session's stored principal
// id, if any. A stale principal (removed from the store since login) clears
// the session binding and resolves to anonymous rather than failing the
// request.
func ResolveSessionUser(ctx context.Context, backend Backend, sess *session.Session) (*providers.User, error) {
	principalID, ok := sess.Get(SessionKeyPrincipalID)
	if !ok || principalID == "" {
		return nil, nil
	}

	user, err := backend.GetUser(ctx, principalID)
	if err != nil {
		if errors.IsNotFound(err) {
			// The principal was removed since login. Drop the stale binding
			// and treat the request as anonymous.
			sess.Delete(SessionKeyPrincipalID)
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}
