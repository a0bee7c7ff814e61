package session

import (
	"context"
	"net/http"

	"github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/logger"
)

// DefaultCookieName is the session cookie name used when none is configured.
const DefaultCookieName = "gatehouse_session"

// sessionContextKey is the key used to store the Session in the request
// context. An empty struct key prevents collisions with other context keys.
type sessionContextKey struct{}

// WithSession stores a Session in the context.
func WithSession(ctx context.Context, sess *Session) context.Context {
	if sess == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// FromContext retrieves the Session from the context.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*Session)
	return sess, ok
}

// Manager binds a session Store to the HTTP layer: it loads the session
// identified by the request cookie (creating an empty one when absent),
// injects it into the request context, and commits mutations atomically when
// the response starts being written.
type Manager struct {
	store      Store
	cookieName string
	cookiePath string
	secure     bool
}

// ManagerOption configures a Manager instance.
type ManagerOption func(*Manager)

// WithCookieName sets the session cookie name.
func WithCookieName(name string) ManagerOption {
	return func(m *Manager) {
		m.cookieName = name
	}
}

// WithSecureCookies marks the session cookie as Secure. Enable behind TLS.
func WithSecureCookies(secure bool) ManagerOption {
	return func(m *Manager) {
		m.secure = secure
	}
}

// NewManager creates a session Manager on top of the given store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		cookieName: DefaultCookieName,
		cookiePath: "/",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CookieName returns the configured session cookie name.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// Middleware loads the request session and commits it on response write.
//
// The commit happens on the first WriteHeader/Write call so that Set-Cookie
// headers land before any body bytes; handlers that return without writing
// are committed after they return.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.load(r)
		if err != nil {
			logger.Errorw("failed to load session", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		ctx := WithSession(r.Context(), sess)
		cw := &commitWriter{
			ResponseWriter: w,
			commit: func() error {
				return m.commit(ctx, sess, w)
			},
		}

		next.ServeHTTP(cw, r.WithContext(ctx))
		cw.ensureCommitted()
	})
}

// load reconstructs the session named by the request cookie, or creates a
// fresh empty session.
func (m *Manager) load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return newSession("", nil), nil
	}

	values, err := m.store.Get(r.Context(), cookie.Value)
	if err != nil {
		return nil, errors.NewSessionStoreError("failed to read session", err)
	}
	// A stale cookie naming a vanished session gets a fresh one.
	return newSession(cookie.Value, values), nil
}

// commit persists the session mutations and adjusts the cookie. It is a
// no-op for sessions that were neither mutated nor rotated nor destroyed.
func (m *Manager) commit(ctx context.Context, sess *Session, w http.ResponseWriter) error {
	id, rotatedFrom, values, isNew, dirty, destroyed := sess.snapshot()

	switch {
	case destroyed:
		if !isNew {
			if err := m.store.Remove(ctx, id); err != nil {
				return errors.NewSessionStoreError("failed to remove session", err)
			}
		}
		if rotatedFrom != "" {
			if err := m.store.Remove(ctx, rotatedFrom); err != nil {
				return errors.NewSessionStoreError("failed to remove session", err)
			}
		}
		m.clearCookie(w)

	case rotatedFrom != "":
		if err := m.store.Remove(ctx, rotatedFrom); err != nil {
			return errors.NewSessionStoreError("failed to remove rotated session", err)
		}
		if err := m.store.Insert(ctx, id, values); err != nil {
			return errors.NewSessionStoreError("failed to write session", err)
		}
		m.setCookie(w, id)

	case dirty:
		if err := m.store.Insert(ctx, id, values); err != nil {
			return errors.NewSessionStoreError("failed to write session", err)
		}
		if isNew {
			m.setCookie(w, id)
		}
	}

	sess.markCommitted()
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     m.cookiePath,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     m.cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// commitWriter commits the session on the first response write. A commit
// failure downgrades the response to a 500 before any headers are sent.
type commitWriter struct {
	http.ResponseWriter
	commit    func() error
	committed bool
	failed    bool
}

func (w *commitWriter) WriteHeader(code int) {
	if !w.committed {
		w.committed = true
		if err := w.commit(); err != nil {
			logger.Errorw("failed to commit session", "error", err)
			w.failed = true
			w.ResponseWriter.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
	if w.failed {
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	if w.failed {
		// Swallow the original body; the 500 has already been written.
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

// ensureCommitted commits sessions for handlers that never wrote a response.
func (w *commitWriter) ensureCommitted() {
	if w.committed {
		return
	}
	w.committed = true
	if err := w.commit(); err != nil {
		logger.Errorw("failed to commit session", "error", err)
		w.failed = true
		w.ResponseWriter.WriteHeader(http.StatusInternalServerError)
	}
}
