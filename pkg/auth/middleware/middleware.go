// Package middleware provides the HTTP middleware chain of the
// authentication core: session principal resolution and the authentication
// gate that challenges anonymous requests.
package middleware

import (
	"net/http"

	"github.com/gatehouse-dev/gatehouse/pkg/auth"
	"github.com/gatehouse-dev/gatehouse/pkg/logger"
	"github.com/gatehouse-dev/gatehouse/pkg/session"
)

// ResolveSession creates an HTTP middleware that resolves the session's
// stored principal into a user and attaches an AuthSession to the request
// context. It must run after the session manager's middleware.
//
// Anonymous requests pass through with an AuthSession carrying no user; it
// is the authentication gate, not this middleware, that rejects them.
func ResolveSession(backend auth.Backend) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := session.FromContext(r.Context())
			if !ok {
				logger.Error("session middleware missing in front of session resolution")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			user, err := auth.ResolveSessionUser(r.Context(), backend, sess)
			if err != nil {
				logger.Errorw("failed to resolve session principal", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			ctx := auth.WithAuthSession(r.Context(), auth.NewAuthSession(backend, sess, user))
			ctx = auth.WithUser(ctx, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthentication creates an HTTP middleware that lets authenticated
// requests through and challenges the rest.
//
// A request already carrying a user (from the session, resolved upstream)
// passes immediately. Otherwise the backend probes the request for
// credentials; when the probe finds nobody, the backend's proposed challenge
// is written, falling back to a bare 401 when no backend offers one.
func RequireAuthentication(backend auth.Backend) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.UserFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			sess, _ := session.FromContext(r.Context())
			user, err := backend.AuthenticateRequest(r.Context(), r, sess)
			if err != nil {
				logger.Errorw("authentication backend failed", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if user == nil {
				challenge(backend, w, r, sess)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}

// challenge writes the backend's proposed authentication action. Redirecting
// challenges persist their single-use state in the session before the
// response is written.
func challenge(backend auth.Backend, w http.ResponseWriter, r *http.Request, sess *session.Session) {
	action, err := backend.ProposeAuthAction(r)
	if err != nil {
		logger.Errorw("failed to build authentication challenge", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if action == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if sess != nil {
		switch action.Kind {
		case auth.ActionOAuthRedirect:
			sess.Set(auth.SessionKeyCSRFState, action.CSRFState)
			sess.Set(auth.SessionKeyNextURL, r.URL.RequestURI())
		case auth.ActionLoginForm:
			sess.Set(auth.SessionKeyNextURL, r.URL.RequestURI())
		}
	}

	action.WriteResponse(w, r)
}
