// Package server carries the HTTP surface of the authentication core: the
// login form, the logout endpoint and the OAuth2 redirect/callback pair.
package server

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-dev/gatehouse/pkg/auth"
	"github.com/gatehouse-dev/gatehouse/pkg/credentials"
	"github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/logger"
)

// loginFailedMessage is the only failure text the login form ever shows.
// Unknown users and wrong passwords produce the same page, byte for byte.
const loginFailedMessage = "Invalid username or password."

// AuthRoutes defines the routes for the authentication endpoints.
type AuthRoutes struct {
	backend auth.Backend
	oauth   *auth.OAuth2Backend
}

// AuthRouter creates a new router for the authentication endpoints. The
// OAuth2 backend is optional; when nil, the OAuth routes are not registered.
func AuthRouter(backend auth.Backend, oauth *auth.OAuth2Backend) http.Handler {
	routes := AuthRoutes{
		backend: backend,
		oauth:   oauth,
	}

	r := chi.NewRouter()
	routes.Register(r)
	return r
}

// Register attaches the authentication endpoints to the router.
func (a *AuthRoutes) Register(r chi.Router) {
	r.Get("/login", a.loginPage)
	r.Post("/login", a.loginSubmit)
	r.Get("/logout", a.logout)
	if a.oauth != nil {
		r.Post("/login/oauth", a.oauthStart)
		r.Get("/oauth/callback", a.oauthCallback)
	}
}

// loginPageData feeds the login form template.
type loginPageData struct {
	Next     string
	Error    string
	HasOAuth bool
}

var loginPageTemplate = template.Must(template.New("login").Parse(
	`<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
<input type="hidden" name="next" value="{{.Next}}">
<label>Username <input type="text" name="username" autocomplete="username"></label>
<label>Password <input type="password" name="password" autocomplete="current-password"></label>
<button type="submit">Sign in</button>
</form>
{{if .HasOAuth}}<form method="post" action="/login/oauth">
<input type="hidden" name="next" value="{{.Next}}">
<button type="submit">Sign in with your identity provider</button>
</form>{{end}}
</body>
</html>
`))

// loginPage renders the login form, preserving the next parameter.
func (a *AuthRoutes) loginPage(w http.ResponseWriter, r *http.Request) {
	a.renderLogin(w, r.URL.Query().Get("next"), "")
}

// loginSubmit verifies the submitted username and password. Success binds the
// principal to the session and redirects to the preserved next URL; failure
// re-renders the form with a constant message.
func (a *AuthRoutes) loginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	next := r.PostFormValue("next")

	creds, err := credentials.NewPassword(r.PostFormValue("username"), r.PostFormValue("password"), next)
	if err != nil {
		a.renderLogin(w, next, loginFailedMessage)
		return
	}

	user, err := a.backend.Authenticate(r.Context(), creds)
	if err != nil {
		logger.Errorw("login form authentication failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		a.renderLogin(w, next, loginFailedMessage)
		return
	}

	as, ok := auth.AuthSessionFromContext(r.Context())
	if !ok {
		logger.Error("session resolution middleware missing in front of login handler")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	as.Login(user)

	http.Redirect(w, r, safeNext(next), http.StatusFound)
}

// logout destroys the session and sends the user back to the login form.
func (a *AuthRoutes) logout(w http.ResponseWriter, r *http.Request) {
	if as, ok := auth.AuthSessionFromContext(r.Context()); ok {
		as.Logout()
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// oauthStart stores the post-login target and the CSRF state in the session,
// then redirects to the provider's authorize URL.
func (a *AuthRoutes) oauthStart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	as, ok := auth.AuthSessionFromContext(r.Context())
	if !ok {
		logger.Error("session resolution middleware missing in front of oauth start handler")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	action, err := a.oauth.ProposeAuthAction(r)
	if err != nil {
		logger.Errorw("failed to build oauth redirect", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	sess := as.Session()
	sess.Set(auth.SessionKeyCSRFState, action.CSRFState)
	if next := safeNext(r.PostFormValue("next")); next != "/" {
		sess.Set(auth.SessionKeyNextURL, next)
	}

	http.Redirect(w, r, action.AuthorizeURL, http.StatusFound)
}

// oauthCallback finishes the authorization-code flow: the single-use session
// state must match the state echoed by the provider, the code is exchanged
// and the resulting principal is logged in.
func (a *AuthRoutes) oauthCallback(w http.ResponseWriter, r *http.Request) {
	as, ok := auth.AuthSessionFromContext(r.Context())
	if !ok {
		logger.Error("session resolution middleware missing in front of oauth callback handler")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	sess := as.Session()

	sessionState, _ := sess.Pop(auth.SessionKeyCSRFState)

	creds, err := credentials.NewOAuth2(r.URL.Query().Get("code"), sessionState, r.URL.Query().Get("state"))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	user, err := a.oauth.Authenticate(r.Context(), creds)
	if err != nil {
		if errors.IsCsrfMismatch(err) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		logger.Errorw("oauth callback failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		// The provider vouched for a principal this deployment does not know.
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	as.Login(user)

	next, _ := sess.Pop(auth.SessionKeyNextURL)
	http.Redirect(w, r, safeNext(next), http.StatusFound)
}

// renderLogin writes the login form page.
func (a *AuthRoutes) renderLogin(w http.ResponseWriter, next, errorMessage string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginPageTemplate.Execute(w, loginPageData{
		Next:     next,
		Error:    errorMessage,
		HasOAuth: a.oauth != nil,
	}); err != nil {
		logger.Warnw("failed to render login page", "error", err)
	}
}

// safeNext confines redirect targets to local paths. Anything absolute,
// protocol-relative or unparsable falls back to the root.
func safeNext(next string) string {
	if next == "" {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	return u.RequestURI()
}
