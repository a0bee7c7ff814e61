package auth

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"github.com/gatehouse-dev/gatehouse/pkg/logger"
)

// ActionKind tags a propose-auth challenge variant.
type ActionKind string

// Challenge variants
const (
	// ActionBasic is a 401 carrying a WWW-Authenticate: Basic header
	ActionBasic = ActionKind("basic")

	// ActionLoginForm is a 401 HTML page redirecting to the login form
	ActionLoginForm = ActionKind("login_form")

	// ActionOAuthRedirect is a 302 to the provider's authorize URL
	ActionOAuthRedirect = ActionKind("oauth_redirect")

	// ActionClientCertDenied is a plain 401 demanding a client certificate
	ActionClientCertDenied = ActionKind("client_cert_denied")
)

// ProposeAuthAction is the challenge a backend proposes for an
// unauthenticated request. It is a tagged union: Kind selects the variant and
// which of the remaining fields are meaningful.
type ProposeAuthAction struct {
	Kind ActionKind

	// Realm is the Basic authentication realm. ActionBasic only.
	Realm string

	// LoginURL is the login form location. ActionLoginForm only.
	LoginURL string

	// InitialURL is the originally requested URL, preserved so the form can
	// send the user back after login. ActionLoginForm only.
	InitialURL string

	// AuthorizeURL is the provider authorize URL, complete with client id,
	// redirect URI, scopes and CSRF state. ActionOAuthRedirect only.
	AuthorizeURL string

	// CSRFState is the single-use state carried in AuthorizeURL. The caller
	// must store it in the session before issuing the redirect.
	// ActionOAuthRedirect only.
	CSRFState string
}

// ProposeBasic builds the Basic challenge.
func ProposeBasic(realm string) *ProposeAuthAction {
	return &ProposeAuthAction{Kind: ActionBasic, Realm: realm}
}

// ProposeLoginForm builds the login form challenge.
func ProposeLoginForm(loginURL, initialURL string) *ProposeAuthAction {
	return &ProposeAuthAction{Kind: ActionLoginForm, LoginURL: loginURL, InitialURL: initialURL}
}

// ProposeOAuthRedirect builds the OAuth redirect challenge.
func ProposeOAuthRedirect(authorizeURL, csrfState string) *ProposeAuthAction {
	return &ProposeAuthAction{Kind: ActionOAuthRedirect, AuthorizeURL: authorizeURL, CSRFState: csrfState}
}

// ProposeClientCertDenied builds the client certificate challenge.
func ProposeClientCertDenied() *ProposeAuthAction {
	return &ProposeAuthAction{Kind: ActionClientCertDenied}
}

// loginRedirectTemplate is the interstitial page for the login form
// challenge: a meta-refresh plus a textual fallback link.
var loginRedirectTemplate = template.Must(template.New("login-redirect").Parse(
	`<!DOCTYPE html>
<html>
<head>
<meta http-equiv="refresh" content="0; url={{.}}">
<title>Login required</title>
</head>
<body>
<p>Authentication required. Continue to <a href="{{.}}">the login page</a>.</p>
</body>
</html>
`))

// LoginFormTarget returns the login URL with the initial URL encoded in the
// next query parameter.
func (a *ProposeAuthAction) LoginFormTarget() string {
	target := a.LoginURL
	if a.InitialURL != "" {
		target += "?next=" + url.QueryEscape(a.InitialURL)
	}
	return target
}

// WriteResponse renders the challenge for this action onto the response.
func (a *ProposeAuthAction) WriteResponse(w http.ResponseWriter, r *http.Request) {
	switch a.Kind {
	case ActionBasic:
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", a.Realm))
		w.WriteHeader(http.StatusUnauthorized)

	case ActionLoginForm:
		target := a.LoginFormTarget()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Location", target)
		w.WriteHeader(http.StatusUnauthorized)
		if err := loginRedirectTemplate.Execute(w, target); err != nil {
			logger.Warnw("failed to render login redirect page", "error", err)
		}

	case ActionOAuthRedirect:
		// The caller has already stored the CSRF state and the next-url in
		// the session.
		http.Redirect(w, r, a.AuthorizeURL, http.StatusFound)

	case ActionClientCertDenied:
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("client certificate required"))

	default:
		w.WriteHeader(http.StatusUnauthorized)
	}
}
