package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-dev/gatehouse/pkg/auth"
	"github.com/gatehouse-dev/gatehouse/pkg/authz"
	"github.com/gatehouse-dev/gatehouse/pkg/permissions"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
	"github.com/gatehouse-dev/gatehouse/pkg/session"
)

var testSpace = permissions.MustSpace("read", "write")

type serverEnv struct {
	router   chi.Router
	provider *providers.MemoryProvider
	store    *session.MemoryStore
}

// newServerEnv assembles the full HTTP surface over an in-memory provider and
// session store. basicMode controls whether the Basic child proposes its
// challenge ahead of the login form.
func newServerEnv(t *testing.T, basicMode auth.Mode) *serverEnv {
	t.Helper()

	p := providers.NewMemoryProvider()
	require.NoError(t, p.AddUser(&providers.User{
		PrincipalID:  "vovan",
		Name:         "Vovan",
		PasswordHash: "qwerty",
	}))
	p.GrantUser("vovan", "read")
	require.NoError(t, p.AddUser(&providers.User{
		PrincipalID:  "vovan-read",
		PasswordHash: "qwerty",
	}))
	p.GrantUser("vovan-read", "read")

	comparator := providers.NewPlaintextComparator()
	oauthBackend, err := auth.NewOAuth2Backend(p, auth.OAuth2Config{
		ClientID:    "gatehouse-client",
		AuthURL:     "https://idp.example.com/authorize",
		TokenURL:    "https://idp.example.com/token",
		UserinfoURL: "https://idp.example.com/userinfo",
	})
	require.NoError(t, err)

	backend, err := auth.NewCompositeBackend(
		auth.WithBasic(auth.NewBasicBackend(p, comparator, auth.WithBasicMode(basicMode))),
		auth.WithForm(auth.NewFormBackend(p, comparator)),
		auth.WithOAuth2(oauthBackend),
	)
	require.NoError(t, err)

	store := session.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	router := NewRouter(Options{
		Backend:  backend,
		OAuth2:   oauthBackend,
		Sessions: session.NewManager(store),
	}, func(r chi.Router) {
		r.Group(func(g chi.Router) {
			g.Use(authz.Middleware(testSpace.MustBitSet("read"), p))
			g.Get("/protected", func(w http.ResponseWriter, r *http.Request) {
				user, _ := auth.UserFromContext(r.Context())
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]string{"principal_id": user.PrincipalID})
			})
		})
		r.Group(func(g chi.Router) {
			g.Use(authz.Middleware(testSpace.MustBitSet("write"), p))
			g.Get("/app/reports", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		})
		r.Get("/app/dashboard", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("dashboard"))
		})
	})

	return &serverEnv{router: router, provider: p, store: store}
}

func (e *serverEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func cookieFrom(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			return c
		}
	}
	return nil
}

func TestBasicGoodCredentials(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, auth.ModeProposed)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic dm92YW46cXdlcnR5") // vovan:qwerty

	rec := env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"principal_id":"vovan"`)
}

func TestBasicBadCredentialsProposedMode(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, auth.ModeProposed)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic dm92YW46d3Jvbmc=") // vovan:wrong

	rec := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="Restricted", charset="UTF-8"`, rec.Header().Get("WWW-Authenticate"))
	assert.Empty(t, rec.Body.String())
}

func TestLoginFormChallengeForProtectedPage(t *testing.T) {
	t.Parallel()

	// Basic stays silent so the login form proposes the challenge.
	env := newServerEnv(t, auth.ModeSupported)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/app/dashboard", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login?next=%2Fapp%2Fdashboard", rec.Header().Get("Location"))
	assert.Contains(t, rec.Body.String(), `<a href="/login?next=%2Fapp%2Fdashboard">`)
}

func TestLoginFormSuccessfulPost(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, auth.ModeSupported)

	form := url.Values{
		"username": {"vovan"},
		"password": {"qwerty"},
		"next":     {"/app/dashboard"},
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := env.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/app/dashboard", rec.Header().Get("Location"))

	cookie := cookieFrom(rec)
	require.NotNil(t, cookie)
	require.NotEmpty(t, cookie.Value)

	// The cookie authenticates the follow-up request.
	followUp := httptest.NewRequest(http.MethodGet, "/app/dashboard", nil)
	followUp.AddCookie(cookie)
	rec = env.do(followUp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dashboard", rec.Body.String())
}

func TestLoginRotatesSessionID(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, auth.ModeSupported)
	require.NoError(t, env.store.Insert(context.Background(), "pre-login-id", map[string]string{
		"some": "value",
	}))

	form := url.Values{
		"username": {"vovan"},
		"password": {"qwerty"},
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "pre-login-id"})

	rec := env.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)

	cookie := cookieFrom(rec)
	require.NotNil(t, cookie)
	assert.NotEqual(t, "pre-login-id", cookie.Value)

	// The pre-login record is gone; the rotated one carries the principal.
	old, err := env.store.Get(context.Background(), "pre-login-id")
	require.NoError(t, err)
	assert.Nil(t, old)

	rotated, err := env.store.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "vovan", rotated[auth.SessionKeyPrincipalID])
}

func TestLoginFailureIsByteIdenticalForUnknownUsers(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, auth.ModeSupported)

	post := func(username, password string) *httptest.ResponseRecorder {
		form := url.Values{
			"username": {username},
			"password": {password},
			"next":     {"/app/dashboard"},
		}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return env.do(req)
	}

	wrongPassword := post("vovan", "dvorak")
	unknownUser := post("does-not-exist", "dvorak")

	assert.Equal(t, http.StatusOK, wrongPassword.Code)
	assert.Equal(t, wrongPassword.Code, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
	assert.Contains(t, wrongPassword.Body.String(), "Invalid username or password.")
}

func TestLogout(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, auth.ModeSupported)
	require.NoError(t, env.store.Insert(context.Background(), "sid", map[string]string{
		auth.SessionKeyPrincipalID: "vovan",
	}))

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "sid"})

	rec := env.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	// The old cookie no longer authenticates anything.
	followUp := httptest.NewRequest(http.MethodGet, "/app/dashboard", nil)
	followUp.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "sid"})
	rec = env.do(followUp)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOAuthCallbackCSRFMismatch(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, auth.ModeSupported)
	require.NoError(t, env.store.Insert(context.Background(), "sid", map[string]string{
		auth.SessionKeyCSRFState: "AAA",
	}))

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=xyz&state=BBB", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "sid"})

	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No login happened; the single-use state was consumed.
	values, err := env.store.Get(context.Background(), "sid")
	require.NoError(t, err)
	assert.Empty(t, values[auth.SessionKeyPrincipalID])
}

func TestOAuthStartStoresStateAndRedirects(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, auth.ModeSupported)

	form := url.Values{"next": {"/app/dashboard"}}
	req := httptest.NewRequest(http.MethodPost, "/login/oauth", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := env.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)

	location := rec.Header().Get("Location")
	assert.Contains(t, location, "https://idp.example.com/authorize")

	cookie := cookieFrom(rec)
	require.NotNil(t, cookie)

	values, err := env.store.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.NotEmpty(t, values[auth.SessionKeyCSRFState])
	assert.Contains(t, location, values[auth.SessionKeyCSRFState])
	assert.Equal(t, "/app/dashboard", values[auth.SessionKeyNextURL])
}

func TestAuthorizationMissingPermission(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, auth.ModeProposed)

	// vovan-read holds read but the reports route requires write.
	req := httptest.NewRequest(http.MethodGet, "/app/reports", nil)
	req.SetBasicAuth("vovan-read", "qwerty")

	rec := env.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body struct {
		Missing []string `json:"missing"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"write"}, body.Missing)
}

func TestLoginPagePreservesNext(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, auth.ModeSupported)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/login?next=%2Fapp%2Fdashboard", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="next" value="/app/dashboard"`)
}

func TestSafeNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		next string
		want string
	}{
		{next: "", want: "/"},
		{next: "/app/dashboard", want: "/app/dashboard"},
		{next: "/app/dashboard?tab=1", want: "/app/dashboard?tab=1"},
		{next: "https://evil.example.com/phish", want: "/"},
		{next: "//evil.example.com/phish", want: "/"},
		{next: "relative/path", want: "/"},
		{next: "://bad", want: "/"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, safeNext(tt.next), "next=%q", tt.next)
	}
}
