package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/gatehouse-dev/gatehouse/pkg/credentials"
	"github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/logger"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
	"github.com/gatehouse-dev/gatehouse/pkg/session"
)

// DefaultPrincipalClaim is the userinfo claim the principal id is derived
// from when none is configured.
const DefaultPrincipalClaim = "sub"

// csrfStateBytes is the entropy of the generated CSRF state.
const csrfStateBytes = 32

// OAuth2Config holds the provider endpoints and client credentials for the
// authorization-code flow.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserinfoURL  string
	RedirectURL  string
	Scopes       []string

	// PrincipalClaim is the userinfo claim carrying the principal id.
	// Defaults to "sub".
	PrincipalClaim string
}

// OAuth2Backend authenticates users through an OAuth2 authorization-code
// exchange followed by a userinfo lookup. Only pre-provisioned principals
// are accepted: an unknown principal id coming back from the provider is a
// plain rejection, never an account creation.
type OAuth2Backend struct {
	store          providers.OAuth2UserStore
	oauth          *oauth2.Config
	userinfoURL    string
	principalClaim string
	httpClient     *http.Client
}

// OAuth2Option configures an OAuth2Backend.
type OAuth2Option func(*OAuth2Backend)

// WithHTTPClient sets the HTTP client used for the token exchange and the
// userinfo fetch. Intended for tests.
func WithHTTPClient(c *http.Client) OAuth2Option {
	return func(b *OAuth2Backend) {
		b.httpClient = c
	}
}

// NewOAuth2Backend creates an OAuth2 authorization-code backend.
func NewOAuth2Backend(store providers.OAuth2UserStore, cfg OAuth2Config, opts ...OAuth2Option) (*OAuth2Backend, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("authorization URL is required")
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token URL is required")
	}
	if cfg.UserinfoURL == "" {
		return nil, fmt.Errorf("userinfo URL is required")
	}

	principalClaim := cfg.PrincipalClaim
	if principalClaim == "" {
		principalClaim = DefaultPrincipalClaim
	}

	b := &OAuth2Backend{
		store: store,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userinfoURL:    cfg.UserinfoURL,
		principalClaim: principalClaim,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Authenticate performs the authorization-code exchange: CSRF state check,
// code-for-token exchange, userinfo fetch, then access-token persistence for
// the derived principal.
func (b *OAuth2Backend) Authenticate(ctx context.Context, creds credentials.Credentials) (*providers.User, error) {
	oc, ok := creds.(credentials.OAuth2)
	if !ok {
		return nil, errors.NewNoRequestedBackendError("oauth2 backend only handles oauth2 credentials", nil)
	}

	if subtle.ConstantTimeCompare([]byte(oc.OldState), []byte(oc.NewState)) != 1 {
		return nil, errors.NewCsrfMismatchError("oauth2 state does not match session state", nil)
	}

	ctx = b.clientContext(ctx)

	token, err := b.oauth.Exchange(ctx, oc.Code)
	if err != nil {
		return nil, errors.NewProviderBackendError("oauth2 token exchange failed", err)
	}

	principalID, err := b.fetchPrincipalID(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := b.store.UpdateAccessToken(ctx, principalID, token.AccessToken)
	if err != nil {
		if errors.IsNotFound(err) {
			// The provider vouched for an identity we do not know.
			logger.Debugw("oauth2 login for unknown principal rejected", "principal_id", principalID)
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// fetchPrincipalID fetches the userinfo document with the bearer token and
// extracts the principal claim.
func (b *OAuth2Backend) fetchPrincipalID(ctx context.Context, token *oauth2.Token) (string, error) {
	client := b.oauth.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.userinfoURL, nil)
	if err != nil {
		return "", errors.NewProviderBackendError("failed to build userinfo request", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", errors.NewProviderBackendError("userinfo request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.NewProviderBackendError(
			fmt.Sprintf("userinfo endpoint returned status %d", resp.StatusCode), nil)
	}

	var profile map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", errors.NewProviderBackendError("failed to decode userinfo response", err)
	}

	principalID, ok := profile[b.principalClaim].(string)
	if !ok || principalID == "" {
		return "", errors.NewProviderBackendError(
			fmt.Sprintf("userinfo response carries no %q claim", b.principalClaim), nil)
	}
	return principalID, nil
}

// GetUser looks up a user by principal id.
func (b *OAuth2Backend) GetUser(ctx context.Context, principalID string) (*providers.User, error) {
	return b.store.GetByPrincipalID(ctx, principalID)
}

// AuthenticateRequest never recognizes per-request credentials; the OAuth2
// flow is explicit, driven by the login and callback handlers.
func (*OAuth2Backend) AuthenticateRequest(context.Context, *http.Request, *session.Session) (*providers.User, error) {
	return nil, nil
}

// ProposeAuthAction builds an authorize URL with a fresh CSRF state. The
// caller is responsible for storing the state and the next-url in the
// session before issuing the redirect.
func (b *OAuth2Backend) ProposeAuthAction(_ *http.Request) (*ProposeAuthAction, error) {
	state, err := generateState()
	if err != nil {
		return nil, errors.NewProviderBackendError("failed to generate csrf state", err)
	}
	return ProposeOAuthRedirect(b.oauth.AuthCodeURL(state), state), nil
}

// clientContext injects the configured HTTP client into the oauth2 library's
// context, when one is set.
func (b *OAuth2Backend) clientContext(ctx context.Context) context.Context {
	if b.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
}

// generateState produces a cryptographically random, URL-safe CSRF state.
func generateState() (string, error) {
	buf := make([]byte, csrfStateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// userProvider exposes the provider identity for the composite's
// single-instance check.
func (b *OAuth2Backend) userProvider() providers.UserProvider {
	return b.store
}

var _ Backend = (*OAuth2Backend)(nil)
