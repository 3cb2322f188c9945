package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"milecal/internal/session"
	"milecal/pkg/logging"
)

// DefaultUserinfoURL is Google's OpenID Connect userinfo endpoint.
const DefaultUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// defaultProviderTimeout bounds every outbound provider call.
const defaultProviderTimeout = 15 * time.Second

// googleScopes are requested on every primary authorization. The
// calendar scope is what downstream event creation consumes.
var googleScopes = []string{
	"openid",
	"profile",
	"email",
	"https://www.googleapis.com/auth/calendar",
}

// GoogleConfig configures the primary provider manager.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint overrides the provider endpoints, for tests.
	Endpoint oauth2.Endpoint
	// UserinfoURL overrides the identity endpoint, for tests.
	UserinfoURL string
	// HTTPClient overrides the client used for provider calls.
	HTTPClient *http.Client
	// Timeout bounds each outbound call. Zero means the default.
	Timeout time.Duration
}

// Google is the token lifecycle manager for the primary provider. It
// holds no per-session state; all side effects land in the session
// store via the caller.
type Google struct {
	cfg         *oauth2.Config
	userinfoURL string
	httpClient  *http.Client
	timeout     time.Duration

	// refreshGroup deduplicates concurrent refreshes for the same
	// session so a burst of expired-token requests produces one
	// provider call.
	refreshGroup singleflight.Group
}

// NewGoogle creates the primary provider manager.
func NewGoogle(cfg GoogleConfig) *Google {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = googleoauth.Endpoint
	}
	userinfoURL := cfg.UserinfoURL
	if userinfoURL == "" {
		userinfoURL = DefaultUserinfoURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultProviderTimeout}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultProviderTimeout
	}

	return &Google{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       googleScopes,
		},
		userinfoURL: userinfoURL,
		httpClient:  httpClient,
		timeout:     timeout,
	}
}

// AuthCodeURL produces the authorization redirect URL. Offline access
// and a forced consent screen ensure a refresh token is issued even on
// re-authentication.
func (g *Google) AuthCodeURL() string {
	return g.cfg.AuthCodeURL("",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Complete exchanges an authorization code for credentials and verifies
// them against the identity endpoint. Any failure, including a timeout
// or an identity payload without an email, is an exchange failure: the
// session stays unlinked and the caller surfaces a generic error.
func (g *Google) Complete(ctx context.Context, code string) (*session.Identity, *oauth2.Token, error) {
	if code == "" {
		return nil, nil, ErrMissingCode
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	token, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: code exchange: %v", ErrExchangeFailed, err)
	}

	identity, err := g.fetchIdentity(ctx, token.AccessToken)
	if err != nil {
		return nil, nil, err
	}

	logging.Debug("OAuth", "Primary exchange complete (subject=%s, expires=%v)",
		identity.Subject, token.Expiry)
	return identity, token, nil
}

// Refresh exchanges the stored refresh token for new credentials.
// Concurrent refreshes for the same session collapse into one provider
// call. Returns ErrNotLinked when there is no refresh token and
// ErrRefreshFailed when the provider rejects it, so callers can
// distinguish "never linked" from "needs full re-authorization".
func (g *Google) Refresh(ctx context.Context, sessionID, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrNotLinked
	}

	result, err, _ := g.refreshGroup.Do(sessionID, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

		// A token with only the refresh token forces TokenSource to go
		// to the provider rather than hand back a cached access token.
		source := g.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		token, err := source.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		}

		// Providers may omit the refresh token on renewal.
		if token.RefreshToken == "" {
			token.RefreshToken = refreshToken
		}
		return token, nil
	})
	if err != nil {
		return nil, err
	}

	token := result.(*oauth2.Token)
	logging.Debug("OAuth", "Refreshed primary credentials for session %s",
		logging.TruncateSessionID(sessionID))
	return token, nil
}

// fetchIdentity performs the verification call against the identity
// endpoint using freshly exchanged credentials.
func (g *Google) fetchIdentity(ctx context.Context, accessToken string) (*session.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building userinfo request: %v", ErrExchangeFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo call: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading userinfo response: %v", ErrExchangeFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		logging.Warn("OAuth", "Userinfo call failed: status=%d body=%s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("%w: userinfo returned status %d", ErrExchangeFailed, resp.StatusCode)
	}

	var identity session.Identity
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, fmt.Errorf("%w: malformed userinfo payload: %v", ErrExchangeFailed, err)
	}

	// Role derivation is a pure function of the email; an identity
	// without one cannot authenticate.
	if identity.Email == "" {
		return nil, fmt.Errorf("%w: identity payload has no email claim", ErrExchangeFailed)
	}

	return &identity, nil
}
