package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"milecal/internal/session"
	"milecal/pkg/logging"
)

// DefaultGitHubAPIBaseURL is the REST API root used for identity
// verification and token validation.
const DefaultGitHubAPIBaseURL = "https://api.github.com"

// UserAgent is sent on every GitHub API call; GitHub rejects requests
// without one.
const UserAgent = "milecal"

// githubScopes grant read access to the caller's repositories.
var githubScopes = []string{"repo"}

// GitHubConfig configures the secondary provider manager.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint overrides the provider endpoints, for tests.
	Endpoint oauth2.Endpoint
	// APIBaseURL overrides the REST API root, for tests.
	APIBaseURL string
	// HTTPClient overrides the client used for provider calls.
	HTTPClient *http.Client
	// Timeout bounds each outbound call. Zero means the default.
	Timeout time.Duration
}

// GitHub is the token lifecycle manager for the secondary provider.
// GitHub issues no refresh tokens, so an invalid bearer token always
// clears the link and forces a fresh authorization.
type GitHub struct {
	cfg        *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
	timeout    time.Duration
}

// NewGitHub creates the secondary provider manager.
func NewGitHub(cfg GitHubConfig) *GitHub {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = githuboauth.Endpoint
	}
	apiBaseURL := cfg.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = DefaultGitHubAPIBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultProviderTimeout}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultProviderTimeout
	}

	return &GitHub{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       githubScopes,
		},
		apiBaseURL: apiBaseURL,
		httpClient: httpClient,
		timeout:    timeout,
	}
}

// AuthCodeURL produces the authorization redirect URL carrying the
// caller-supplied anti-forgery state.
func (g *GitHub) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("allow_signup", "true"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Complete validates the callback against the stored state, exchanges
// the code, and verifies the new token with one identity call. The
// caller must have consumed the stored state already; it is passed here
// for the exact-match check.
func (g *GitHub) Complete(ctx context.Context, code, returnedState, storedState string) (string, *session.SecondaryIdentity, error) {
	if storedState == "" || returnedState != storedState {
		return "", nil, ErrStateMismatch
	}
	if code == "" {
		return "", nil, ErrMissingCode
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	token, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("%w: code exchange: %v", ErrExchangeFailed, err)
	}

	identity, err := g.fetchIdentity(ctx, token.AccessToken)
	if err != nil {
		return "", nil, err
	}

	logging.Debug("OAuth", "Secondary exchange complete (login=%s)", identity.Login)
	return token.AccessToken, identity, nil
}

// Validate checks stored credentials against the provider. A 401-class
// answer yields ErrTokenInvalid: the caller must clear the link, since
// the secondary provider has no refresh path.
func (g *GitHub) Validate(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return ErrNotLinked
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.doUserRequest(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrTokenInvalid
	default:
		return fmt.Errorf("%w: identity endpoint returned status %d", ErrExchangeFailed, resp.StatusCode)
	}
}

// fetchIdentity verifies a freshly exchanged token and returns the
// provider identity.
func (g *GitHub) fetchIdentity(ctx context.Context, accessToken string) (*session.SecondaryIdentity, error) {
	resp, err := g.doUserRequest(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: identity call: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading identity response: %v", ErrExchangeFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		logging.Warn("OAuth", "Secondary identity call failed: status=%d body=%s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("%w: identity endpoint returned status %d", ErrExchangeFailed, resp.StatusCode)
	}

	var identity session.SecondaryIdentity
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, fmt.Errorf("%w: malformed identity payload: %v", ErrExchangeFailed, err)
	}
	if identity.Login == "" {
		return nil, fmt.Errorf("%w: identity payload has no login", ErrExchangeFailed)
	}

	return &identity, nil
}

func (g *GitHub) doUserRequest(ctx context.Context, accessToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBaseURL+"/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", UserAgent)

	return g.httpClient.Do(req)
}
