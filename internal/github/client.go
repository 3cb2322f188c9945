// Package github proxies milestone listing through the stored
// secondary credentials.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"milecal/internal/oauth"
	"milecal/pkg/logging"
)

// Sentinel errors for provider-side failures the handler maps to
// distinct HTTP responses.
var (
	// ErrRepoNotFound means the repository does not exist or the token
	// has no access to it. The two cases are indistinguishable by
	// design on the provider side.
	ErrRepoNotFound = errors.New("repository not found or no access")

	// ErrUnauthorized means the stored token was rejected.
	ErrUnauthorized = errors.New("github token rejected")
)

const defaultTimeout = 15 * time.Second

// Repository is the subset of the provider's repository payload the
// gateway cares about.
type Repository struct {
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
}

// Milestone mirrors the provider's milestone payload.
type Milestone struct {
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	State        string     `json:"state"`
	OpenIssues   int        `json:"open_issues"`
	ClosedIssues int        `json:"closed_issues"`
	HTMLURL      string     `json:"html_url"`
	DueOn        *time.Time `json:"due_on"`
}

// Client talks to the provider's REST API with a per-request token.
type Client struct {
	apiBaseURL string
	httpClient *http.Client
	timeout    time.Duration
}

// ClientConfig configures the API client.
type ClientConfig struct {
	// APIBaseURL overrides the REST API root, for tests.
	APIBaseURL string
	// HTTPClient overrides the client used for provider calls.
	HTTPClient *http.Client
	// Timeout bounds each outbound call. Zero means the default.
	Timeout time.Duration
}

// NewClient creates an API client.
func NewClient(cfg ClientConfig) *Client {
	apiBaseURL := cfg.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = oauth.DefaultGitHubAPIBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{apiBaseURL: apiBaseURL, httpClient: httpClient, timeout: timeout}
}

// Repository fetches repository metadata, doubling as the access
// check: a 404 covers both "does not exist" and "no access".
func (c *Client) Repository(ctx context.Context, token, owner, name string) (*Repository, error) {
	var repo Repository
	if err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s", owner, name), &repo); err != nil {
		return nil, err
	}
	if repo.Private {
		logging.Debug("GitHub", "Accessing private repository %s", repo.FullName)
	}
	return &repo, nil
}

// Milestones lists the repository's milestones.
func (c *Client) Milestones(ctx context.Context, token, owner, name string) ([]Milestone, error) {
	var milestones []Milestone
	if err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/milestones", owner, name), &milestones); err != nil {
		return nil, err
	}
	return milestones, nil
}

func (c *Client) get(ctx context.Context, token, path string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", oauth.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrRepoNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		body, _ := io.ReadAll(resp.Body)
		logging.Warn("GitHub", "API call %s failed: status=%d body=%s", path, resp.StatusCode, string(body))
		return fmt.Errorf("github api returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
