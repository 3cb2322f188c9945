package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"milecal/internal/calendar"
	"milecal/internal/gateway"
	"milecal/internal/github"
	"milecal/internal/oauth"
	"milecal/internal/pathset"
	"milecal/internal/policy"
	"milecal/internal/role"
	"milecal/internal/session"
)

const testRules = `
p, *, dashboard, get
p, *, api/user, get
p, *, auth/github, get
p, *, auth/github/callback, get
p, *, github, get
p, *, logout, post
p, premium, calendar/event, post
p, admin, calendar/event, post
`

// testBackend stands in for Google and GitHub at once: token exchange,
// userinfo, the GitHub REST API, and the Calendar API.
type testBackend struct {
	server *httptest.Server

	userEmail     string
	refreshStatus int
	eventStatus   int
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{
		userEmail:     "alice@gmail.com",
		refreshStatus: http.StatusOK,
		eventStatus:   http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if b.refreshStatus != http.StatusOK {
			w.WriteHeader(b.refreshStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "valid-access-token",
			"refresh_token": "valid-refresh-token",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sub":            "sub-1",
			"email":          b.userEmail,
			"email_verified": true,
			"name":           "Alice",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"login": "alice-gh"})
	})
	mux.HandleFunc("/repos/octo/widgets", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"full_name": "octo/widgets", "private": false})
	})
	mux.HandleFunc("/repos/octo/widgets/milestones", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"number": 1, "title": "v1.0", "due_on": "2026-03-15T12:00:00Z"},
		})
	})
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer valid-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if b.eventStatus != http.StatusOK {
			w.WriteHeader(b.eventStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "evt-1", "status": "confirmed", "summary": "v1.0",
			"htmlLink": "https://calendar.example/evt-1",
		})
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

// newTestGateway assembles the full router the way New does, with
// every provider pointed at the test backend.
func newTestGateway(t *testing.T) (http.Handler, *session.MemoryStore, *testBackend) {
	t.Helper()

	rulesPath := filepath.Join(t.TempDir(), "policy.csv")
	require.NoError(t, os.WriteFile(rulesPath, []byte(testRules), 0o644))
	enforcer, err := policy.Load(rulesPath)
	require.NoError(t, err)

	backend := newTestBackend(t)
	endpoint := oauth2.Endpoint{
		AuthURL:  backend.server.URL + "/auth",
		TokenURL: backend.server.URL + "/token",
	}

	store := session.NewMemoryStore(time.Hour)
	t.Cleanup(func() { store.Close() })

	public := pathset.New([]string{"/", "/auth/google", "/auth/google/callback", "/healthz", "/metrics"}, "/static")
	cookies := session.NewCookieCodec(false, time.Hour)

	google := oauth.NewGoogle(oauth.GoogleConfig{
		ClientID: "client", ClientSecret: "secret",
		Endpoint:    endpoint,
		UserinfoURL: backend.server.URL + "/userinfo",
		HTTPClient:  backend.server.Client(),
		Timeout:     5 * time.Second,
	})
	githubOAuth := oauth.NewGitHub(oauth.GitHubConfig{
		ClientID: "gh-client", ClientSecret: "gh-secret",
		Endpoint:   endpoint,
		APIBaseURL: backend.server.URL,
		HTTPClient: backend.server.Client(),
		Timeout:    5 * time.Second,
	})

	chain := gateway.NewChain(public, store, cookies, enforcer)
	handlers := gateway.NewHandlers(store, cookies, google, githubOAuth, role.NewDeriver("admin.com", "gmail.com"))
	milestones := github.NewHandler(github.NewClient(github.ClientConfig{
		APIBaseURL: backend.server.URL,
		HTTPClient: backend.server.Client(),
		Timeout:    5 * time.Second,
	}), store)
	events := calendar.NewHandler(calendar.NewClient(calendar.ClientConfig{
		BaseURL:    backend.server.URL,
		HTTPClient: backend.server.Client(),
		Timeout:    5 * time.Second,
	}), google, store)

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry, public)
	chain.SetDecisionHook(metrics.ObserveDecision)

	return newRouter(chain, handlers, milestones, events, metrics,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{})), store, backend
}

// login drives the primary callback and returns the session cookie.
func login(t *testing.T, router http.Handler) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=good", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/dashboard", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func do(router http.Handler, method, target string, cookie *http.Cookie, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	router.ServeHTTP(rec, req)
	return rec
}

func TestGateway_PublicPaths(t *testing.T) {
	router, _, _ := newTestGateway(t)

	rec := do(router, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Static assets bypass the gateway even when nothing serves them.
	rec = do(router, http.MethodGet, "/static/app.css", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateway_ProtectedWithoutSession(t *testing.T) {
	router, _, _ := newTestGateway(t)

	for _, target := range []string{"/dashboard", "/api/user", "/auth/github", "/github/octo/widgets/milestones"} {
		rec := do(router, http.MethodGet, target, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "GET %s", target)
	}
}

func TestGateway_LoginThenAPIUser(t *testing.T) {
	router, _, _ := newTestGateway(t)
	cookie := login(t, router)

	rec := do(router, http.MethodGet, "/api/user", cookie, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Role                string `json:"role"`
		GitHubAuthenticated bool   `json:"githubAuthenticated"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "premium", body.Role)
	assert.False(t, body.GitHubAuthenticated)
}

func TestGateway_PremiumCreatesEvent(t *testing.T) {
	router, _, _ := newTestGateway(t)
	cookie := login(t, router)

	rec := do(router, http.MethodPost, "/calendar/event", cookie,
		`{"milestone": {"title": "v1.0", "due_on": "2026-03-15T12:00:00Z"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "https://calendar.example/evt-1", body["eventLink"])
}

func TestGateway_FreeRoleDeniedByPolicy(t *testing.T) {
	router, _, backend := newTestGateway(t)
	backend.userEmail = "bob@example.org"
	cookie := login(t, router)

	rec := do(router, http.MethodPost, "/calendar/event", cookie,
		`{"milestone": {"title": "v1.0", "due_on": "2026-03-15T12:00:00Z"}}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body struct {
		Error   string                `json:"error"`
		Details gateway.DenialDetails `json:"details"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, gateway.MsgAccessDenied, body.Error)
	assert.Equal(t, "free", body.Details.Role)
	assert.Equal(t, "calendar/event", body.Details.Resource)
}

func TestGateway_ExpiredPrimaryCredentials(t *testing.T) {
	router, store, backend := newTestGateway(t)
	cookie := login(t, router)

	// Invalidate the stored access token and break refresh.
	backend.refreshStatus = http.StatusBadRequest
	require.NoError(t, store.Update(context.Background(), cookie.Value, func(s *session.Session) error {
		s.PrimaryToken.AccessToken = "stale-access-token"
		return nil
	}))

	rec := do(router, http.MethodPost, "/calendar/event", cookie,
		`{"milestone": {"title": "v1.0", "due_on": "2026-03-15T12:00:00Z"}}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body gateway.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, gateway.MsgAuthExpired, body.Error)
	assert.Equal(t, gateway.ActionReauthGoogle, body.Action)
}

func TestGateway_GitHubLinkAndMilestones(t *testing.T) {
	router, store, _ := newTestGateway(t)
	cookie := login(t, router)

	// Initiate the secondary flow to obtain the single-use state.
	rec := do(router, http.MethodGet, "/auth/github", cookie, "")
	require.Equal(t, http.StatusFound, rec.Code)

	sess, err := store.Load(context.Background(), cookie.Value)
	require.NoError(t, err)
	state := sess.CSRFState
	require.NotEmpty(t, state)

	rec = do(router, http.MethodGet, "/auth/github/callback?code=good&state="+state, cookie, "")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/dashboard", rec.Header().Get("Location"))

	rec = do(router, http.MethodGet, "/github/octo/widgets/milestones", cookie, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success    bool `json:"success"`
		Milestones []struct {
			FormattedDueDate string `json:"formatted_due_date"`
		} `json:"milestones"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	require.Len(t, body.Milestones, 1)
	assert.Equal(t, "March 15, 2026", body.Milestones[0].FormattedDueDate)
}

func TestGateway_Logout(t *testing.T) {
	router, _, _ := newTestGateway(t)
	cookie := login(t, router)

	rec := do(router, http.MethodPost, "/logout", cookie, "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = do(router, http.MethodGet, "/api/user", cookie, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateway_MetricsExposeRequests(t *testing.T) {
	router, _, _ := newTestGateway(t)
	cookie := login(t, router)
	do(router, http.MethodGet, "/api/user", cookie, "")

	rec := do(router, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "milecal_http_requests_total")
	assert.Contains(t, rec.Body.String(), "milecal_authz_decisions_total")
}
