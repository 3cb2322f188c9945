// Package server assembles the gateway: session store selection,
// provider managers, policy, middleware chain, routes, and the HTTP
// listener with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"milecal/internal/calendar"
	"milecal/internal/config"
	"milecal/internal/gateway"
	"milecal/internal/github"
	"milecal/internal/oauth"
	"milecal/internal/pathset"
	"milecal/internal/policy"
	"milecal/internal/role"
	"milecal/internal/session"
	"milecal/pkg/logging"
)

const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server is the assembled gateway process.
type Server struct {
	cfg        config.Config
	store      session.Store
	httpServer *http.Server
}

// New assembles a gateway from configuration. The policy file must
// load cleanly; a gateway without rules denies everything, so a
// malformed file is a startup failure.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	enforcer, err := policy.Load(cfg.Policy.File)
	if err != nil {
		return nil, fmt.Errorf("loading policy rules: %w", err)
	}
	logging.Info("Server", "Loaded %d policy rules from %s", len(enforcer.Rules()), cfg.Policy.File)

	store, err := newSessionStore(ctx, cfg.Session)
	if err != nil {
		return nil, err
	}

	public := pathset.New(cfg.PublicPaths, cfg.StaticPrefix)
	cookies := session.NewCookieCodec(cfg.Server.SecureCookies, cfg.Session.TTL)

	google := oauth.NewGoogle(oauth.GoogleConfig{
		ClientID:     cfg.Auth.Google.ClientID,
		ClientSecret: cfg.Auth.Google.ClientSecret,
		RedirectURL:  redirectURL(cfg, cfg.Auth.Google.RedirectURL, "/auth/google/callback"),
	})
	githubOAuth := oauth.NewGitHub(oauth.GitHubConfig{
		ClientID:     cfg.Auth.GitHub.ClientID,
		ClientSecret: cfg.Auth.GitHub.ClientSecret,
		RedirectURL:  redirectURL(cfg, cfg.Auth.GitHub.RedirectURL, "/auth/github/callback"),
	})
	roles := role.NewDeriver(cfg.Auth.Google.AdminDomain, cfg.Auth.Google.PremiumDomain)

	chain := gateway.NewChain(public, store, cookies, enforcer)
	handlers := gateway.NewHandlers(store, cookies, google, githubOAuth, roles)
	milestones := github.NewHandler(github.NewClient(github.ClientConfig{}), store)
	events := calendar.NewHandler(calendar.NewClient(calendar.ClientConfig{}), google, store)

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry, public)
	chain.SetDecisionHook(metrics.ObserveDecision)

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	router := newRouter(chain, handlers, milestones, events, metrics, metricsHandler)

	return &Server{
		cfg:   cfg,
		store: store,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
	}, nil
}

// newRouter mounts every route behind the gateway middleware. Order
// matters: metrics observe everything, authentication runs before
// authorization, and both middlewares skip public paths internally.
func newRouter(chain *gateway.Chain, handlers *gateway.Handlers, milestones *github.Handler, events *calendar.Handler, metrics *Metrics, metricsHandler http.Handler) chi.Router {
	router := chi.NewRouter()
	router.Use(metrics.Instrument)
	router.Use(chain.Authenticate)
	router.Use(chain.Authorize)

	router.Get("/healthz", handleHealth)
	router.Method(http.MethodGet, "/metrics", metricsHandler)

	router.Get("/auth/google", handlers.GoogleLogin)
	router.Get("/auth/google/callback", handlers.GoogleCallback)
	router.Get("/auth/github", handlers.GitHubLogin)
	router.Get("/auth/github/callback", handlers.GitHubCallback)
	router.Post("/logout", handlers.Logout)

	router.Get("/dashboard", handlers.Dashboard)
	router.Get("/api/user", handlers.APIUser)
	router.Get("/github/test", handlers.GitHubTest)
	router.Get("/github/{owner}/{repo}/milestones", milestones.Milestones)
	router.Post("/calendar/event", events.CreateEvent)

	return router
}

// newSessionStore selects the store backend from configuration.
func newSessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Store {
	case config.SessionStorePostgres:
		store, err := session.NewPostgresStore(ctx, cfg.PostgresURL, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("creating postgres session store: %w", err)
		}
		return store, nil
	case config.SessionStoreMemory, "":
		logging.Info("Session", "Using in-memory session store (ttl=%s)", cfg.TTL)
		return session.NewMemoryStore(cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown session store type %q", cfg.Store)
	}
}

// redirectURL resolves a provider redirect URI, defaulting to a path
// under the configured base URL.
func redirectURL(cfg config.Config, configured, path string) string {
	if configured != "" {
		return configured
	}
	return cfg.Server.BaseURL + path
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	gateway.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info("Server", "Gateway listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.store.Close()
		return err
	case <-ctx.Done():
	}

	logging.Info("Server", "Shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.store.Close()
	return err
}
