package gateway

import (
	"errors"
	"net/http"
	"strings"

	"milecal/internal/pathset"
	"milecal/internal/policy"
	"milecal/internal/role"
	"milecal/internal/session"
	"milecal/pkg/logging"
)

// Chain is the gateway middleware chain. Per request, strictly in
// order: path classification, session authentication, role fallback,
// policy enforcement, then the downstream handler.
type Chain struct {
	public   *pathset.PublicPaths
	store    session.Store
	cookies  *session.CookieCodec
	enforcer *policy.Enforcer

	// decisionHook, when set, observes every authorization decision.
	// The metrics layer hangs its counters here.
	decisionHook func(allowed bool)
}

// NewChain assembles the middleware chain components.
func NewChain(public *pathset.PublicPaths, store session.Store, cookies *session.CookieCodec, enforcer *policy.Enforcer) *Chain {
	return &Chain{
		public:   public,
		store:    store,
		cookies:  cookies,
		enforcer: enforcer,
	}
}

// SetDecisionHook registers an observer for authorization decisions.
func (c *Chain) SetDecisionHook(hook func(allowed bool)) {
	c.decisionHook = hook
}

// Authenticate gates every non-public request on a live session with a
// primary identity. Authenticated sessions missing a role get the
// lowest tier repaired in place rather than an error.
func (c *Chain) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.public.IsPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		sessionID, ok := c.cookies.Read(r)
		if !ok {
			logging.Debug("Gateway", "Authentication required for path %s: no session cookie", r.URL.Path)
			c.unauthenticated(w)
			return
		}

		sess, err := c.store.Load(r.Context(), sessionID)
		if errors.Is(err, session.ErrNotFound) {
			logging.Debug("Gateway", "Authentication required for path %s: session %s absent or expired",
				r.URL.Path, logging.TruncateSessionID(sessionID))
			c.cookies.Clear(w)
			c.unauthenticated(w)
			return
		}
		if err != nil {
			logging.Error("Gateway", err, "Session load failed")
			WriteError(w, http.StatusInternalServerError, ErrorBody{
				Error:   MsgInternalError,
				Details: "Something went wrong",
			})
			return
		}

		if !sess.Authenticated() {
			c.unauthenticated(w)
			return
		}

		// Should not normally occur; assign the lowest tier instead of
		// failing the request.
		if !sess.Role.Valid() {
			logging.Warn("Gateway", "Authenticated session %s has no role, defaulting to %s",
				logging.TruncateSessionID(sess.ID), role.Free)
			sess.Role = role.Free
			if err := c.store.Update(r.Context(), sess.ID, func(s *session.Session) error {
				if !s.Role.Valid() {
					s.Role = role.Free
				}
				return nil
			}); err != nil {
				logging.Warn("Gateway", "Failed to persist default role: %v", err)
			}
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// Authorize evaluates the policy for every non-public request. The
// resource is the path without its leading slash; the action is the
// lower-cased HTTP verb. No matching rule means deny.
func (c *Chain) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.public.IsPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		sess, ok := SessionFromContext(r.Context())
		if !ok {
			// Authorize must run behind Authenticate; a missing session
			// here is a wiring bug, and we fail closed.
			logging.Error("Gateway", nil, "Authorize reached without an authenticated session for %s", r.URL.Path)
			c.unauthenticated(w)
			return
		}

		resource := strings.TrimPrefix(r.URL.Path, "/")
		action := strings.ToLower(r.Method)

		allowed, err := c.enforcer.Enforce(string(sess.Role), resource, action)
		if err != nil {
			logging.Error("Gateway", err, "Policy evaluation failed (role=%s, resource=%s, action=%s)",
				sess.Role, resource, action)
			WriteError(w, http.StatusInternalServerError, ErrorBody{
				Error:   "Authorization check failed",
				Details: "Something went wrong",
			})
			return
		}

		if c.decisionHook != nil {
			c.decisionHook(allowed)
		}

		logging.Debug("Gateway", "Authorization check: role=%s resource=%s action=%s allowed=%v",
			sess.Role, resource, action, allowed)

		if !allowed {
			WriteError(w, http.StatusForbidden, ErrorBody{
				Error: MsgAccessDenied,
				Details: DenialDetails{
					Role:     string(sess.Role),
					Resource: resource,
					Action:   action,
					Path:     r.URL.Path,
				},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (c *Chain) unauthenticated(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, ErrorBody{
		Error:   MsgAuthenticationRequired,
		Details: "Please log in to access this resource",
	})
}
