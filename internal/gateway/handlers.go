package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"milecal/internal/oauth"
	"milecal/internal/role"
	"milecal/internal/session"
	"milecal/pkg/logging"
)

// Landing paths used by redirect-style flows.
const (
	publicLanding        = "/"
	authenticatedLanding = "/dashboard"
)

// Handlers implements the authentication and session HTTP surface.
type Handlers struct {
	store   session.Store
	cookies *session.CookieCodec
	google  *oauth.Google
	github  *oauth.GitHub
	roles   *role.Deriver
}

// NewHandlers wires the auth endpoints to their collaborators.
func NewHandlers(store session.Store, cookies *session.CookieCodec, google *oauth.Google, github *oauth.GitHub, roles *role.Deriver) *Handlers {
	return &Handlers{
		store:   store,
		cookies: cookies,
		google:  google,
		github:  github,
		roles:   roles,
	}
}

// GoogleLogin starts the primary authorization flow. Public: there is
// no session yet.
func (h *Handlers) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.google.AuthCodeURL(), http.StatusFound)
}

// GoogleCallback completes the primary flow: code exchange, identity
// verification, session creation, role derivation. Failures redirect to
// the public landing path with an error indicator; the provider detail
// is logged, never echoed.
func (h *Handlers) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		logging.Warn("Gateway", "Primary callback without authorization code")
		http.Redirect(w, r, publicLanding+"?error=no_code", http.StatusFound)
		return
	}

	identity, token, err := h.google.Complete(r.Context(), code)
	if err != nil {
		logging.Error("Gateway", err, "Primary authentication failed")
		http.Redirect(w, r, publicLanding+"?error=auth_failed", http.StatusFound)
		return
	}

	derived := h.roles.Derive(identity.Email, identity.EmailVerified)

	// Re-authentication in an existing session overwrites identity,
	// credentials, and role; otherwise a new session is created.
	sessionID, haveCookie := h.cookies.Read(r)
	if haveCookie {
		err = h.store.Update(r.Context(), sessionID, func(s *session.Session) error {
			s.PrimaryIdentity = identity
			s.PrimaryToken = token
			s.Role = derived
			return nil
		})
		if err == nil {
			h.cookies.Write(w, sessionID)
			logging.Info("Gateway", "Re-authenticated session %s (role=%s)",
				logging.TruncateSessionID(sessionID), derived)
			http.Redirect(w, r, authenticatedLanding, http.StatusFound)
			return
		}
		if !errors.Is(err, session.ErrNotFound) {
			logging.Error("Gateway", err, "Failed to update session on re-authentication")
			http.Redirect(w, r, publicLanding+"?error=auth_failed", http.StatusFound)
			return
		}
		// Cookie referenced a dead session; fall through to a new one.
	}

	sess := &session.Session{
		ID:              uuid.NewString(),
		PrimaryIdentity: identity,
		PrimaryToken:    token,
		Role:            derived,
		CreatedAt:       time.Now(),
	}
	if err := h.store.Save(r.Context(), sess); err != nil {
		logging.Error("Gateway", err, "Failed to create session")
		http.Redirect(w, r, publicLanding+"?error=auth_failed", http.StatusFound)
		return
	}

	h.cookies.Write(w, sess.ID)
	logging.Info("Gateway", "Authenticated session %s (role=%s)",
		logging.TruncateSessionID(sess.ID), derived)
	http.Redirect(w, r, authenticatedLanding, http.StatusFound)
}

// GitHubLogin starts the secondary authorization flow. Protected: the
// GitHub link always hangs off an authenticated session. Any prior link
// is cleared and a fresh single-use CSRF state stored.
func (h *Handlers) GitHubLogin(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		h.requireAuth(w)
		return
	}

	state, err := oauth.NewState()
	if err != nil {
		logging.Error("Gateway", err, "Failed to generate CSRF state")
		WriteError(w, http.StatusInternalServerError, ErrorBody{Error: MsgInternalError})
		return
	}

	err = h.store.Update(r.Context(), sess.ID, func(s *session.Session) error {
		s.ClearSecondary()
		s.CSRFState = state
		return nil
	})
	if err != nil {
		logging.Error("Gateway", err, "Failed to stage secondary authorization")
		WriteError(w, http.StatusInternalServerError, ErrorBody{Error: MsgInternalError})
		return
	}

	http.Redirect(w, r, h.github.AuthCodeURL(state), http.StatusFound)
}

// GitHubCallback completes the secondary flow. The stored CSRF state is
// consumed before anything else so a stale callback can never be
// replayed, then validated against the returned state.
func (h *Handlers) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		h.requireAuth(w)
		return
	}

	var storedState string
	if err := h.store.Update(r.Context(), sess.ID, func(s *session.Session) error {
		storedState = s.ConsumeCSRFState()
		return nil
	}); err != nil {
		logging.Error("Gateway", err, "Failed to consume CSRF state")
		http.Redirect(w, r, authenticatedLanding+"?error=github_auth_failed", http.StatusFound)
		return
	}

	code := r.URL.Query().Get("code")
	returnedState := r.URL.Query().Get("state")

	token, identity, err := h.github.Complete(r.Context(), code, returnedState, storedState)
	if err != nil {
		// CSRF mismatch is user-visibly identical to an exchange
		// failure; the distinction only matters in the logs.
		logging.Error("Gateway", err, "Secondary authentication failed for session %s",
			logging.TruncateSessionID(sess.ID))
		http.Redirect(w, r, authenticatedLanding+"?error=github_auth_failed", http.StatusFound)
		return
	}

	if err := h.store.Update(r.Context(), sess.ID, func(s *session.Session) error {
		s.SecondaryToken = token
		s.SecondaryIdentity = identity
		return nil
	}); err != nil {
		logging.Error("Gateway", err, "Failed to store secondary credentials")
		http.Redirect(w, r, authenticatedLanding+"?error=github_auth_failed", http.StatusFound)
		return
	}

	logging.Info("Gateway", "Linked secondary provider for session %s (login=%s)",
		logging.TruncateSessionID(sess.ID), identity.Login)
	http.Redirect(w, r, authenticatedLanding, http.StatusFound)
}

// userResponse is the payload of GET /api/user.
type userResponse struct {
	User                *session.Identity `json:"user"`
	Role                role.Role         `json:"role"`
	GitHubAuthenticated bool              `json:"githubAuthenticated"`
}

// APIUser returns identity, role, and secondary-link status.
func (h *Handlers) APIUser(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok || !sess.Authenticated() {
		h.requireAuth(w)
		return
	}

	WriteJSON(w, http.StatusOK, userResponse{
		User:                sess.PrimaryIdentity,
		Role:                sess.Role,
		GitHubAuthenticated: sess.SecondaryLinked(),
	})
}

// GitHubTest validates the stored secondary token against the provider.
// GitHub has no refresh support, so an invalid token clears the link
// and the caller must re-initiate authorization.
func (h *Handlers) GitHubTest(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		h.requireAuth(w)
		return
	}

	if !sess.SecondaryLinked() {
		WriteError(w, http.StatusUnauthorized, ErrorBody{
			Error:   "No GitHub token found",
			Details: "Please authenticate with GitHub",
		})
		return
	}

	err := h.github.Validate(r.Context(), sess.SecondaryToken)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":        "ok",
			"authenticated": true,
			"username":      secondaryLogin(sess),
		})
	case errors.Is(err, oauth.ErrTokenInvalid):
		if uerr := h.store.Update(r.Context(), sess.ID, func(s *session.Session) error {
			s.ClearSecondary()
			return nil
		}); uerr != nil {
			logging.Warn("Gateway", "Failed to clear invalid secondary link: %v", uerr)
		}
		WriteError(w, http.StatusUnauthorized, ErrorBody{
			Error:   "Invalid GitHub token",
			Details: "Please re-authenticate with GitHub",
		})
	default:
		logging.Error("Gateway", err, "Secondary token validation failed")
		WriteError(w, http.StatusBadGateway, ErrorBody{
			Error:   MsgProviderFailed,
			Details: "Could not verify GitHub credentials",
		})
	}
}

// Logout destroys the session. Destroying an absent session is a
// no-op, so logout is idempotent.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := h.cookies.Read(r); ok {
		if err := h.store.Destroy(r.Context(), sessionID); err != nil {
			logging.Warn("Gateway", "Failed to destroy session: %v", err)
		}
	}
	h.cookies.Clear(w)
	http.Redirect(w, r, publicLanding, http.StatusFound)
}

// Dashboard gates the authenticated landing path. HTML delivery is
// owned by the static layer; the gateway only confirms the session.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok || !sess.Authenticated() {
		http.Redirect(w, r, publicLanding, http.StatusFound)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"email":   sess.PrimaryIdentity.Email,
		"role":    sess.Role,
	})
}

func (h *Handlers) requireAuth(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, ErrorBody{
		Error:   MsgAuthenticationRequired,
		Details: "Please log in to access this resource",
	})
}

func secondaryLogin(sess *session.Session) string {
	if sess.SecondaryIdentity == nil {
		return ""
	}
	return sess.SecondaryIdentity.Login
}
