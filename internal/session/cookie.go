package session

import (
	"net/http"
	"time"
)

// CookieName is the name of the session cookie. The value is the opaque
// session ID; all real state stays server-side.
const CookieName = "milecal_session"

// CookieCodec reads and writes the session cookie.
type CookieCodec struct {
	secure bool
	ttl    time.Duration
}

// NewCookieCodec creates a codec. secure should be true everywhere
// except plain-HTTP local development.
func NewCookieCodec(secure bool, ttl time.Duration) *CookieCodec {
	return &CookieCodec{secure: secure, ttl: ttl}
}

// Read extracts the session ID from the request, if present.
func (cc *CookieCodec) Read(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Write sets the session cookie on the response.
func (cc *CookieCodec) Write(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(cc.ttl.Seconds()),
		HttpOnly: true,
		Secure:   cc.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (cc *CookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cc.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
