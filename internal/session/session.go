// Package session holds per-browser-session state and the Store
// contract through which every other component reads and writes it.
package session

import (
	"time"

	"golang.org/x/oauth2"

	"milecal/internal/role"
)

// Identity holds the claims fetched from the primary provider's
// userinfo endpoint. Payloads without an email are rejected at the
// boundary, before a session is ever created.
type Identity struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture,omitempty"`
}

// SecondaryIdentity holds the claims from the secondary provider.
type SecondaryIdentity struct {
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
}

// Session is the server-held state for one authenticated browser. The
// session ID is an opaque token delivered via a secure, http-only
// cookie; nothing else is client-readable.
//
// Invariants: Role is set iff PrimaryIdentity is set; SecondaryToken is
// set iff SecondaryIdentity is set; CSRFState exists only between a
// secondary authorization redirect and its callback and is consumed on
// first use regardless of outcome.
type Session struct {
	ID string `json:"id"`

	PrimaryIdentity *Identity     `json:"primary_identity,omitempty"`
	PrimaryToken    *oauth2.Token `json:"primary_token,omitempty"`
	Role            role.Role     `json:"role,omitempty"`

	SecondaryToken    string             `json:"secondary_token,omitempty"`
	SecondaryIdentity *SecondaryIdentity `json:"secondary_identity,omitempty"`

	CSRFState string `json:"csrf_state,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Authenticated reports whether the session carries a primary identity.
func (s *Session) Authenticated() bool {
	return s != nil && s.PrimaryIdentity != nil
}

// SecondaryLinked reports whether a secondary bearer token is stored.
func (s *Session) SecondaryLinked() bool {
	return s != nil && s.SecondaryToken != ""
}

// ClearSecondary drops the secondary link, both token and identity.
func (s *Session) ClearSecondary() {
	s.SecondaryToken = ""
	s.SecondaryIdentity = nil
}

// ConsumeCSRFState returns the stored CSRF state and deletes it. The
// state is single-use: it is consumed whether or not the callback that
// presented it succeeds.
func (s *Session) ConsumeCSRFState() string {
	state := s.CSRFState
	s.CSRFState = ""
	return state
}

// Clone returns a deep copy so callers can never mutate store-held
// state without going back through Save or Update.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.PrimaryIdentity != nil {
		id := *s.PrimaryIdentity
		out.PrimaryIdentity = &id
	}
	if s.PrimaryToken != nil {
		tok := *s.PrimaryToken
		out.PrimaryToken = &tok
	}
	if s.SecondaryIdentity != nil {
		id := *s.SecondaryIdentity
		out.SecondaryIdentity = &id
	}
	return &out
}
