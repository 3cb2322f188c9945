package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load and Update when no live session
// exists for the given ID. Expired sessions are indistinguishable from
// absent ones.
var ErrNotFound = errors.New("session not found")

// Store persists sessions keyed by their opaque ID.
//
// Implementations must serialize operations per session ID so that
// concurrent requests from the same browser never lose updates;
// operations on different IDs are independent. Every Save and Update
// refreshes the session's idle-expiry clock.
type Store interface {
	// Load returns a copy of the session, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (*Session, error)

	// Save writes the session and refreshes its expiry.
	Save(ctx context.Context, sess *Session) error

	// Update applies fn to the stored session under the per-ID write
	// lock and persists the result. fn must not block; the mutation is
	// the only safe way to read-modify-write a session. Returns
	// ErrNotFound if no live session exists.
	Update(ctx context.Context, sessionID string, fn func(*Session) error) error

	// Destroy removes the session. Destroying an absent session is a
	// no-op, not an error.
	Destroy(ctx context.Context, sessionID string) error

	// Close releases store resources (sweeper goroutines, pools).
	Close()
}
