package gateway

import (
	"context"

	"milecal/internal/session"
)

type contextKey int

const sessionContextKey contextKey = iota

// WithSession stashes the authenticated session in the request
// context. The authentication middleware is the production caller;
// downstream handler tests use it to inject a session directly.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// SessionFromContext returns the session placed in the context by the
// authentication middleware. Handlers behind the middleware chain can
// rely on it being present for protected paths.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(*session.Session)
	return sess, ok
}
