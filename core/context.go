package core

import "context"

type sessionKey struct{}

// WithSessionID returns a context carrying the conversation session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFrom returns the session id stored by WithSessionID, or "".
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
