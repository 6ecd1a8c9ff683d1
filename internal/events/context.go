package events

import "context"

type sessionKey struct{}

// ContextWithSessionID tags ctx with the session the work belongs to, so
// downstream publishers can route their events to it.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionIDFromContext returns the session ID carried by ctx, or the empty
// string for work not tied to a session.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
