package ratelimit

import (
	"context"
	"net/http"

	"github.com/jobdeck/jobdeck/pkg/clientip"
)

// userIDContextKey is an unexported key type to avoid context collisions.
type userIDContextKey struct{}

// WithUserID returns a context carrying the authenticated user identifier.
// The session layer attaches this after authentication so rate limiting
// attributes requests to the account rather than the source address.
func WithUserID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDContextKey{}, id)
}

// UserIDFromContext extracts the authenticated user identifier, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey{}).(string)
	return id, ok && id != ""
}

// ClientIdentity derives the string that attributes a request to one actor.
// Authenticated users are identified per-account ("user:{id}"), which makes
// them immune to IP-rotation evasion once logged in; anonymous traffic is
// attributed per source address ("ip:{addr}"). When no address resolves the
// sentinel "ip:unknown" pools such requests into one bucket.
func ClientIdentity(r *http.Request) string {
	if id, ok := UserIDFromContext(r.Context()); ok {
		return "user:" + id
	}
	if ip := clientip.GetIP(r); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}
