// Package ctxkeys holds the request context keys shared by middleware and handlers.
// It is a leaf package so api and api/handlers can both import it.
package ctxkeys

import "context"

// Key is the named type for all API context keys. context.Value compares type
// and value, so these never collide with plain string keys.
type Key string

const (
	// UserID is the authenticated user, injected by AuthMiddleware from the JWT.
	UserID Key = "user_id"

	// Role is the authenticated user's role ("student", "admin" or "guest").
	Role Key = "role"
)

// WithValue adds a ctxkeys.Key value to the context.
func WithValue(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// String returns the non-empty string stored under key.
func String(ctx context.Context, key Key) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
