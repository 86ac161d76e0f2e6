package session

import (
	"context"

	"lighthouse/store"
)

// Identity is the resolved caller of a request: either Anonymous or
// Authenticated. Handlers switch on the concrete type.
type Identity interface {
	identity()
}

type Anonymous struct{}

type Authenticated struct {
	Session *store.Session
	User    *store.User
}

func (Anonymous) identity()     {}
func (Authenticated) identity() {}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns Anonymous when no identity was attached.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(contextKey{}).(Identity); ok && id != nil {
		return id
	}
	return Anonymous{}
}

// User is a shorthand for the authenticated user, if any.
func User(ctx context.Context) (*store.User, bool) {
	auth, ok := FromContext(ctx).(Authenticated)
	if !ok {
		return nil, false
	}
	return auth.User, true
}
