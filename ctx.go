package accounts

import "context"

var callerCtxKey = &contextKey{"caller"}

type contextKey struct {
	name string
}

// WithCaller stores the authenticated user in ctx. Administrative
// operations attribute their activity events to it.
func WithCaller(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, callerCtxKey, user)
}

// CallerFromContext returns the user stored by WithCaller
func CallerFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(callerCtxKey).(*User)
	return user, ok && user != nil
}

// actorFrom resolves the activity actor for ctx, using fallback for
// anonymous or background calls.
func actorFrom(ctx context.Context, fallback ActorRef) ActorRef {
	user, ok := CallerFromContext(ctx)
	if !ok {
		return fallback
	}
	actor := userActor(user)
	if fallback.Type != "" {
		actor.Type = fallback.Type
	}
	return actor
}
