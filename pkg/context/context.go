package context

import (
	"context"
	"time"
)

// Default timeouts for different operations
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// ShortTimeout is for quick operations like lock acquisition
	ShortTimeout = 5 * time.Second

	// MediumTimeout is for database queries
	MediumTimeout = 10 * time.Second
)

// Roles carried by authenticated requests
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Actor identifies who issued the current request
type Actor struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the actor carries the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type actorKey struct{}

// WithActor stores the authenticated actor in ctx
func WithActor(parent context.Context, actor Actor) context.Context {
	return context.WithValue(parent, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by WithActor
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// WithDefaultTimeout creates a context with the default timeout
func WithDefaultTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithShortTimeout creates a context with a short timeout
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

// WithMediumTimeout creates a context with a medium timeout
func WithMediumTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, MediumTimeout)
}

// WithTimeout creates a context with a custom timeout; zero or negative means ShortTimeout
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = ShortTimeout
	}
	return context.WithTimeout(parent, timeout)
}
