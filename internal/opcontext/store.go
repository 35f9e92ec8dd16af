package opcontext

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var currentKey = contextKey{}

// WithContext returns a copy of ctx in which c is the current operation
// context. The parent ctx is unchanged, so callers holding it keep seeing
// whatever was current before.
func WithContext(ctx context.Context, c *Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, currentKey, c)
}

// FromContext returns the current operation context, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(currentKey).(*Context)
	return c, ok && c != nil
}

// Current returns the current operation context or nil.
func Current(ctx context.Context) *Context {
	c, _ := FromContext(ctx)
	return c
}

// RunInScope runs fn with a context in which c is current. Goroutines that
// fn starts with the derived context see c for their whole lifetime; the
// caller's ctx never does.
func RunInScope(ctx context.Context, c *Context, fn func(ctx context.Context) error) error {
	return fn(WithContext(ctx, c))
}
