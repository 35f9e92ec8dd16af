package opcontext

import (
	"context"
)

// Set stores value under key in the current operation context.
func Set(ctx context.Context, key string, value any) error {
	c, ok := FromContext(ctx)
	if !ok {
		return ErrNoActiveContext
	}
	c.Set(key, value)
	return nil
}

// Get returns the value stored under key in the current operation context,
// or nil if the key is absent.
func Get(ctx context.Context, key string) (any, error) {
	c, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoActiveContext
	}
	return c.Get(key), nil
}

// Push appends value to the slice stored under key in the current operation
// context.
func Push(ctx context.Context, key string, value any) error {
	c, ok := FromContext(ctx)
	if !ok {
		return ErrNoActiveContext
	}
	c.Push(key, value)
	return nil
}

// Merge shallow-merges obj into the object stored under key in the current
// operation context.
func Merge(ctx context.Context, key string, obj map[string]any) error {
	c, ok := FromContext(ctx)
	if !ok {
		return ErrNoActiveContext
	}
	c.Merge(key, obj)
	return nil
}
