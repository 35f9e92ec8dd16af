// Package exporter defines the sink contract for settled operation contexts
// and the ordered registry that holds them.
//
// An exporter must implement Exporter. The remaining lifecycle hooks are
// optional and detected by type assertion:
//
//   - FailureExporter: called instead of Success when the operation fails.
//     Exporters without it receive Success on failures too.
//   - BeforeHook: called before the operation runs.
//   - AfterHook: called after Success on the success path only.
//   - ErrorHook: called after Failure/Success on the failure path only.
//
// Hooks receive the scope's context.Context, detached from the caller's
// cancellation, and the operation context. A returned error or a panic is
// logged by the orchestrator and never reaches the observed caller.
package exporter

import (
	"context"

	"github.com/helixir/observe/internal/opcontext"
)

// Exporter receives settled operation contexts.
type Exporter interface {
	// Name is the unique registration key.
	Name() string

	// Success is called when the operation completes without error.
	Success(ctx context.Context, c *opcontext.Context) error
}

// FailureExporter is implemented by exporters that handle failed operations
// separately from successful ones.
type FailureExporter interface {
	Failure(ctx context.Context, c *opcontext.Context, err error) error
}

// BeforeHook runs before the observed operation.
type BeforeHook interface {
	Before(ctx context.Context, c *opcontext.Context) error
}

// AfterHook runs after Success on the success path.
type AfterHook interface {
	After(ctx context.Context, c *opcontext.Context) error
}

// ErrorHook runs after Failure on the failure path.
type ErrorHook interface {
	OnError(ctx context.Context, c *opcontext.Context, err error) error
}

// Funcs adapts plain functions to the exporter hooks. Nil functions behave
// as if the hook were not implemented: a nil FailureFunc falls back to
// SuccessFunc, other nil hooks do nothing.
type Funcs struct {
	ExporterName string
	SuccessFunc  func(ctx context.Context, c *opcontext.Context) error
	FailureFunc  func(ctx context.Context, c *opcontext.Context, err error) error
	BeforeFunc   func(ctx context.Context, c *opcontext.Context) error
	AfterFunc    func(ctx context.Context, c *opcontext.Context) error
	OnErrorFunc  func(ctx context.Context, c *opcontext.Context, err error) error
}

func (f *Funcs) Name() string { return f.ExporterName }

func (f *Funcs) Success(ctx context.Context, c *opcontext.Context) error {
	if f.SuccessFunc == nil {
		return nil
	}
	return f.SuccessFunc(ctx, c)
}

func (f *Funcs) Failure(ctx context.Context, c *opcontext.Context, err error) error {
	if f.FailureFunc == nil {
		return f.Success(ctx, c)
	}
	return f.FailureFunc(ctx, c, err)
}

func (f *Funcs) Before(ctx context.Context, c *opcontext.Context) error {
	if f.BeforeFunc == nil {
		return nil
	}
	return f.BeforeFunc(ctx, c)
}

func (f *Funcs) After(ctx context.Context, c *opcontext.Context) error {
	if f.AfterFunc == nil {
		return nil
	}
	return f.AfterFunc(ctx, c)
}

func (f *Funcs) OnError(ctx context.Context, c *opcontext.Context, err error) error {
	if f.OnErrorFunc == nil {
		return nil
	}
	return f.OnErrorFunc(ctx, c, err)
}
