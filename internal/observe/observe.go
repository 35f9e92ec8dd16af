// Package observe runs operations inside an observation scope and drives the
// exporter lifecycle once they settle.
//
// For each call, Observe creates an operation context, makes it current for
// the context.Context passed to fn, and then:
//
//  1. runs every exporter's Before hook in registration order,
//  2. runs fn,
//  3. normalizes the collected data if normalization is enabled,
//  4. on success runs Success then After hooks,
//     on failure runs Failure (or Success as a fallback) then OnError hooks,
//  5. returns fn's result unchanged.
//
// Hooks run sequentially. A failing or panicking hook is logged and counted
// but never stops other hooks or changes the result. The exporter set and
// normalization config are captured when the call starts; Init or Register
// calls made while it runs apply to later calls only.
package observe

import (
	"context"
	"os"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"github.com/helixir/observe/internal/errcapture"
	"github.com/helixir/observe/internal/exporter"
	"github.com/helixir/observe/internal/normalize"
	"github.com/helixir/observe/internal/observability"
	"github.com/helixir/observe/internal/opcontext"
	"github.com/helixir/observe/internal/state"
)

// Config describes one observed operation.
type Config struct {
	// Name labels the operation.
	Name string
	// Scope and Source are optional classification strings.
	Scope  string
	Source string
	// Initial seeds the context data before fn runs.
	Initial map[string]any
}

// StateSource supplies the exporters and normalization config for each call.
// *state.State implements it.
type StateSource interface {
	Snapshot() state.Snapshot
}

// Option configures an Observer.
type Option func(*Observer)

// WithLogger sets the logger used for hook failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Observer) {
		o.logger = logger.With().Str("component", "observer").Logger()
	}
}

// WithMetrics enables hook failure counting.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Observer) {
		o.metrics = m
	}
}

// WithDetector overrides the error-like detection used by Set on contexts
// created by this observer.
func WithDetector(d errcapture.Detector) Option {
	return func(o *Observer) {
		o.detect = d
	}
}

// WithHookErrorHandler registers a callback invoked for every hook failure,
// after it has been logged.
func WithHookErrorHandler(fn func(*HookError)) Option {
	return func(o *Observer) {
		o.onHookError = fn
	}
}

// Observer runs observed operations against a StateSource.
type Observer struct {
	state       StateSource
	logger      zerolog.Logger
	metrics     *observability.Metrics
	detect      errcapture.Detector
	onHookError func(*HookError)
}

// New creates an Observer. A nil src uses the process-wide default state.
func New(src StateSource, opts ...Option) *Observer {
	if src == nil {
		src = state.Default()
	}
	o := &Observer{
		state:  src,
		logger: zerolog.New(os.Stderr).With().Timestamp().Str("component", "observer").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Observe runs fn in a new scope named name.
func (o *Observer) Observe(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return o.ObserveWith(ctx, Config{Name: name}, fn)
}

// ObserveWith runs fn in a new scope described by cfg.
func (o *Observer) ObserveWith(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, o, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do runs fn in a new scope and returns its value and error unchanged. A nil
// o uses the default observer. If fn panics, failure hooks receive a
// *PanicError and the panic is re-raised after they complete.
func Do[T any](ctx context.Context, o *Observer, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	if o == nil {
		o = Default()
	}
	snap := o.state.Snapshot()
	c := opcontext.New(opcontext.Options{
		Name:     cfg.Name,
		Scope:    cfg.Scope,
		Source:   cfg.Source,
		Initial:  cfg.Initial,
		Detector: o.detect,
	})

	var (
		result   T
		panicked *PanicError
	)
	err := opcontext.RunInScope(ctx, c, func(scopeCtx context.Context) error {
		hookCtx := context.WithoutCancel(scopeCtx)
		o.before(hookCtx, c, snap.Exporters)

		var fnErr error
		result, panicked, fnErr = invoke(scopeCtx, fn)

		c.Normalize(normalize.New(snap.Normalization))

		if fnErr == nil && panicked == nil {
			o.success(hookCtx, c, snap.Exporters)
			o.after(hookCtx, c, snap.Exporters)
			return nil
		}

		failure := fnErr
		if panicked != nil {
			failure = panicked
		}
		o.failure(hookCtx, c, snap.Exporters, failure)
		o.onError(hookCtx, c, snap.Exporters, failure)
		return fnErr
	})
	if panicked != nil {
		panic(panicked.Value)
	}
	return result, err
}

func invoke[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (result T, pe *PanicError, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	result, err = fn(ctx)
	return result, nil, err
}

func (o *Observer) before(ctx context.Context, c *opcontext.Context, exporters []exporter.Exporter) {
	for _, e := range exporters {
		if h, ok := e.(exporter.BeforeHook); ok {
			o.runHook(c, e.Name(), PhaseBefore, func() error { return h.Before(ctx, c) })
		}
	}
}

func (o *Observer) success(ctx context.Context, c *opcontext.Context, exporters []exporter.Exporter) {
	for _, e := range exporters {
		o.runHook(c, e.Name(), PhaseSuccess, func() error { return e.Success(ctx, c) })
	}
}

func (o *Observer) after(ctx context.Context, c *opcontext.Context, exporters []exporter.Exporter) {
	for _, e := range exporters {
		if h, ok := e.(exporter.AfterHook); ok {
			o.runHook(c, e.Name(), PhaseAfter, func() error { return h.After(ctx, c) })
		}
	}
}

// failure falls back to Success for exporters that only handle the happy path.
func (o *Observer) failure(ctx context.Context, c *opcontext.Context, exporters []exporter.Exporter, err error) {
	for _, e := range exporters {
		if h, ok := e.(exporter.FailureExporter); ok {
			o.runHook(c, e.Name(), PhaseFailure, func() error { return h.Failure(ctx, c, err) })
			continue
		}
		o.runHook(c, e.Name(), PhaseSuccess, func() error { return e.Success(ctx, c) })
	}
}

func (o *Observer) onError(ctx context.Context, c *opcontext.Context, exporters []exporter.Exporter, err error) {
	for _, e := range exporters {
		if h, ok := e.(exporter.ErrorHook); ok {
			o.runHook(c, e.Name(), PhaseOnError, func() error { return h.OnError(ctx, c, err) })
		}
	}
}

func (o *Observer) runHook(c *opcontext.Context, name string, phase Phase, hook func() error) {
	err := callHook(hook)
	if err == nil {
		return
	}

	herr := &HookError{Exporter: name, Phase: phase, Err: err}
	logger := observability.WithExporterContext(observability.WithOperationContext(o.logger, c), name, string(phase))
	logger.Error().Err(err).Msg("exporter hook failed")

	if o.metrics != nil {
		o.metrics.RecordHookFailure(name, string(phase))
	}
	if o.onHookError != nil {
		o.onHookError(herr)
	}
}

func callHook(hook func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return hook()
}

var (
	defaultOnce     sync.Once
	defaultObserver *Observer
)

// Default returns the observer bound to the process-wide default state.
func Default() *Observer {
	defaultOnce.Do(func() {
		defaultObserver = New(state.Default())
	})
	return defaultObserver
}

// Observe runs fn in a new scope using the default observer.
func Observe(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return Default().Observe(ctx, name, fn)
}

// ObserveWith runs fn in a new scope described by cfg using the default
// observer.
func ObserveWith(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	return Default().ObserveWith(ctx, cfg, fn)
}
