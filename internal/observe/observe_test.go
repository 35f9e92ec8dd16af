package observe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/observe/internal/errcapture"
	"github.com/helixir/observe/internal/exporter"
	"github.com/helixir/observe/internal/normalize"
	"github.com/helixir/observe/internal/observability"
	"github.com/helixir/observe/internal/opcontext"
	"github.com/helixir/observe/internal/state"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// full records every hook of a Funcs exporter.
func (r *recorder) full(name string) *exporter.Funcs {
	return &exporter.Funcs{
		ExporterName: name,
		SuccessFunc: func(context.Context, *opcontext.Context) error {
			r.add(name + ".success")
			return nil
		},
		FailureFunc: func(context.Context, *opcontext.Context, error) error {
			r.add(name + ".failure")
			return nil
		},
		BeforeFunc: func(context.Context, *opcontext.Context) error {
			r.add(name + ".before")
			return nil
		},
		AfterFunc: func(context.Context, *opcontext.Context) error {
			r.add(name + ".after")
			return nil
		},
		OnErrorFunc: func(context.Context, *opcontext.Context, error) error {
			r.add(name + ".on_error")
			return nil
		},
	}
}

type successOnly struct {
	name string
	rec  *recorder
	got  []*opcontext.Context
}

func (s *successOnly) Name() string { return s.name }

func (s *successOnly) Success(_ context.Context, c *opcontext.Context) error {
	s.rec.add(s.name + ".success")
	s.got = append(s.got, c)
	return nil
}

func newObserver(t *testing.T, opts state.Options, obsOpts ...Option) (*Observer, *state.State) {
	t.Helper()
	s, err := state.New(opts)
	require.NoError(t, err)
	obsOpts = append([]Option{WithLogger(zerolog.Nop())}, obsOpts...)
	return New(s, obsOpts...), s
}

func TestObserve_ReturnsResultUnchanged(t *testing.T) {
	o, _ := newObserver(t, state.Options{})

	t.Run("value", func(t *testing.T) {
		v, err := Do(context.Background(), o, Config{Name: "op"}, func(context.Context) (int, error) {
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("error identity", func(t *testing.T) {
		want := errors.New("boom")
		err := o.Observe(context.Background(), "op", func(context.Context) error { return want })
		assert.Same(t, want, err)
	})
}

func TestObserve_SuccessLifecycle(t *testing.T) {
	rec := &recorder{}
	o, _ := newObserver(t, state.Options{Exporters: []exporter.Exporter{rec.full("a"), rec.full("b")}})

	err := o.Observe(context.Background(), "op", func(context.Context) error {
		rec.add("fn")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"a.before", "b.before",
		"fn",
		"a.success", "b.success",
		"a.after", "b.after",
	}, rec.list())
}

func TestObserve_FailureLifecycle(t *testing.T) {
	rec := &recorder{}
	plain := &successOnly{name: "plain", rec: rec}
	o, _ := newObserver(t, state.Options{Exporters: []exporter.Exporter{rec.full("a"), plain}})

	want := errors.New("boom")
	err := o.Observe(context.Background(), "op", func(context.Context) error {
		rec.add("fn")
		return want
	})
	assert.ErrorIs(t, err, want)

	assert.Equal(t, []string{
		"a.before",
		"fn",
		"a.failure", "plain.success",
		"a.on_error",
	}, rec.list())
	assert.NotContains(t, rec.list(), "a.after")
}

func TestObserve_SuccessOnlyExporterFiresOnFailure(t *testing.T) {
	rec := &recorder{}
	plain := &successOnly{name: "plain", rec: rec}
	o, _ := newObserver(t, state.Options{Exporters: []exporter.Exporter{plain}})

	_ = o.Observe(context.Background(), "op", func(ctx context.Context) error {
		require.NoError(t, opcontext.Set(ctx, "step", "charge"))
		return errors.New("declined")
	})

	require.Len(t, plain.got, 1)
	assert.Equal(t, "charge", plain.got[0].Get("step"))
}

func TestObserve_HookFailuresAreIsolated(t *testing.T) {
	rec := &recorder{}
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)

	var hookErrs []*HookError
	failing := &exporter.Funcs{
		ExporterName: "failing",
		BeforeFunc: func(context.Context, *opcontext.Context) error {
			return errors.New("before exploded")
		},
		SuccessFunc: func(context.Context, *opcontext.Context) error {
			panic("success exploded")
		},
		AfterFunc: func(context.Context, *opcontext.Context) error {
			return errors.New("after exploded")
		},
	}

	var logs bytes.Buffer
	o, _ := newObserver(t,
		state.Options{Exporters: []exporter.Exporter{failing, rec.full("ok")}},
		WithLogger(zerolog.New(&logs)),
		WithMetrics(metrics),
		WithHookErrorHandler(func(e *HookError) { hookErrs = append(hookErrs, e) }),
	)

	v, err := Do(context.Background(), o, Config{Name: "op"}, func(context.Context) (string, error) {
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	assert.Equal(t, []string{"ok.before", "ok.success", "ok.after"}, rec.list())

	require.Len(t, hookErrs, 3)
	assert.Equal(t, PhaseBefore, hookErrs[0].Phase)
	assert.Equal(t, PhaseSuccess, hookErrs[1].Phase)
	assert.Equal(t, PhaseAfter, hookErrs[2].Phase)
	assert.Equal(t, "failing", hookErrs[0].Exporter)

	var pe *PanicError
	require.ErrorAs(t, hookErrs[1], &pe)
	assert.Equal(t, "success exploded", pe.Value)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HookFailures.WithLabelValues("failing", "before")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HookFailures.WithLabelValues("failing", "success")))
	assert.Contains(t, logs.String(), "exporter hook failed")
}

func TestObserve_FailureHookErrorKeepsOperationError(t *testing.T) {
	failing := &exporter.Funcs{
		ExporterName: "failing",
		FailureFunc: func(context.Context, *opcontext.Context, error) error {
			return errors.New("export failed")
		},
		OnErrorFunc: func(context.Context, *opcontext.Context, error) error {
			panic("on error exploded")
		},
	}
	o, _ := newObserver(t, state.Options{Exporters: []exporter.Exporter{failing}})

	want := errors.New("boom")
	err := o.Observe(context.Background(), "op", func(context.Context) error { return want })
	assert.Same(t, want, err)
}

func TestObserve_PanicInOperation(t *testing.T) {
	var got error
	exp := &exporter.Funcs{
		ExporterName: "catcher",
		FailureFunc: func(_ context.Context, _ *opcontext.Context, err error) error {
			got = err
			return nil
		},
	}
	o, _ := newObserver(t, state.Options{Exporters: []exporter.Exporter{exp}})

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = o.Observe(context.Background(), "op", func(context.Context) error {
			panic("kaboom")
		})
	})

	var pe *PanicError
	require.ErrorAs(t, got, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestObserve_Normalization(t *testing.T) {
	var exported []string
	var late map[string]any

	first := &exporter.Funcs{
		ExporterName: "first",
		SuccessFunc: func(_ context.Context, c *opcontext.Context) error {
			exported = c.Keys()
			c.Set("addedLater", true)
			return nil
		},
	}
	second := &exporter.Funcs{
		ExporterName: "second",
		SuccessFunc: func(_ context.Context, c *opcontext.Context) error {
			late = c.Data()
			return nil
		},
	}
	o, _ := newObserver(t, state.Options{
		Exporters:     []exporter.Exporter{first, second},
		Normalization: normalize.Config{Enabled: true, KeyCasing: normalize.CasingSnake, Deep: true},
	})

	err := o.Observe(context.Background(), "op", func(ctx context.Context) error {
		require.NoError(t, opcontext.Set(ctx, "userId", "1"))
		require.NoError(t, opcontext.Merge(ctx, "requestInfo", map[string]any{"userAgent": "curl"}))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"user_id", "request_info"}, exported)
	assert.Equal(t, map[string]any{"user_agent": "curl"}, late["request_info"])
	assert.Contains(t, late, "addedLater")
}

func TestObserve_SnapshotAtEntry(t *testing.T) {
	rec := &recorder{}
	o, s := newObserver(t, state.Options{Exporters: []exporter.Exporter{rec.full("old")}})

	err := o.Observe(context.Background(), "op", func(context.Context) error {
		return s.Init(state.Options{Exporters: []exporter.Exporter{rec.full("new")}})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"old.before", "old.success", "old.after"}, rec.list())

	require.NoError(t, o.Observe(context.Background(), "op", func(context.Context) error { return nil }))
	assert.Contains(t, rec.list(), "new.success")
}

func TestObserve_ConcurrentScopesDoNotLeak(t *testing.T) {
	o, _ := newObserver(t, state.Options{})

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			want := fmt.Sprintf("req-%d", i)
			return o.Observe(ctx, "op", func(ctx context.Context) error {
				if err := opcontext.Set(ctx, "request_id", want); err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				got, err := opcontext.Get(ctx, "request_id")
				if err != nil {
					return err
				}
				if got != want {
					return fmt.Errorf("got %v, want %s", got, want)
				}
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())
}

func TestObserve_ValueSurvivesTimerAndNestedCall(t *testing.T) {
	o, _ := newObserver(t, state.Options{})

	readUser := func(ctx context.Context) (any, error) {
		return opcontext.Get(ctx, "user_id")
	}

	v, err := Do(context.Background(), o, Config{Name: "op"}, func(ctx context.Context) (any, error) {
		if err := opcontext.Set(ctx, "user_id", 123); err != nil {
			return nil, err
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		result := make(chan any, 1)
		go func() {
			v, _ := readUser(ctx)
			result <- v
		}()
		return <-result, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 123, v)
}

func TestObserve_NestedScopes(t *testing.T) {
	var exported []*opcontext.Context
	exp := &exporter.Funcs{
		ExporterName: "collect",
		SuccessFunc: func(_ context.Context, c *opcontext.Context) error {
			exported = append(exported, c)
			return nil
		},
	}
	o, _ := newObserver(t, state.Options{Exporters: []exporter.Exporter{exp}})

	err := o.Observe(context.Background(), "outer", func(ctx context.Context) error {
		outer := opcontext.Current(ctx)
		require.NoError(t, opcontext.Set(ctx, "level", "outer"))

		err := o.Observe(ctx, "inner", func(inner context.Context) error {
			assert.NotSame(t, outer, opcontext.Current(inner))
			return opcontext.Set(inner, "level", "inner")
		})
		require.NoError(t, err)

		assert.Same(t, outer, opcontext.Current(ctx))
		v, _ := opcontext.Get(ctx, "level")
		assert.Equal(t, "outer", v)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, exported, 2)
	assert.Equal(t, "inner", exported[0].Name)
	assert.Equal(t, "outer", exported[1].Name)
}

func TestObserve_ConfigAndHookContext(t *testing.T) {
	var seen *opcontext.Context
	var hookCtxErr error
	var current *opcontext.Context

	exp := &exporter.Funcs{
		ExporterName: "inspect",
		SuccessFunc: func(ctx context.Context, c *opcontext.Context) error {
			seen = c
			hookCtxErr = ctx.Err()
			current = opcontext.Current(ctx)
			return nil
		},
	}
	o, _ := newObserver(t, state.Options{Exporters: []exporter.Exporter{exp}})

	parent, cancel := context.WithCancel(context.Background())
	err := o.ObserveWith(parent, Config{
		Name:    "checkout",
		Scope:   "orders",
		Source:  "api",
		Initial: map[string]any{"tenant": "acme"},
	}, func(context.Context) error {
		cancel()
		return nil
	})
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, "checkout", seen.Name)
	assert.Equal(t, "orders", seen.Scope)
	assert.Equal(t, "api", seen.Source)
	assert.Equal(t, "acme", seen.Get("tenant"))
	assert.NoError(t, hookCtxErr)
	assert.Same(t, seen, current)
}

func TestObserve_CustomDetector(t *testing.T) {
	o, _ := newObserver(t, state.Options{}, WithDetector(func(v any) bool { return v == "bad" }))

	v, err := Do(context.Background(), o, Config{Name: "op"}, func(ctx context.Context) (any, error) {
		if err := opcontext.Set(ctx, "status", "bad"); err != nil {
			return nil, err
		}
		return opcontext.Get(ctx, "status")
	})
	require.NoError(t, err)

	info, ok := v.(errcapture.Info)
	require.True(t, ok)
	assert.Equal(t, "StringError", info[errcapture.KeyName])
}

func TestMutationOutsideObserve(t *testing.T) {
	assert.ErrorIs(t, opcontext.Set(context.Background(), "k", 1), opcontext.ErrNoActiveContext)
}

func TestDefaultObserver(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, state.Init(state.Options{Exporters: []exporter.Exporter{rec.full("default")}}))
	t.Cleanup(func() {
		require.NoError(t, state.Init(state.DefaultOptions()))
	})

	assert.Same(t, Default(), Default())

	require.NoError(t, Observe(context.Background(), "op", func(context.Context) error { return nil }))
	err := ObserveWith(context.Background(), Config{Name: "op"}, func(context.Context) error { return errors.New("x") })
	require.Error(t, err)

	_, err = Do(context.Background(), nil, Config{Name: "op"}, func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	assert.Equal(t, []string{
		"default.before", "default.success", "default.after",
		"default.before", "default.failure", "default.on_error",
		"default.before", "default.success", "default.after",
	}, rec.list())
}

func TestHookError(t *testing.T) {
	inner := errors.New("boom")
	err := &HookError{Exporter: "kafka", Phase: PhaseSuccess, Err: inner}

	assert.Equal(t, `exporter "kafka" success hook: boom`, err.Error())
	assert.ErrorIs(t, err, inner)

	pe := &PanicError{Value: inner}
	assert.ErrorIs(t, pe, inner)
	assert.Nil(t, (&PanicError{Value: "x"}).Unwrap())
}
