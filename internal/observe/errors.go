package observe

import (
	"fmt"
)

// Phase names an exporter lifecycle hook.
type Phase string

const (
	PhaseBefore  Phase = "before"
	PhaseSuccess Phase = "success"
	PhaseFailure Phase = "failure"
	PhaseAfter   Phase = "after"
	PhaseOnError Phase = "on_error"
)

// HookError describes an exporter hook that returned an error or panicked.
// It is reported to the logger, metrics and the OnHookError callback, and
// never returned to the caller of Observe.
type HookError struct {
	Exporter string
	Phase    Phase
	Err      error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("exporter %q %s hook: %v", e.Exporter, e.Phase, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panic. Failure hooks receive it
// when the observed function panics; the original value is re-panicked once
// the hooks have run.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
