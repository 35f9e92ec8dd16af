// Package errcapture detects error-shaped values and serializes them into a
// plain map that is safe to attach to an operation context and export.
package errcapture

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Standard keys of a serialized error.
const (
	KeyMessage       = "message"
	KeyName          = "name"
	KeyStack         = "stack"
	KeyErrorType     = "errorType"
	KeyCause         = "cause"
	KeyErrors        = "errors"
	KeyOriginalValue = "originalValue"
)

// Info is the serialized form of an error-like value.
type Info = map[string]any

// Detector reports whether a value should be treated as an error.
type Detector func(v any) bool

// signalKeys are property names whose presence marks an object as error-shaped.
var signalKeys = []string{"message", "error", "stack", "code", "errno", "cause"}

// maxDepth bounds recursion through cause chains and nested error fields.
const maxDepth = 32

// IsErrorLike is the default Detector.
//
// It returns true for error values, and for maps or structs that expose one
// of message, error, stack, code, errno or cause, or whose name/type field
// contains "error". Nil, primitives, slices and objects without error
// signals are not error-like.
func IsErrorLike(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(error); ok {
		return true
	}
	props, ok := objectProps(v)
	if !ok {
		return false
	}
	return hasErrorSignal(props)
}

func hasErrorSignal(props map[string]any) bool {
	for k := range props {
		lk := strings.ToLower(k)
		for _, s := range signalKeys {
			if lk == s {
				return true
			}
		}
	}
	for _, field := range []string{"name", "type"} {
		if s, ok := lookupFold(props, field).(string); ok && strings.Contains(strings.ToLower(s), "error") {
			return true
		}
	}
	return false
}

// Serialize converts v into an Info map. It never panics.
func Serialize(v any) (info Info) {
	defer func() {
		if r := recover(); r != nil {
			info = Info{
				KeyMessage: fmt.Sprintf("serialize failed: %v", r),
				KeyName:    "SerializationError",
			}
		}
	}()
	return serialize(v, 0)
}

func serialize(v any, depth int) Info {
	if v == nil {
		return Info{
			KeyMessage:       "nil",
			KeyName:          "NullError",
			KeyOriginalValue: nil,
		}
	}

	switch val := v.(type) {
	case error:
		return serializeError(val, depth)
	case string:
		return Info{
			KeyMessage:       val,
			KeyName:          "StringError",
			KeyOriginalValue: val,
		}
	}

	if props, ok := objectProps(v); ok {
		return serializeObject(v, props)
	}

	rv := reflect.ValueOf(v)
	kind := rv.Kind()
	info := Info{
		KeyMessage: fmt.Sprint(v),
		KeyName:    kind.String() + "Error",
	}
	switch kind {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Pointer:
		info[KeyOriginalValue] = fmt.Sprintf("%v", v)
	case reflect.Slice, reflect.Array:
		if b, err := json.Marshal(v); err == nil {
			info[KeyMessage] = string(b)
		}
		info[KeyOriginalValue] = v
	default:
		info[KeyOriginalValue] = v
	}
	return info
}

func serializeError(err error, depth int) Info {
	info := Info{
		KeyMessage:   safeMessage(err),
		KeyName:      errorName(err),
		KeyErrorType: fmt.Sprintf("%T", err),
	}
	if stack := errorStack(err); stack != "" {
		info[KeyStack] = stack
	}

	if props, ok := structProps(reflect.ValueOf(err)); ok {
		for k, p := range props {
			if _, reserved := info[k]; reserved {
				continue
			}
			if nested, isErr := p.(error); isErr {
				if depth < maxDepth && nested != err {
					info[k] = serialize(nested, depth+1)
				}
				continue
			}
			info[k] = p
		}
	}

	if depth >= maxDepth {
		return info
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		if cause := safeUnwrap(u); cause != nil {
			info[KeyCause] = serialize(cause, depth+1)
		}
	case interface{ Unwrap() []error }:
		var list []any
		for _, e := range safeUnwrapMulti(u) {
			if e != nil {
				list = append(list, serialize(e, depth+1))
			}
		}
		if len(list) > 0 {
			info[KeyErrors] = list
		}
	}
	return info
}

// serializeObject fills message and name, then copies the object's own
// props over them so an own message or name is kept.
func serializeObject(v any, props map[string]any) Info {
	props = dropSelfRefs(v, props)
	info := make(Info, len(props)+2)

	encoded := "{}"
	if b, err := json.Marshal(props); err == nil {
		encoded = string(b)
	}

	info[KeyMessage] = encoded
	info[KeyName] = "ObjectError"
	if hasErrorSignal(props) {
		if msg := lookupFold(props, "message"); msg != nil {
			info[KeyMessage] = fmt.Sprint(msg)
		}
		switch {
		case lookupFold(props, "name") != nil:
			info[KeyName] = fmt.Sprint(lookupFold(props, "name"))
		case lookupFold(props, "code") != nil:
			info[KeyName] = fmt.Sprint(lookupFold(props, "code"))
		}
	}

	for k, p := range props {
		info[k] = p
	}
	return info
}

func safeMessage(err error) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("%T", err)
		}
	}()
	return err.Error()
}

func safeUnwrap(u interface{ Unwrap() error }) (cause error) {
	defer func() {
		if recover() != nil {
			cause = nil
		}
	}()
	return u.Unwrap()
}

func safeUnwrapMulti(u interface{ Unwrap() []error }) (errs []error) {
	defer func() {
		if recover() != nil {
			errs = nil
		}
	}()
	return u.Unwrap()
}

// errorName prefers a Name() method, then the concrete type name.
func errorName(err error) string {
	if n, ok := err.(interface{ Name() string }); ok {
		if name := safeCall(n.Name); name != "" {
			return name
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "Error"
	}
	return t.Name()
}

func errorStack(err error) string {
	var st interface{ StackTrace() pkgerrors.StackTrace }
	if errors.As(err, &st) {
		return strings.TrimPrefix(fmt.Sprintf("%+v", st.StackTrace()), "\n")
	}
	if s, ok := err.(interface{ Stack() string }); ok {
		return safeCall(s.Stack)
	}
	return ""
}

func safeCall(fn func() string) (s string) {
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()
	return fn()
}

func lookupFold(props map[string]any, key string) any {
	if v, ok := props[key]; ok {
		return v
	}
	for k, v := range props {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}
