package errcapture

import (
	"reflect"
	"strings"

	"github.com/helixir/observe/internal/normalize"
)

// objectProps returns the own properties of a string-keyed map or a struct.
// ok is false for every other shape.
func objectProps(v any) (map[string]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map {
		props, ok := normalize.AsObject(v)
		if ok && props == nil {
			props = map[string]any{}
		}
		return props, ok
	}
	return structProps(rv)
}

// structProps reads the exported fields of a struct (or pointer to one),
// keyed by their JSON name when tagged. Fields that cannot be read are
// skipped.
func structProps(rv reflect.Value) (map[string]any, bool) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	t := rv.Type()
	props := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		if val, ok := readField(rv.Field(i)); ok {
			props[name] = val
		}
	}
	return props, true
}

func readField(fv reflect.Value) (val any, ok bool) {
	defer func() {
		if recover() != nil {
			val, ok = nil, false
		}
	}()
	return fv.Interface(), true
}

// dropSelfRefs removes properties that point back at the owning object.
func dropSelfRefs(owner any, props map[string]any) map[string]any {
	ownerPtr, ok := identity(reflect.ValueOf(owner))
	if !ok {
		return props
	}
	out := make(map[string]any, len(props))
	for k, p := range props {
		if ptr, ok := identity(reflect.ValueOf(p)); ok && ptr == ownerPtr {
			continue
		}
		out[k] = p
	}
	return out
}

func identity(rv reflect.Value) (uintptr, bool) {
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Slice:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	}
	return 0, false
}
