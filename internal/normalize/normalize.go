// Package normalize rewrites the keys of operation data into a uniform
// casing before the data is exported.
package normalize

import (
	"reflect"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// KeyCasing selects the target key style.
type KeyCasing string

const (
	CasingNone  KeyCasing = "none"
	CasingSnake KeyCasing = "snake_case"
	CasingCamel KeyCasing = "camelCase"
)

// Config controls normalization.
type Config struct {
	// Enabled turns normalization on. Disabled configs leave data untouched.
	Enabled bool `mapstructure:"enabled"`

	// KeyCasing is the target style for keys.
	KeyCasing KeyCasing `mapstructure:"key_casing" validate:"omitempty,oneof=none snake_case camelCase"`

	// Deep renames keys of nested objects, including objects inside slices.
	Deep bool `mapstructure:"deep"`
}

// DefaultConfig returns normalization disabled, no casing, deep traversal.
func DefaultConfig() Config {
	return Config{
		Enabled:   false,
		KeyCasing: CasingNone,
		Deep:      true,
	}
}

// Active reports whether normalization would change anything.
func (c Config) Active() bool {
	return c.Enabled && c.KeyCasing != "" && c.KeyCasing != CasingNone
}

// Key rewrites a single key into the given casing.
func Key(key string, casing KeyCasing) string {
	switch casing {
	case CasingSnake:
		lower := cases.Lower(language.Und)
		words := splitWords(key)
		for i, w := range words {
			words[i] = lower.String(w)
		}
		return strings.Join(words, "_")
	case CasingCamel:
		lower, title := cases.Lower(language.Und), cases.Title(language.Und)
		words := splitWords(key)
		for i, w := range words {
			if i == 0 {
				words[i] = lower.String(w)
				continue
			}
			words[i] = title.String(w)
		}
		return strings.Join(words, "")
	default:
		return key
	}
}

// splitWords breaks a key on underscores, hyphens, spaces and camel humps.
// A run of capitals is one word, except that its last capital starts the
// next word when followed by a lowercase letter ("HTTPServer" -> HTTP, Server).
func splitWords(key string) []string {
	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}

	runes := []rune(key)
	for i, r := range runes {
		if r == '_' || r == '-' || r == ' ' {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(cur) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()

	if len(words) == 0 {
		return []string{key}
	}
	return words
}

// Normalizer applies a Config to values.
type Normalizer struct {
	cfg Config
}

// New returns a Normalizer for cfg.
func New(cfg Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Config returns the normalizer's configuration.
func (n *Normalizer) Config() Config {
	return n.cfg
}

// Key rewrites a top-level key.
func (n *Normalizer) Key(key string) string {
	if !n.cfg.Active() {
		return key
	}
	return Key(key, n.cfg.KeyCasing)
}

// Value returns a copy of a top-level value with nested keys rewritten when
// Deep is set. Non-object values are returned as-is.
func (n *Normalizer) Value(v any) any {
	if !n.cfg.Active() || !n.cfg.Deep {
		return v
	}
	return n.walk(v, visited{})
}

// Map normalizes every key of m. Collisions resolve last-write-wins in
// sorted key order.
func (n *Normalizer) Map(m map[string]any) map[string]any {
	if !n.cfg.Active() {
		return m
	}
	return n.renameMap(m, visited{}, n.cfg.Deep)
}

// visit identifies a map or slice on the current walk path. Slices sharing a
// backing array differ by length.
type visit struct {
	ptr uintptr
	len int
}

type visited map[visit]bool

// enter marks rv as on the path. It reports false if rv is already there.
func (s visited) enter(rv reflect.Value) (visit, bool) {
	id := visit{ptr: rv.Pointer(), len: -1}
	if rv.Kind() == reflect.Slice {
		id.len = rv.Len()
	}
	if s[id] {
		return id, false
	}
	s[id] = true
	return id, true
}

func (n *Normalizer) renameMap(m map[string]any, seen visited, deep bool) map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(m))
	for _, k := range keys {
		v := m[k]
		if deep {
			v = n.walk(v, seen)
		}
		out[Key(k, n.cfg.KeyCasing)] = v
	}
	return out
}

// walk rewrites keys of every string-keyed map reachable through maps and
// slices. Typed maps come back as map[string]any. Values already on the
// current path are returned unchanged.
func (n *Normalizer) walk(v any, seen visited) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		obj, ok := AsObject(v)
		if !ok || rv.IsNil() {
			return v
		}
		id, ok := seen.enter(rv)
		if !ok {
			return v
		}
		defer delete(seen, id)
		return n.renameMap(obj, seen, true)

	case reflect.Slice:
		if rv.IsNil() || !mayHoldObjects(rv.Type().Elem()) {
			return v
		}
		id, ok := seen.enter(rv)
		if !ok {
			return v
		}
		defer delete(seen, id)

		if ms, ok := v.([]map[string]any); ok {
			out := make([]map[string]any, len(ms))
			for i, e := range ms {
				if m, ok := n.walk(e, seen).(map[string]any); ok {
					out[i] = m
				}
			}
			return out
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = n.walk(rv.Index(i).Interface(), seen)
		}
		return out

	default:
		return v
	}
}

// mayHoldObjects reports whether slice elements of type t can contain a
// string-keyed map.
func mayHoldObjects(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface:
		return true
	case reflect.Map:
		return t.Key().Kind() == reflect.String
	case reflect.Slice:
		return mayHoldObjects(t.Elem())
	}
	return false
}

// AsObject returns v as a map[string]any if it is a map with string keys.
// A map[string]any is returned as-is; other map types are copied.
func AsObject(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	if rv.IsNil() {
		return nil, true
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
