// Package opcontext holds the per-operation observability record and the
// helpers that carry it through a call chain inside context.Context.
package opcontext

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/observe/internal/errcapture"
	"github.com/helixir/observe/internal/normalize"
)

// ErrNoActiveContext is returned by the mutation API when called outside an
// observed scope.
var ErrNoActiveContext = errors.New("no active observation context")

// Options describe a new Context.
type Options struct {
	// ID overrides the generated identifier.
	ID string
	// Timestamp overrides the creation instant.
	Timestamp time.Time
	Name      string
	Scope     string
	Source    string
	// Initial seeds the data, inserted in sorted key order.
	Initial map[string]any
	// Detector decides which values Set stores in serialized form.
	// Defaults to errcapture.IsErrorLike.
	Detector errcapture.Detector
}

// Context is the structured data record of one observed operation. It is
// safe for concurrent use by goroutines sharing the same scope.
type Context struct {
	ID        string
	Timestamp time.Time
	Name      string
	Scope     string
	Source    string

	detect errcapture.Detector

	mu     sync.RWMutex
	keys   []string
	values map[string]any
}

// New creates a Context with a fresh uuid and the current time unless the
// options set them.
func New(opts Options) *Context {
	c := &Context{
		ID:        opts.ID,
		Timestamp: opts.Timestamp,
		Name:      opts.Name,
		Scope:     opts.Scope,
		Source:    opts.Source,
		detect:    opts.Detector,
		values:    make(map[string]any, len(opts.Initial)),
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	if c.detect == nil {
		c.detect = errcapture.IsErrorLike
	}

	keys := make([]string, 0, len(opts.Initial))
	for k := range opts.Initial {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.put(k, opts.Initial[k])
	}
	return c
}

// put stores v under key, keeping the key's original position. Callers hold mu.
func (c *Context) put(key string, v any) {
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = v
}

// Set overwrites key. Error-like values are stored serialized.
func (c *Context) Set(key string, value any) {
	if c.detect(value) {
		value = errcapture.Serialize(value)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value)
}

// Get returns the value stored under key, or nil.
func (c *Context) Get(key string) any {
	v, _ := c.Lookup(key)
	return v
}

// Lookup returns the value stored under key and whether it exists.
func (c *Context) Lookup(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Push appends value to the slice stored under key. A missing key or a
// non-slice value is replaced by a one-element slice. The stored value is
// always a []any.
func (c *Context) Push(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := asSlice(c.values[key]); ok {
		c.put(key, append(existing, value))
		return
	}
	c.put(key, []any{value})
}

// asSlice copies any slice value into a fresh []any with room for one more
// element.
func asSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		out := make([]any, len(s), len(s)+1)
		copy(out, s)
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len(), rv.Len()+1)
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Merge shallow-merges obj into the object stored under key, new values
// winning per key. Any map with string keys counts as an object and the
// result is always a map[string]any. A missing key or non-object value is
// replaced by a copy of obj.
func (c *Context) Merge(key string, obj map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, _ := normalize.AsObject(c.values[key])
	merged := make(map[string]any, len(existing)+len(obj))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range obj {
		merged[k] = v
	}
	c.put(key, merged)
}

// Keys returns the data keys in insertion order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of data keys.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// Data returns a shallow copy of the data.
func (c *Context) Data() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Normalize replaces the data with a normalized copy. Keys that collide
// after renaming resolve last-write-wins in insertion order, keeping the
// position of the first occurrence.
func (c *Context) Normalize(n *normalize.Normalizer) {
	if n == nil || !n.Config().Active() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.keys))
	values := make(map[string]any, len(c.values))
	for _, k := range c.keys {
		nk := n.Key(k)
		if _, exists := values[nk]; !exists {
			keys = append(keys, nk)
		}
		values[nk] = n.Value(c.values[k])
	}
	c.keys, c.values = keys, values
}

// MarshalJSON encodes the context as
// {"id","timestamp","name","scope","source","data"}, with data keys in
// insertion order.
func (c *Context) MarshalJSON() ([]byte, error) {
	data, err := c.DataJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		ID        string          `json:"id"`
		Timestamp time.Time       `json:"timestamp"`
		Name      string          `json:"name"`
		Scope     string          `json:"scope,omitempty"`
		Source    string          `json:"source,omitempty"`
		Data      json.RawMessage `json:"data"`
	}{
		ID:        c.ID,
		Timestamp: c.Timestamp,
		Name:      c.Name,
		Scope:     c.Scope,
		Source:    c.Source,
		Data:      data,
	})
}

// DataJSON encodes only the data as a JSON object in insertion order.
func (c *Context) DataJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(c.values[k])
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
