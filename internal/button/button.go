package button

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Button maps component names to serialised component values.
type Button map[string]json.RawMessage

// New returns an empty button.
func New() Button {
	return Button{}
}

// Components returns the component names present, sorted.
func (b Button) Components() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the component is present.
func (b Button) Has(name string) bool {
	_, ok := b[name]
	return ok
}

// Raw returns the serialised value of a component.
func (b Button) Raw(name string) (json.RawMessage, bool) {
	v, ok := b[name]
	return v, ok
}

// Set serialises v and stores it under name.
func (b Button) Set(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding component %q: %w", name, err)
	}
	b[name] = data
	return nil
}

// SetRaw stores an already serialised value. The bytes are copied.
func (b Button) SetRaw(name string, raw json.RawMessage) {
	b[name] = append(json.RawMessage(nil), raw...)
}

// Remove deletes a component, reporting whether it was present.
func (b Button) Remove(name string) bool {
	if _, ok := b[name]; !ok {
		return false
	}
	delete(b, name)
	return true
}

// Clone returns a deep copy.
func (b Button) Clone() Button {
	if b == nil {
		return nil
	}
	out := make(Button, len(b))
	for k, v := range b {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Equal reports whether both buttons hold the same components with
// byte-identical values after compaction.
func (b Button) Equal(other Button) bool {
	if len(b) != len(other) {
		return false
	}
	for k, v := range b {
		ov, ok := other[k]
		if !ok || !jsonEqual(v, ov) {
			return false
		}
	}
	return true
}

func jsonEqual(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// Get decodes the named component into T.
//
// Returns ErrComponentAbsent when the component is missing, or a
// *ParseError when the stored value does not decode into T.
func Get[T any](b Button, name string) (T, error) {
	var v T
	raw, ok := b[name]
	if !ok {
		return v, ErrComponentAbsent
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &ParseError{Component: name, Err: err}
	}
	return v, nil
}

// Unique is a button under shared ownership. Every holder of the same
// *Unique sees the same contents.
type Unique struct {
	mu sync.RWMutex
	b  Button
}

// NewUnique wraps a copy of b.
func NewUnique(b Button) *Unique {
	if b == nil {
		b = New()
	}
	return &Unique{b: b.Clone()}
}

// Read calls fn with the button under the read lock. fn must not retain
// or modify the button.
func (u *Unique) Read(fn func(Button)) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	fn(u.b)
}

// Update calls fn with the button under the write lock.
func (u *Unique) Update(fn func(Button) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(u.b)
}

// Snapshot returns a deep copy of the current contents.
func (u *Unique) Snapshot() Button {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.b.Clone()
}

// Replace swaps in a copy of b as the new contents.
func (u *Unique) Replace(b Button) {
	if b == nil {
		b = New()
	}
	c := b.Clone()
	u.mu.Lock()
	u.b = c
	u.mu.Unlock()
}

// Clone returns an independent *Unique with the same contents.
func (u *Unique) Clone() *Unique {
	return &Unique{b: u.Snapshot()}
}
