package button

import (
	"encoding/json"
	"sort"
	"sync"
)

// RawPanel is the serialisable form of a panel.
type RawPanel struct {
	DisplayName string           `json:"display_name"`
	Data        json.RawMessage  `json:"data,omitempty"`
	Buttons     map[uint8]Button `json:"buttons"`
}

// NewRawPanel returns an empty named panel.
func NewRawPanel(name string) RawPanel {
	return RawPanel{DisplayName: name, Buttons: map[uint8]Button{}}
}

// Clone returns a deep copy.
func (r RawPanel) Clone() RawPanel {
	out := RawPanel{
		DisplayName: r.DisplayName,
		Buttons:     make(map[uint8]Button, len(r.Buttons)),
	}
	if r.Data != nil {
		out.Data = append(json.RawMessage(nil), r.Data...)
	}
	for k, b := range r.Buttons {
		out.Buttons[k] = b.Clone()
	}
	return out
}

// CommitFunc receives the current contents of a panel when the stack is
// committed. It is how a panel pushed from a button writes edits back
// into that button.
type CommitFunc func(RawPanel)

// Panel is a live, lockable panel. Its buttons are shared *Unique values.
type Panel struct {
	mu          sync.RWMutex
	displayName string
	data        json.RawMessage
	buttons     map[uint8]*Unique
	onCommit    CommitFunc
}

// NewPanel builds a live panel from raw, wrapping every button in a new
// *Unique.
func NewPanel(raw RawPanel) *Panel {
	p := &Panel{
		displayName: raw.DisplayName,
		buttons:     make(map[uint8]*Unique, len(raw.Buttons)),
	}
	if raw.Data != nil {
		p.data = append(json.RawMessage(nil), raw.Data...)
	}
	for key, b := range raw.Buttons {
		p.buttons[key] = NewUnique(b)
	}
	return p
}

// DisplayName returns the panel's name.
func (p *Panel) DisplayName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.displayName
}

// SetDisplayName renames the panel.
func (p *Panel) SetDisplayName(name string) {
	p.mu.Lock()
	p.displayName = name
	p.mu.Unlock()
}

// Data returns a copy of the panel's opaque data.
func (p *Panel) Data() json.RawMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append(json.RawMessage(nil), p.data...)
}

// SetData replaces the panel's opaque data.
func (p *Panel) SetData(data json.RawMessage) {
	p.mu.Lock()
	p.data = append(json.RawMessage(nil), data...)
	p.mu.Unlock()
}

// Button returns the button at key.
func (p *Panel) Button(key uint8) (*Unique, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.buttons[key]
	return u, ok
}

// SetButton places u at key, replacing whatever was there. u may be shared
// with other panels.
func (p *Panel) SetButton(key uint8, u *Unique) {
	p.mu.Lock()
	p.buttons[key] = u
	p.mu.Unlock()
}

// ClearButton removes the button at key, reporting whether one existed.
func (p *Panel) ClearButton(key uint8) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.buttons[key]; !ok {
		return false
	}
	delete(p.buttons, key)
	return true
}

// Keys returns the occupied keys in ascending order.
func (p *Panel) Keys() []uint8 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]uint8, 0, len(p.buttons))
	for k := range p.buttons {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Buttons returns a copy of the key to button map. The *Unique values are
// shared, not copied.
func (p *Panel) Buttons() map[uint8]*Unique {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[uint8]*Unique, len(p.buttons))
	for k, u := range p.buttons {
		out[k] = u
	}
	return out
}

// Raw snapshots the panel into its serialisable form.
func (p *Panel) Raw() RawPanel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	raw := RawPanel{
		DisplayName: p.displayName,
		Buttons:     make(map[uint8]Button, len(p.buttons)),
	}
	if p.data != nil {
		raw.Data = append(json.RawMessage(nil), p.data...)
	}
	for k, u := range p.buttons {
		raw.Buttons[k] = u.Snapshot()
	}
	return raw
}

// SetCommitHook installs fn to be called with this panel's contents when
// its stack is committed.
func (p *Panel) SetCommitHook(fn CommitFunc) {
	p.mu.Lock()
	p.onCommit = fn
	p.mu.Unlock()
}

func (p *Panel) commitHook() CommitFunc {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.onCommit
}
