package button

import "sync"

// Clipboard is a single shared copy slot. The last Copy wins.
type Clipboard struct {
	mu   sync.Mutex
	slot *Unique
}

// Copy stores u.
func (c *Clipboard) Copy(u *Unique) {
	c.mu.Lock()
	c.slot = u
	c.mu.Unlock()
}

// Paste returns the stored button. With link set the same *Unique is
// returned so the pasted button stays linked to the copied one; otherwise
// an independent copy is returned.
func (c *Clipboard) Paste(link bool) (*Unique, bool) {
	c.mu.Lock()
	u := c.slot
	c.mu.Unlock()
	if u == nil {
		return nil, false
	}
	if link {
		return u, true
	}
	return u.Clone(), true
}

// Clear empties the slot.
func (c *Clipboard) Clear() {
	c.mu.Lock()
	c.slot = nil
	c.mu.Unlock()
}
