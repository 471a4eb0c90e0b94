package driver

// Debouncer turns raw per-key state into edges. Each 0 to 1 change yields
// one down event and each 1 to 0 change one up event; repeated identical
// samples yield nothing.
type Debouncer struct {
	state []bool
}

// NewDebouncer returns a debouncer for keys keys, all released.
func NewDebouncer(keys int) *Debouncer {
	return &Debouncer{state: make([]bool, keys)}
}

// Sample compares a full state read against the previous one. Extra
// entries beyond the configured key count are ignored.
func (d *Debouncer) Sample(states []bool) []InputEvent {
	var out []InputEvent
	for i, pressed := range states {
		if i >= len(d.state) {
			break
		}
		if pressed != d.state[i] {
			d.state[i] = pressed
			out = append(out, InputEvent{Key: uint8(i), Down: pressed}) // #nosec G115 -- bounded by key count
		}
	}
	return out
}

// Filter drops edges that do not change the tracked state, such as a
// second down without an up.
func (d *Debouncer) Filter(events []InputEvent) []InputEvent {
	out := events[:0:0]
	for _, ev := range events {
		if int(ev.Key) >= len(d.state) {
			continue
		}
		if d.state[ev.Key] == ev.Down {
			continue
		}
		d.state[ev.Key] = ev.Down
		out = append(out, ev)
	}
	return out
}

// Pressed reports the tracked state of key.
func (d *Debouncer) Pressed(key uint8) bool {
	return int(key) < len(d.state) && d.state[key]
}
