package events

import (
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Handler receives a published event.
type Handler[E any] func(E)

type subscriber[E any] struct {
	id uint64
	fn Handler[E]
}

// Dispatcher fans events of type E out to subscribers.
// The zero value is ready to use.
type Dispatcher[E any] struct {
	mu     sync.RWMutex
	subs   []subscriber[E]
	nextID uint64
	logger Logger
}

// New returns an empty dispatcher.
func New[E any]() *Dispatcher[E] {
	return &Dispatcher[E]{}
}

// SetLogger sets the logger used to report recovered handler panics.
func (d *Dispatcher[E]) SetLogger(logger Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is idempotent.
func (d *Dispatcher[E]) Subscribe(fn Handler[E]) (unsubscribe func()) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, subscriber[E]{id: id, fn: fn})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(id) })
	}
}

func (d *Dispatcher[E]) remove(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s.id == id {
			d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every subscriber in subscription order. The
// subscriber list is copied first, so handlers may subscribe or
// unsubscribe without deadlocking. A panicking handler is logged and
// does not stop delivery to the rest.
func (d *Dispatcher[E]) Publish(ev E) {
	d.mu.RLock()
	subs := append([]subscriber[E](nil), d.subs...)
	logger := d.logger
	d.mu.RUnlock()

	if logger == nil {
		logger = noopLogger{}
	}
	for _, s := range subs {
		deliver(s.fn, ev, logger)
	}
}

func deliver[E any](fn Handler[E], ev E, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panic recovered", "panic", fmt.Sprint(r))
		}
	}()
	fn(ev)
}

// Len returns the number of subscribers.
func (d *Dispatcher[E]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}
