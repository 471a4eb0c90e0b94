package events

import (
	"sync"
	"testing"
)

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

func TestDispatcher_OrderAndUnsubscribe(t *testing.T) {
	d := New[string]()
	var got []string

	d.Subscribe(func(ev string) { got = append(got, "a:"+ev) })
	unsubB := d.Subscribe(func(ev string) { got = append(got, "b:"+ev) })
	d.Subscribe(func(ev string) { got = append(got, "c:"+ev) })

	d.Publish("1")
	unsubB()
	unsubB() // idempotent
	d.Publish("2")

	want := []string{"a:1", "b:1", "c:1", "a:2", "c:2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2", d.Len())
	}
}

func TestDispatcher_ZeroValue(t *testing.T) {
	var d Dispatcher[int]
	sum := 0
	d.Subscribe(func(v int) { sum += v })
	d.Publish(3)
	d.Publish(4)
	if sum != 7 {
		t.Errorf("sum = %d, want 7", sum)
	}
}

func TestDispatcher_PanicIsContained(t *testing.T) {
	d := New[int]()
	logger := &recordingLogger{}
	d.SetLogger(logger)

	reached := false
	d.Subscribe(func(int) { panic("boom") })
	d.Subscribe(func(int) { reached = true })

	d.Publish(1)

	if !reached {
		t.Error("subscriber after panicking handler was not called")
	}
	if len(logger.msgs) != 1 {
		t.Errorf("logged %v, want one recovered panic", logger.msgs)
	}
}

func TestDispatcher_SubscribeFromHandler(t *testing.T) {
	d := New[int]()
	calls := 0
	d.Subscribe(func(int) {
		calls++
		d.Subscribe(func(int) { calls++ })
	})

	d.Publish(1) // only the original subscriber
	if calls != 1 {
		t.Errorf("calls = %d after first publish, want 1", calls)
	}
}
