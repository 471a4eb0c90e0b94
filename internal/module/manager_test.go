package module

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/component"
)

type testModule struct {
	Base
	name       string
	meta       Metadata
	components map[string]component.Definition
	listening  []EventType

	mu   sync.Mutex
	seen []Event
}

func (m *testModule) Name() string              { return m.name }
func (m *testModule) Metadata() Metadata        { return m.meta }
func (m *testModule) ListeningFor() []EventType { return m.listening }

func (m *testModule) Components() map[string]component.Definition {
	return m.components
}

func (m *testModule) HandleEvent(_ context.Context, ev Event) {
	m.mu.Lock()
	m.seen = append(m.seen, ev)
	m.mu.Unlock()
}

func (m *testModule) events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.seen...)
}

func newTestModule(name string, features ...Feature) *testModule {
	return &testModule{
		name: name,
		meta: Metadata{Name: name, Version: "1.0.0", UsedFeatures: features},
	}
}

type memLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *memLogger) Debug(string, ...any) {}
func (l *memLogger) Info(string, ...any)  {}

func (l *memLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *memLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func TestCheckCompatibility_VersionGate(t *testing.T) {
	host := []Feature{{Name: "core", Version: "0.2"}}

	tests := []struct {
		name     string
		features []Feature
		reason   Reason
	}{
		{"exact match loads", []Feature{{Name: "core", Version: "0.2"}}, ""},
		{"older version rejected", []Feature{{Name: "core", Version: "0.1"}}, ReasonVersionMismatch},
		{"newer version rejected", []Feature{{Name: "core", Version: "0.3"}}, ReasonVersionMismatch},
		{"unknown feature rejected", []Feature{{Name: "core", Version: "0.2"}, {Name: "holograms", Version: "1.0"}}, ReasonTooNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckCompatibility(Metadata{Name: "m", UsedFeatures: tt.features}, host)
			if tt.reason == "" {
				if err != nil {
					t.Errorf("CheckCompatibility() error = %v, want nil", err)
				}
				return
			}
			var cerr *CompatibilityError
			if !errors.As(err, &cerr) {
				t.Fatalf("CheckCompatibility() error = %v, want *CompatibilityError", err)
			}
			if cerr.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", cerr.Reason, tt.reason)
			}
		})
	}
}

func TestCheckCompatibility_Warnings(t *testing.T) {
	warnings, err := CheckCompatibility(Metadata{Name: "old", Version: "v-next"}, HostFeatures)
	if err != nil {
		t.Fatalf("CheckCompatibility() error = %v", err)
	}
	// two essentials missing plus the bad version
	if len(warnings) != 3 {
		t.Errorf("warnings = %v, want 3", warnings)
	}

	warnings, _ = CheckCompatibility(Metadata{
		Name:         "current",
		Version:      "1.2.3",
		UsedFeatures: DeclaredFeatures(FeatureCore, FeatureModuleAPI),
	}, HostFeatures)
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
}

func TestRegister(t *testing.T) {
	m := NewManager(component.NewRegistry())
	logger := &memLogger{}
	m.SetLogger(logger)

	a := newTestModule("a") // no essentials: loads with warnings
	a.components = map[string]component.Definition{"shared": {DisplayName: "Shared"}}
	if err := m.Register(a); err != nil {
		t.Fatalf("Register(a) error = %v", err)
	}
	if len(logger.warns) == 0 {
		t.Error("expected a warning for missing essential features")
	}

	if err := m.Register(newTestModule("a")); !errors.Is(err, ErrDuplicateModule) {
		t.Errorf("duplicate Register() error = %v", err)
	}

	b := newTestModule("b")
	b.components = map[string]component.Definition{"shared": {}}
	if err := m.Register(b); !errors.Is(err, component.ErrDuplicateComponent) {
		t.Errorf("conflicting Register() error = %v", err)
	}
	if _, ok := m.Get("b"); ok {
		t.Error("module with conflicting components was left registered")
	}

	bad := newTestModule("bad", Feature{Name: "core", Version: "0.1"})
	if err := m.Register(bad); err == nil {
		t.Error("incompatible module registered")
	}

	if err := m.Register(newTestModule("")); !errors.Is(err, ErrInvalidModule) {
		t.Errorf("nameless Register() error = %v", err)
	}

	if list := m.List(); len(list) != 1 || list[0].Name != "a" || list[0].Components[0] != "shared" {
		t.Errorf("List() = %+v", list)
	}

	if err := m.Unregister("a"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if _, ok := m.Components().Lookup("shared"); ok {
		t.Error("components survived Unregister")
	}
	if err := m.Unregister("a"); !errors.Is(err, ErrUnknownModule) {
		t.Errorf("second Unregister() error = %v", err)
	}
}

func TestDispatch_ListeningForEnforced(t *testing.T) {
	m := NewManager(component.NewRegistry())

	presses := newTestModule("presses")
	presses.listening = []EventType{EventButtonAction}
	lifecycle := newTestModule("lifecycle")
	lifecycle.listening = []EventType{EventDeviceConnected}
	everything := newTestModule("everything")
	everything.listening = []EventType{EventAll}

	for _, mod := range []*testModule{presses, lifecycle, everything} {
		if err := m.Register(mod); err != nil {
			t.Fatalf("Register(%s) error = %v", mod.name, err)
		}
	}

	offered := m.Dispatch(context.Background(), Event{Type: EventButtonAction, Serial: "S"})
	if len(offered) != 2 || offered[0] != "presses" || offered[1] != "everything" {
		t.Errorf("offered = %v, want [presses everything]", offered)
	}
	if len(lifecycle.events()) != 0 {
		t.Error("lifecycle module received an event it does not listen for")
	}
	if len(presses.events()) != 1 || len(everything.events()) != 1 {
		t.Error("listening modules did not each receive one event")
	}
}

type panicModule struct {
	Base
}

func (panicModule) Name() string       { return "panicky" }
func (panicModule) Metadata() Metadata { return Metadata{} }
func (panicModule) ListeningFor() []EventType {
	return []EventType{EventAll}
}
func (panicModule) HandleEvent(context.Context, Event) { panic("boom") }

func TestDispatch_PanicContained(t *testing.T) {
	m := NewManager(component.NewRegistry())
	logger := &memLogger{}
	m.SetLogger(logger)

	after := newTestModule("after")
	after.listening = []EventType{EventAll}
	_ = m.Register(panicModule{})
	_ = m.Register(after)

	m.Dispatch(context.Background(), Event{Type: EventButtonUp})

	if len(after.events()) != 1 {
		t.Error("module after a panicking one was not offered the event")
	}
	if len(logger.errs) != 1 {
		t.Errorf("errors logged = %v, want one", logger.errs)
	}
}

func TestComponentDefaults(t *testing.T) {
	m := NewManager(component.NewRegistry())
	mod := newTestModule("core")
	mod.components = map[string]component.Definition{
		"label": {
			Default: json.RawMessage(`{"text":"?"}`),
			Schema:  json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"additionalProperties":false}`),
		},
	}
	if err := m.Register(mod); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	u := button.NewUnique(nil)

	handled, err := m.AddComponent(u, "label")
	if !handled || err != nil {
		t.Fatalf("AddComponent() = %v, %v", handled, err)
	}
	if raw, _ := u.Snapshot().Raw("label"); string(raw) != `{"text":"?"}` {
		t.Errorf("default not applied: %s", raw)
	}

	values, _, err := m.ComponentValues(u, "label")
	if err != nil || len(values) != 1 || values[0].Name != "text" {
		t.Fatalf("ComponentValues() = %+v, %v", values, err)
	}

	_, err = m.SetComponentValues(u, "label", []component.UIValue{{Name: "text", Value: json.RawMessage(`"Mute"`)}})
	if err != nil {
		t.Fatalf("SetComponentValues() error = %v", err)
	}
	got, _ := button.Get[map[string]string](u.Snapshot(), "label")
	if got["text"] != "Mute" {
		t.Errorf("text = %q, want Mute", got["text"])
	}

	_, err = m.SetComponentValues(u, "label", []component.UIValue{{Name: "bogus", Value: json.RawMessage(`1`)}})
	if !errors.Is(err, component.ErrInvalidValue) {
		t.Errorf("invalid SetComponentValues() error = %v", err)
	}
	got, _ = button.Get[map[string]string](u.Snapshot(), "label")
	if got["text"] != "Mute" {
		t.Error("failed SetComponentValues modified the button")
	}

	if handled, _ := m.AddComponent(u, "unknown"); handled {
		t.Error("unknown component reported handled")
	}

	if _, err := m.RemoveComponent(u, "label"); err != nil {
		t.Fatalf("RemoveComponent() error = %v", err)
	}
	if u.Snapshot().Has("label") {
		t.Error("component still present after RemoveComponent")
	}
}

type editorModule struct {
	testModule
	added []string
}

func (e *editorModule) AddComponent(b button.Button, name string) error {
	e.added = append(e.added, name)
	return b.Set(name, map[string]int{"custom": 1})
}

func (e *editorModule) RemoveComponent(b button.Button, name string) error {
	b.Remove(name)
	return nil
}

func (e *editorModule) ComponentValues(button.Button, string) ([]component.UIValue, error) {
	return []component.UIValue{{Name: "custom", Type: "integer"}}, nil
}

func (e *editorModule) SetComponentValues(button.Button, string, []component.UIValue) error {
	return errors.New("read only")
}

func TestComponentEditorOverride(t *testing.T) {
	m := NewManager(component.NewRegistry())
	ed := &editorModule{testModule: testModule{
		name:       "custom",
		components: map[string]component.Definition{"thing": {}},
	}}
	if err := m.Register(ed); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	u := button.NewUnique(nil)
	if _, err := m.AddComponent(u, "thing"); err != nil {
		t.Fatalf("AddComponent() error = %v", err)
	}
	if len(ed.added) != 1 {
		t.Error("editor AddComponent not called")
	}
	if _, err := m.SetComponentValues(u, "thing", nil); err == nil {
		t.Error("editor SetComponentValues error not propagated")
	}
	values, _, _ := m.ComponentValues(u, "thing")
	if len(values) != 1 || values[0].Name != "custom" {
		t.Errorf("ComponentValues() = %+v", values)
	}
}
