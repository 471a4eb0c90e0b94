package module

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/component"
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager is the process-wide module registry.
//
// The lock guards only the module table. It is released before any module
// method runs, so modules may call back into the Manager.
type Manager struct {
	mu         sync.RWMutex
	modules    map[string]Module
	order      []string
	host       []Feature
	components *component.Registry
	logger     Logger
}

// NewManager returns a Manager that registers module components into
// components and checks modules against HostFeatures.
func NewManager(components *component.Registry) *Manager {
	return &Manager{
		modules:    make(map[string]Module),
		host:       HostFeatures,
		components: components,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Components returns the component registry.
func (m *Manager) Components() *component.Registry {
	return m.components
}

// Register validates and adds a module. A module is either fully loaded
// (its components registered) or not loaded at all.
//
// Returns:
//   - error: *CompatibilityError, ErrDuplicateModule, or a component conflict
func (m *Manager) Register(mod Module) error {
	meta := mod.Metadata()
	name := mod.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidModule)
	}
	meta.Name = name

	warnings, err := CheckCompatibility(meta, m.host)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.modules[name]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateModule, name)
	}
	// Reserve the name so a concurrent Register of the same module fails.
	m.modules[name] = mod
	m.mu.Unlock()

	if err := m.components.Register(name, mod.Components()); err != nil {
		m.mu.Lock()
		delete(m.modules, name)
		m.mu.Unlock()
		return fmt.Errorf("registering components of %q: %w", name, err)
	}

	m.mu.Lock()
	m.order = append(m.order, name)
	m.mu.Unlock()

	for _, w := range warnings {
		m.logger.Warn("module loaded with warning", "module", name, "warning", w)
	}
	m.logger.Info("module registered", "module", name, "version", meta.Version, "components", len(mod.Components()))
	return nil
}

// Unregister removes a module and its components.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	if _, ok := m.modules[name]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownModule, name)
	}
	delete(m.modules, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.components.Unregister(name)
	return nil
}

// Get returns a module by name.
func (m *Manager) Get(name string) (Module, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.modules[name]
	return mod, ok
}

// Modules returns the registered modules in registration order.
func (m *Manager) Modules() []Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Module, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.modules[name])
	}
	return out
}

// ModuleInfo is a module's metadata plus what it registered.
type ModuleInfo struct {
	Metadata
	Components   []string    `json:"components"`
	ListeningFor []EventType `json:"listening_for"`
}

// List describes every registered module in registration order.
func (m *Manager) List() []ModuleInfo {
	mods := m.Modules()
	out := make([]ModuleInfo, 0, len(mods))
	for _, mod := range mods {
		meta := mod.Metadata()
		meta.Name = mod.Name()
		info := ModuleInfo{Metadata: meta, ListeningFor: mod.ListeningFor()}
		for name := range mod.Components() {
			info.Components = append(info.Components, name)
		}
		sort.Strings(info.Components)
		out = append(out, info)
	}
	return out
}

// owner resolves a component name to its module and registry entry.
func (m *Manager) owner(componentName string) (Module, component.Entry, bool) {
	entry, ok := m.components.Lookup(componentName)
	if !ok {
		return nil, component.Entry{}, false
	}
	mod, ok := m.Get(entry.Module)
	if !ok {
		return nil, component.Entry{}, false
	}
	return mod, entry, true
}

// AddComponent adds a component to u through its owning module.
// Unknown component names are ignored and report false.
func (m *Manager) AddComponent(u *button.Unique, name string) (bool, error) {
	mod, entry, ok := m.owner(name)
	if !ok {
		return false, nil
	}
	err := u.Update(func(b button.Button) error {
		if ed, ok := mod.(ComponentEditor); ok {
			return ed.AddComponent(b, name)
		}
		def := entry.Definition.Default
		if len(def) == 0 {
			def = json.RawMessage(`{}`)
		}
		b.SetRaw(name, def)
		return nil
	})
	return true, err
}

// RemoveComponent removes a component from u through its owning module.
// Unknown component names are ignored and report false.
func (m *Manager) RemoveComponent(u *button.Unique, name string) (bool, error) {
	mod, _, ok := m.owner(name)
	if !ok {
		return false, nil
	}
	err := u.Update(func(b button.Button) error {
		if ed, ok := mod.(ComponentEditor); ok {
			return ed.RemoveComponent(b, name)
		}
		b.Remove(name)
		return nil
	})
	return true, err
}

// ComponentValues returns the editable fields of a component on u.
// Unknown component names are ignored and report false.
func (m *Manager) ComponentValues(u *button.Unique, name string) ([]component.UIValue, bool, error) {
	mod, entry, ok := m.owner(name)
	if !ok {
		return nil, false, nil
	}
	var (
		values []component.UIValue
		err    error
	)
	u.Read(func(b button.Button) {
		if ed, ok := mod.(ComponentEditor); ok {
			values, err = ed.ComponentValues(b, name)
			return
		}
		raw, _ := b.Raw(name)
		values = entry.UIValues(raw)
	})
	return values, true, err
}

// SetComponentValues writes edited fields back into a component on u.
// Without a ComponentEditor the merged value must satisfy the schema;
// on failure the button is left unchanged.
func (m *Manager) SetComponentValues(u *button.Unique, name string, values []component.UIValue) (bool, error) {
	mod, entry, ok := m.owner(name)
	if !ok {
		return false, nil
	}
	err := u.Update(func(b button.Button) error {
		if ed, ok := mod.(ComponentEditor); ok {
			return ed.SetComponentValues(b, name, values)
		}
		raw, _ := b.Raw(name)
		merged, err := entry.MergeUIValues(raw, values)
		if err != nil {
			return err
		}
		if err := entry.Validate(merged); err != nil {
			return err
		}
		b.SetRaw(name, merged)
		return nil
	})
	return true, err
}

// Listeners returns, in registration order, the modules that receive
// events of type t.
func (m *Manager) Listeners(t EventType) []Module {
	var out []Module
	for _, mod := range m.Modules() {
		if listensFor(mod, t) {
			out = append(out, mod)
		}
	}
	return out
}

func listensFor(mod Module, t EventType) bool {
	for _, lt := range mod.ListeningFor() {
		if lt == t || lt == EventAll {
			return true
		}
	}
	return false
}

// Dispatch offers ev to every listening module in registration order and
// returns the names of the modules it was offered to. A panicking module
// is logged and skipped.
func (m *Manager) Dispatch(ctx context.Context, ev Event) []string {
	var offered []string
	for _, mod := range m.Listeners(ev.Type) {
		offered = append(offered, mod.Name())
		m.invoke(ctx, mod, ev)
	}
	return offered
}

func (m *Manager) invoke(ctx context.Context, mod Module, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("module panicked handling event",
				"module", mod.Name(),
				"event", ev.Type,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	mod.HandleEvent(ctx, ev)
}
