package component

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Definition describes one component type.
type Definition struct {
	// DisplayName is shown to users in place of the component name.
	DisplayName string `json:"display_name" toml:"display_name"`

	// Description is a one-line explanation of what the component does.
	Description string `json:"description,omitempty" toml:"description"`

	// Default is the value written to a button when the component is added.
	Default json.RawMessage `json:"default,omitempty" toml:"-"`

	// Schema is a JSON Schema (draft 2020-12) for the component value.
	// Empty means any value is accepted.
	Schema json.RawMessage `json:"schema,omitempty" toml:"-"`
}

// Entry is a registered component.
type Entry struct {
	Name       string     `json:"name"`
	Module     string     `json:"module"`
	Definition Definition `json:"definition"`

	schema *jsonschema.Schema
}

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Registry maps component names to their owning module and definition.
//
// All public methods are thread-safe. The lock is never held while calling
// out of the package.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	logger  Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register adds the components of a module. Either every name is
// registered or, on the first conflict or bad schema, none are.
//
// Parameters:
//   - module: Name of the owning module
//   - defs: Component name to definition
//
// Returns:
//   - error: ErrDuplicateComponent or ErrInvalidSchema, wrapped with the name
func (r *Registry) Register(module string, defs map[string]Definition) error {
	compiled := make(map[string]*Entry, len(defs))
	for name, def := range defs {
		schema, err := compileSchema(name, def.Schema)
		if err != nil {
			return err
		}
		compiled[name] = &Entry{Name: name, Module: module, Definition: def, schema: schema}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range compiled {
		if existing, ok := r.entries[name]; ok {
			return fmt.Errorf("%w: %q owned by module %q", ErrDuplicateComponent, name, existing.Module)
		}
	}
	for name, e := range compiled {
		r.entries[name] = e
	}
	r.logger.Debug("components registered", "module", module, "count", len(compiled))
	return nil
}

// Unregister removes every component owned by module.
func (r *Registry) Unregister(module string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, e := range r.entries {
		if e.Module == module {
			delete(r.entries, name)
		}
	}
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Owner returns the module owning name, or "" if unknown.
func (r *Registry) Owner(name string) string {
	e, ok := r.Lookup(name)
	if !ok {
		return ""
	}
	return e.Module
}

// List returns all entries sorted by module, then component name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Validate checks value against the schema registered for name.
// Components without a schema accept any well-formed JSON.
func (r *Registry) Validate(name string, value json.RawMessage) error {
	e, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownComponent, name)
	}
	return e.Validate(value)
}

// Validate checks value against the entry's schema.
func (e Entry) Validate(value json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(value, &doc); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidValue, e.Name, err)
	}
	if e.schema == nil {
		return nil
	}
	if err := e.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidValue, e.Name, err)
	}
	return nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	url := "component-" + name + ".json"

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchema, name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchema, name, err)
	}
	return schema, nil
}
