package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
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

// Manager owns the registered drivers. Drivers are registered at startup
// and looked up by namespaced name afterwards.
type Manager struct {
	mu      sync.RWMutex
	drivers map[string]Driver
	order   []string
	logger  Logger
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{
		drivers: make(map[string]Driver),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// NamespaceBuiltin is the namespace of drivers compiled into the daemon.
const NamespaceBuiltin = "builtin"

// QualifiedName joins a namespace and a driver's local name.
func QualifiedName(namespace, name string) string {
	return namespace + "/" + name
}

// Register adds d under namespace (e.g. "builtin" or a plugin name).
//
// Returns:
//   - string: The namespaced name, e.g. "builtin/virtual"
//   - error: ErrDuplicateDriver if the name is taken
func (m *Manager) Register(namespace string, d Driver) (string, error) {
	if namespace == "" || strings.Contains(namespace, "/") {
		return "", fmt.Errorf("driver: invalid namespace %q", namespace)
	}
	name := QualifiedName(namespace, d.Name())

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[name]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateDriver, name)
	}
	m.drivers[name] = d
	m.order = append(m.order, name)
	m.logger.Info("driver registered", "driver", name)
	return name, nil
}

// Get returns the driver with the given namespaced name.
func (m *Manager) Get(name string) (Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, name)
	}
	return d, nil
}

// Names returns the namespaced driver names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Discover enumerates every driver and upgrades the results to
// Identifiers. A driver that fails to enumerate is logged and skipped.
// Results are sorted by driver then serial.
func (m *Manager) Discover(ctx context.Context) []Identifier {
	var out []Identifier
	for _, name := range m.Names() {
		d, err := m.Get(name)
		if err != nil {
			continue
		}
		metas, err := d.Enumerate(ctx)
		if err != nil {
			m.logger.Warn("driver enumeration failed", "driver", name, "error", err)
			continue
		}
		for _, meta := range metas {
			id, err := m.upgrade(name, d, meta)
			if err != nil {
				m.logger.Warn("discarding discovered device", "driver", name, "serial", meta.Serial, "error", err)
				continue
			}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Driver != out[j].Driver {
			return out[i].Driver < out[j].Driver
		}
		return out[i].Serial < out[j].Serial
	})
	return out
}

// Find discovers devices and returns the one with serial.
func (m *Manager) Find(ctx context.Context, serial string) (Identifier, bool) {
	for _, id := range m.Discover(ctx) {
		if id.Serial == serial {
			return id, true
		}
	}
	return Identifier{}, false
}

// Connect opens the device described by id through its driver.
func (m *Manager) Connect(ctx context.Context, id Identifier) (Device, error) {
	d, err := m.Get(id.Driver)
	if err != nil {
		return nil, err
	}
	return d.Connect(ctx, id.Serial)
}

func (m *Manager) upgrade(name string, d Driver, meta Metadata) (Identifier, error) {
	if meta.Serial == "" {
		return Identifier{}, fmt.Errorf("empty serial")
	}
	layout, err := d.Layout(meta)
	if err != nil {
		return Identifier{}, fmt.Errorf("resolving layout: %w", err)
	}
	if layout.KeyCount() == 0 {
		return Identifier{}, fmt.Errorf("layout has no inputs")
	}
	if layout.KeyCount() > 256 {
		return Identifier{}, fmt.Errorf("layout has %d inputs, at most 256 supported", layout.KeyCount())
	}
	return Identifier{
		Driver:      name,
		Serial:      meta.Serial,
		Description: meta.Description,
		VendorID:    meta.VendorID,
		ProductID:   meta.ProductID,
		Layout:      layout,
	}, nil
}
