package external

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/nerrad567/keygrid-core/internal/component"
	"github.com/nerrad567/keygrid-core/internal/module"
)

// ManifestFile is the manifest name inside a plugin directory.
const ManifestFile = "plugin.toml"

// Manifest describes an external plugin.
type Manifest struct {
	Name         string                       `toml:"name"`
	Version      string                       `toml:"version"`
	Author       string                       `toml:"author"`
	Description  string                       `toml:"description"`
	Command      string                       `toml:"command"`
	Args         []string                     `toml:"args"`
	Env          []string                     `toml:"env"`
	Features     []module.Feature             `toml:"features"`
	ListeningFor []string                     `toml:"listening_for"`
	CustomEditor bool                         `toml:"custom_editor"`
	Components   map[string]ComponentManifest `toml:"components"`

	// Dir is the directory the manifest was read from.
	Dir string `toml:"-"`
}

// ComponentManifest declares one component. Default and Schema hold JSON.
type ComponentManifest struct {
	DisplayName string `toml:"display_name"`
	Description string `toml:"description"`
	Default     string `toml:"default"`
	Schema      string `toml:"schema"`
}

// ReadManifest loads and validates dir/plugin.toml.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the configured plugins directory
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, path, err)
	}
	m.Dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks required fields and that component JSON is well formed.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidManifest)
	}
	if m.Command == "" {
		return fmt.Errorf("%w: %s: command is required", ErrInvalidManifest, m.Name)
	}
	for name, c := range m.Components {
		if c.Default != "" && !json.Valid([]byte(c.Default)) {
			return fmt.Errorf("%w: %s: component %q: default is not JSON", ErrInvalidManifest, m.Name, name)
		}
		if c.Schema != "" && !json.Valid([]byte(c.Schema)) {
			return fmt.Errorf("%w: %s: component %q: schema is not JSON", ErrInvalidManifest, m.Name, name)
		}
	}
	return nil
}

// Binary returns the command resolved against the plugin directory.
func (m *Manifest) Binary() string {
	if filepath.IsAbs(m.Command) {
		return m.Command
	}
	return filepath.Join(m.Dir, m.Command)
}

// Metadata converts the manifest into module metadata.
func (m *Manifest) Metadata() module.Metadata {
	return module.Metadata{
		Name:         m.Name,
		Author:       m.Author,
		Description:  m.Description,
		Version:      m.Version,
		UsedFeatures: m.Features,
	}
}

// Definitions converts the declared components.
func (m *Manifest) Definitions() map[string]component.Definition {
	out := make(map[string]component.Definition, len(m.Components))
	for name, c := range m.Components {
		def := component.Definition{DisplayName: c.DisplayName, Description: c.Description}
		if c.Default != "" {
			def.Default = json.RawMessage(c.Default)
		}
		if c.Schema != "" {
			def.Schema = json.RawMessage(c.Schema)
		}
		out[name] = def
	}
	return out
}

// EventTypes converts listening_for.
func (m *Manifest) EventTypes() []module.EventType {
	out := make([]module.EventType, 0, len(m.ListeningFor))
	for _, t := range m.ListeningFor {
		out = append(out, module.EventType(t))
	}
	return out
}
