package builtin

import (
	"context"
	"encoding/json"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/component"
	"github.com/nerrad567/keygrid-core/internal/module"
	"github.com/nerrad567/keygrid-core/internal/render"
)

// Name is the name the core module registers under.
const Name = "core"

// Component names owned by the core module.
const (
	ComponentRenderer  = render.ComponentName
	ComponentPanelLink = "panel_link"
	ComponentPanelBack = "panel_back"
)

// PanelLink is the value of the panel_link component.
type PanelLink struct {
	Panel button.RawPanel `json:"panel"`
}

const panelLinkSchema = `{
	"type": "object",
	"properties": {
		"panel": {
			"type": "object",
			"title": "Panel",
			"properties": {
				"display_name": {"type": "string"},
				"buttons": {"type": "object"}
			},
			"required": ["display_name"]
		}
	},
	"required": ["panel"]
}`

const panelBackSchema = `{"type": "object"}`

// Logger defines the logging interface used by the core module.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Core is the built-in core module.
type Core struct {
	module.Base
	version string
	logger  Logger
}

// New returns the core module reporting version as its own version.
func New(version string) *Core {
	return &Core{version: version, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (c *Core) SetLogger(logger Logger) {
	c.logger = logger
}

// Name implements module.Module.
func (c *Core) Name() string { return Name }

// Metadata implements module.Module.
func (c *Core) Metadata() module.Metadata {
	return module.Metadata{
		Name:         Name,
		Author:       "Keygrid",
		Description:  "Rendering and panel navigation",
		Version:      c.version,
		UsedFeatures: module.HostFeatures,
	}
}

// Components implements module.Module.
func (c *Core) Components() map[string]component.Definition {
	return map[string]component.Definition{
		ComponentRenderer: {
			DisplayName: "Appearance",
			Description: "Background colour, image and label",
			Default:     json.RawMessage(`{}`),
			Schema:      json.RawMessage(render.Schema),
		},
		ComponentPanelLink: {
			DisplayName: "Open panel",
			Description: "Opens a sub-panel when pressed",
			Default:     json.RawMessage(`{"panel":{"display_name":"","buttons":{}}}`),
			Schema:      json.RawMessage(panelLinkSchema),
		},
		ComponentPanelBack: {
			DisplayName: "Back",
			Description: "Returns to the previous panel when pressed",
			Default:     json.RawMessage(`{}`),
			Schema:      json.RawMessage(panelBackSchema),
		},
	}
}

// ListeningFor implements module.Module.
func (c *Core) ListeningFor() []module.EventType {
	return []module.EventType{module.EventButtonAction}
}

// HandleEvent implements module.Module.
func (c *Core) HandleEvent(_ context.Context, ev module.Event) {
	if ev.Type != module.EventButtonAction || ev.Unique == nil || ev.Device == nil {
		return
	}

	// Work from a snapshot: the button lock must not be held while the
	// stack lock is taken.
	b := ev.Unique.Snapshot()

	if b.Has(ComponentPanelLink) {
		link, err := button.Get[PanelLink](b, ComponentPanelLink)
		if err != nil {
			c.logger.Warn("ignoring unreadable panel link", "serial", ev.Device.Serial(), "error", err)
			return
		}
		ev.Device.Push(LinkedPanel(ev.Unique, link.Panel))
		return
	}

	if b.Has(ComponentPanelBack) {
		if !ev.Device.Pop() {
			c.logger.Debug("back pressed on root panel", "serial", ev.Device.Serial())
		}
	}
}

// LinkedPanel builds a live panel from raw whose commit hook stores its
// contents back into the panel_link component of owner.
func LinkedPanel(owner *button.Unique, raw button.RawPanel) *button.Panel {
	p := button.NewPanel(raw)
	p.SetCommitHook(func(committed button.RawPanel) {
		_ = owner.Update(func(b button.Button) error { //nolint:errcheck // PanelLink always encodes
			return b.Set(ComponentPanelLink, PanelLink{Panel: committed})
		})
	})
	return p
}
