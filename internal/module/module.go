package module

import (
	"context"
	"time"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/component"
)

// EventType names an event.
type EventType string

// Event types emitted by Keygrid.
const (
	EventDeviceConnected    EventType = "device_connected"
	EventDeviceDisconnected EventType = "device_disconnected"
	EventButtonDown         EventType = "button_down"
	EventButtonUp           EventType = "button_up"
	EventButtonAction       EventType = "button_action"
	EventButtonAdded        EventType = "button_added"
	EventButtonUpdated      EventType = "button_updated"
	EventButtonDeleted      EventType = "button_deleted"
	EventPanelPushed        EventType = "panel_pushed"
	EventPanelPopped        EventType = "panel_popped"
	EventPanelReplaced      EventType = "panel_replaced"
	EventStackReset         EventType = "stack_reset"

	// EventAll in ListeningFor subscribes to every event type.
	EventAll EventType = "*"
)

// DeviceHandle is the part of a device session a module may drive.
type DeviceHandle interface {
	Serial() string
	Stack() *button.Stack

	// Push shows p and redraws.
	Push(p *button.Panel)

	// Pop returns to the previous panel; false at the root.
	Pop() bool

	// MarkDirty schedules a redraw of the visible panel.
	MarkDirty()

	SetBrightness(percent uint8)
}

// Event is delivered to modules and to control protocol subscribers.
type Event struct {
	Type   EventType `json:"type"`
	Serial string    `json:"serial,omitempty"`
	Key    *uint8    `json:"key,omitempty"`

	// Panel is the display name of the panel involved, if any.
	Panel string `json:"panel,omitempty"`

	// Button is a snapshot of the button involved, if any.
	Button button.Button `json:"button,omitempty"`

	// Source tells what triggered a button_action: "device", "socket",
	// "mqtt" or "plugin".
	Source string `json:"source,omitempty"`

	Time time.Time `json:"time"`

	// Unique is the live button for button_action.
	Unique *button.Unique `json:"-"`

	// Device is the originating session; nil for events without one.
	Device DeviceHandle `json:"-"`
}

// KeyPtr returns a pointer to k for Event.Key.
func KeyPtr(k uint8) *uint8 {
	return &k
}

// Metadata describes a module.
type Metadata struct {
	Name         string    `json:"name"`
	Author       string    `json:"author,omitempty"`
	Description  string    `json:"description,omitempty"`
	Version      string    `json:"version,omitempty"`
	UsedFeatures []Feature `json:"used_features"`
}

// Module is an extension unit.
type Module interface {
	Name() string
	Metadata() Metadata

	// Components returns the component types the module owns.
	Components() map[string]component.Definition

	// ListeningFor returns the event types the module handles.
	ListeningFor() []EventType

	// HandleEvent is called for each event the module listens for. It must
	// not block; long work belongs on its own goroutine.
	HandleEvent(ctx context.Context, ev Event)
}

// ComponentEditor is implemented by modules that customise component
// editing. Modules without it get the registry defaults: the definition's
// default value on add, deletion on remove, and schema-driven UI values.
//
// Each method is called with the button's write (or read) lock held and
// must not touch any Stack.
type ComponentEditor interface {
	AddComponent(b button.Button, name string) error
	RemoveComponent(b button.Button, name string) error
	ComponentValues(b button.Button, name string) ([]component.UIValue, error)
	SetComponentValues(b button.Button, name string, values []component.UIValue) error
}

// Base provides empty implementations of the optional parts of Module.
// Embed it and override what is needed.
type Base struct{}

// Components implements Module.
func (Base) Components() map[string]component.Definition { return nil }

// ListeningFor implements Module.
func (Base) ListeningFor() []EventType { return nil }

// HandleEvent implements Module.
func (Base) HandleEvent(context.Context, Event) {}
