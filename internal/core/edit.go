package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/component"
	"github.com/nerrad567/keygrid-core/internal/session"
	"github.com/nerrad567/keygrid-core/internal/store"
)

// buttonAt returns the session of serial and its button at key.
func (m *Manager) buttonAt(serial string, key uint8) (*session.Session, *button.Unique, error) {
	s, err := m.Session(serial)
	if err != nil {
		return nil, nil, err
	}
	u, ok := s.Button(key)
	if !ok {
		return s, nil, fmt.Errorf("%w: %s key %d", ErrButtonNotFound, serial, key)
	}
	return s, u, nil
}

// Copy puts the button at key into the shared clipboard.
func (m *Manager) Copy(serial string, key uint8) error {
	_, u, err := m.buttonAt(serial, key)
	if err != nil {
		return err
	}
	m.clipboard.Copy(u)
	return nil
}

// Paste inserts the clipboard at key. With link the same button is
// shared, otherwise a deep copy is inserted.
func (m *Manager) Paste(serial string, key uint8, link bool) error {
	s, err := m.Session(serial)
	if err != nil {
		return err
	}
	u, ok := m.clipboard.Paste(link)
	if !ok {
		return ErrClipboardEmpty
	}
	return s.InsertButton(key, u)
}

// NewButtonFromComponent creates a button at key holding one component
// with its default value.
func (m *Manager) NewButtonFromComponent(serial string, key uint8, name string) (bool, error) {
	s, err := m.Session(serial)
	if err != nil {
		return false, err
	}
	if _, ok := m.opts.Modules.Components().Lookup(name); !ok {
		return false, nil
	}
	u, err := s.NewButton(key)
	if err != nil {
		return false, err
	}
	added, err := m.opts.Modules.AddComponent(u, name)
	if err != nil {
		return false, err
	}
	s.ButtonChanged(key)
	return added, nil
}

// AddComponent adds a component to the button at key. Unknown component
// names report false without error.
func (m *Manager) AddComponent(serial string, key uint8, name string) (bool, error) {
	s, u, err := m.buttonAt(serial, key)
	if err != nil {
		return false, err
	}
	ok, err := m.opts.Modules.AddComponent(u, name)
	if ok && err == nil {
		s.ButtonChanged(key)
	}
	return ok, err
}

// RemoveComponent removes a component from the button at key.
func (m *Manager) RemoveComponent(serial string, key uint8, name string) (bool, error) {
	s, u, err := m.buttonAt(serial, key)
	if err != nil {
		return false, err
	}
	ok, err := m.opts.Modules.RemoveComponent(u, name)
	if ok && err == nil {
		s.ButtonChanged(key)
	}
	return ok, err
}

// ComponentValues returns the editable values of a component.
func (m *Manager) ComponentValues(serial string, key uint8, name string) ([]component.UIValue, bool, error) {
	_, u, err := m.buttonAt(serial, key)
	if err != nil {
		return nil, false, err
	}
	return m.opts.Modules.ComponentValues(u, name)
}

// SetComponentValues writes edited values back into a component.
func (m *Manager) SetComponentValues(serial string, key uint8, name string, values []component.UIValue) (bool, error) {
	s, u, err := m.buttonAt(serial, key)
	if err != nil {
		return false, err
	}
	ok, err := m.opts.Modules.SetComponentValues(u, name, values)
	if ok && err == nil {
		s.ButtonChanged(key)
	}
	return ok, err
}

// ListImages lists the image library of serial.
func (m *Manager) ListImages(ctx context.Context, serial string) ([]store.ImageInfo, error) {
	if _, err := m.Session(serial); err != nil {
		return nil, err
	}
	if m.opts.Images == nil {
		return nil, ErrNoImageStore
	}
	return m.opts.Images.List(ctx, serial)
}

// AddImage validates and stores an image for serial.
func (m *Manager) AddImage(ctx context.Context, serial string, data []byte) (*store.ImageInfo, error) {
	if _, err := m.Session(serial); err != nil {
		return nil, err
	}
	if m.opts.Images == nil {
		return nil, ErrNoImageStore
	}
	return m.opts.Images.Add(ctx, serial, data)
}

// RemoveImage deletes an image and redraws keys that referenced it.
func (m *Manager) RemoveImage(ctx context.Context, serial, id string) error {
	s, err := m.Session(serial)
	if err != nil {
		return err
	}
	if m.opts.Images == nil {
		return ErrNoImageStore
	}
	if err := m.opts.Images.Delete(ctx, serial, id); err != nil {
		return err
	}
	s.MarkDirty()
	return nil
}

// History returns the most recent button actions of serial.
func (m *Manager) History(ctx context.Context, serial string, limit int) ([]store.Action, error) {
	if _, err := m.Session(serial); err != nil {
		return nil, err
	}
	if m.opts.History == nil {
		return nil, ErrNoHistory
	}
	return m.opts.History.List(ctx, serial, limit)
}

// Controller drives devices on behalf of a remote source such as MQTT or
// a plugin. It satisfies the controller interfaces of those modules.
type Controller struct {
	m      *Manager
	source string
}

// Controller returns a Controller whose presses carry source.
func (m *Manager) Controller(source string) Controller {
	return Controller{m: m, source: source}
}

// Press activates key on serial.
func (c Controller) Press(serial string, key uint8) error {
	s, err := c.m.Session(serial)
	if err != nil {
		return err
	}
	ok, err := s.Press(context.Background(), key, c.source)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s key %d", ErrButtonNotFound, serial, key)
	}
	return nil
}

// SetBrightness changes the backlight of serial.
func (c Controller) SetBrightness(serial string, percent uint8) error {
	s, err := c.m.Session(serial)
	if err != nil {
		return err
	}
	s.SetBrightness(percent)
	return nil
}

// IsNotFound reports whether err means an unmanaged serial.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDeviceNotFound)
}
