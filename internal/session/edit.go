package session

import (
	"context"
	"fmt"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/module"
)

// Push implements module.DeviceHandle.
func (s *Session) Push(p *button.Panel) {
	s.stack.Push(p)
	s.navigated(module.EventPanelPushed, p)
}

// Pop implements module.DeviceHandle.
func (s *Session) Pop() bool {
	if !s.stack.Pop() {
		return false
	}
	s.navigated(module.EventPanelPopped, s.stack.Top())
	return true
}

// ForcePop pops even the root, leaving a blank root behind.
func (s *Session) ForcePop() {
	s.stack.ForcePop()
	s.navigated(module.EventPanelPopped, s.stack.Top())
}

// Replace swaps the visible panel.
func (s *Session) Replace(p *button.Panel) {
	s.stack.Replace(p)
	s.navigated(module.EventPanelReplaced, p)
}

// ResetStack makes root the only panel.
func (s *Session) ResetStack(root *button.Panel) {
	s.stack.Reset(root)
	s.navigated(module.EventStackReset, root)
}

func (s *Session) navigated(typ module.EventType, p *button.Panel) {
	s.emit(context.Background(), module.Event{Type: typ, Panel: p.DisplayName()})
	s.MarkDirty()
}

func (s *Session) checkKey(key uint8) error {
	if !s.id.Layout.ValidKey(key) {
		return fmt.Errorf("%w: %d", ErrKeyOutOfRange, key)
	}
	return nil
}

// Button returns the button at key on the visible panel.
func (s *Session) Button(key uint8) (*button.Unique, bool) {
	return s.stack.Top().Button(key)
}

// SetButton stores b at key on the visible panel. An existing button has
// its contents replaced, so linked copies follow.
func (s *Session) SetButton(key uint8, b button.Button) error {
	if err := s.checkKey(key); err != nil {
		return err
	}
	top := s.stack.Top()
	if u, ok := top.Button(key); ok {
		u.Replace(b)
		s.buttonEvent(module.EventButtonUpdated, key, u)
		return nil
	}
	u := button.NewUnique(b)
	top.SetButton(key, u)
	s.buttonEvent(module.EventButtonAdded, key, u)
	return nil
}

// InsertButton places u at key, replacing whatever was there.
func (s *Session) InsertButton(key uint8, u *button.Unique) error {
	if err := s.checkKey(key); err != nil {
		return err
	}
	s.stack.Top().SetButton(key, u)
	s.buttonEvent(module.EventButtonAdded, key, u)
	return nil
}

// NewButton places an empty button at key and returns it.
func (s *Session) NewButton(key uint8) (*button.Unique, error) {
	u := button.NewUnique(button.New())
	if err := s.InsertButton(key, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ClearButton removes the button at key. It reports whether one existed.
func (s *Session) ClearButton(key uint8) (bool, error) {
	if err := s.checkKey(key); err != nil {
		return false, err
	}
	if !s.stack.Top().ClearButton(key) {
		return false, nil
	}
	s.emit(context.Background(), module.Event{Type: module.EventButtonDeleted, Key: module.KeyPtr(key)})
	s.MarkDirty()
	return true, nil
}

// ButtonChanged announces an in-place edit of the button at key.
func (s *Session) ButtonChanged(key uint8) {
	if u, ok := s.Button(key); ok {
		s.buttonEvent(module.EventButtonUpdated, key, u)
	}
}

func (s *Session) buttonEvent(typ module.EventType, key uint8, u *button.Unique) {
	s.emit(context.Background(), module.Event{
		Type:   typ,
		Key:    module.KeyPtr(key),
		Button: u.Snapshot(),
	})
	s.MarkDirty()
}
