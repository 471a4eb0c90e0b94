package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/devconfig"
	"github.com/nerrad567/keygrid-core/internal/module"
)

func (s *Session) configFor(root button.RawPanel) *devconfig.DeviceConfig {
	return &devconfig.DeviceConfig{
		VendorID:   s.id.VendorID,
		ProductID:  s.id.ProductID,
		Serial:     s.id.Serial,
		Driver:     s.id.Driver,
		Brightness: s.Brightness(),
		Layout:     root,
	}
}

func (s *Session) apply(cfg *devconfig.DeviceConfig) {
	s.brightness.Store(uint32(clampPercent(cfg.Brightness)))
	s.stack.Reset(button.NewPanel(cfg.Layout))
}

// Reload replaces the stack and brightness with the persisted config.
// Unsaved edits are lost. The error wraps devconfig.ErrNotFound when the
// device has no config file.
func (s *Session) Reload(ctx context.Context) error {
	cfg, err := s.configs.Load(s.id.Serial)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	s.apply(cfg)

	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()

	if err := s.Enqueue(ctx, Brightness(cfg.Brightness)); err != nil && !errors.Is(err, ErrNotLive) {
		return err
	}
	s.emit(ctx, module.Event{Type: module.EventStackReset, Panel: s.stack.Root().DisplayName()})
	s.MarkDirty()
	return nil
}

// Save commits the stack, writing edits in pushed panels back into the
// buttons that opened them, and persists the result.
func (s *Session) Save() error {
	root := s.stack.Commit()
	if err := s.configs.Save(s.configFor(root)); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}
