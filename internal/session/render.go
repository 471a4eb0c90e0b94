package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/driver"
	"github.com/nerrad567/keygrid-core/internal/render"
)

// renderAll draws every key of the visible panel. Failures on single keys
// are logged and skipped; a lost connection aborts the pass.
func (s *Session) renderAll(l *link) error {
	layout := s.id.Layout
	if !layout.HasScreen() {
		return nil
	}

	start := time.Now()
	top := s.stack.Top()
	uploaded := 0
	for i := 0; i < layout.KeyCount(); i++ {
		key := uint8(i) // #nosec G115 -- layouts are far below 256 keys
		n, err := s.renderKey(l, top, key)
		if errors.Is(err, driver.ErrLostConnection) {
			return err
		}
		if err != nil {
			s.logger.Warn("rendering key failed", "serial", s.id.Serial, "key", key, "error", err)
			continue
		}
		uploaded += n
	}
	if err := s.evictStale(l); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.WriteRenderPass(s.id.Serial, layout.KeyCount(), uploaded, time.Since(start))
	}
	s.logger.Debug("render pass", "serial", s.id.Serial, "uploaded", uploaded)
	return nil
}

// renderKey brings one key up to date and returns how many images it
// uploaded (0 or 1). A key whose content changed on the same panel marks
// its previous image stale.
func (s *Session) renderKey(l *link, top *button.Panel, key uint8) (int, error) {
	size := s.id.Layout.ImageSize
	if size == 0 {
		return 0, nil
	}

	value := rendererValue(top, key)
	old, hadOld := l.shown[key]
	samePanel := hadOld && l.shownOn[key] == top

	if value == nil {
		if !hadOld {
			return 0, nil
		}
		if err := l.dev.ClearKey(key); err != nil {
			return 0, err
		}
		if samePanel {
			l.stale[old] = struct{}{}
		}
		delete(l.shown, key)
		delete(l.shownOn, key)
		return 0, nil
	}

	hash, err := render.Key(value, size, s.images)
	if err != nil {
		return 0, fmt.Errorf("hashing key %d: %w", key, err)
	}
	if hadOld && old == hash {
		l.shownOn[key] = top
		return 0, nil
	}

	uploaded := 0
	if !l.dev.ContainsImage(hash) {
		img, err := render.DrawValue(value, size, s.images)
		if err != nil {
			return 0, fmt.Errorf("drawing key %d: %w", key, err)
		}
		if err := l.dev.AddImage(hash, img); err != nil {
			return 0, err
		}
		uploaded = 1
	}
	l.cached[hash] = struct{}{}

	if err := l.dev.SetImage(key, hash); err != nil {
		return uploaded, err
	}
	if samePanel {
		l.stale[old] = struct{}{}
	}
	l.shown[key] = hash
	l.shownOn[key] = top
	return uploaded, nil
}

func rendererValue(p *button.Panel, key uint8) json.RawMessage {
	var value json.RawMessage
	if u, ok := p.Button(key); ok {
		u.Read(func(b button.Button) {
			if raw, ok := b.Raw(render.ComponentName); ok {
				value = append(json.RawMessage(nil), raw...)
			}
		})
	}
	return value
}

// evictStale removes stale images that no key shows and no panel on the
// stack would draw. Navigation alone never makes an image stale, so images
// of panels that were pushed and popped stay on the device.
func (s *Session) evictStale(l *link) error {
	if len(l.stale) == 0 {
		return nil
	}
	inUse := make(map[string]struct{}, len(l.shown))
	for _, h := range l.shown {
		inUse[h] = struct{}{}
	}
	size := s.id.Layout.ImageSize
	for _, p := range s.stack.Panels() {
		for _, key := range p.Keys() {
			value := rendererValue(p, key)
			if value == nil {
				continue
			}
			if h, err := render.Key(value, size, s.images); err == nil {
				inUse[h] = struct{}{}
			}
		}
	}

	for h := range l.stale {
		delete(l.stale, h)
		if _, ok := inUse[h]; ok {
			continue
		}
		if _, ok := l.cached[h]; !ok {
			continue
		}
		if err := l.dev.RemoveImage(h); err != nil {
			return err
		}
		delete(l.cached, h)
	}
	return nil
}
