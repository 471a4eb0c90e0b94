package core

import (
	"context"
	"time"

	"github.com/nerrad567/keygrid-core/internal/module"
	"github.com/nerrad567/keygrid-core/internal/store"
)

// Emit implements session.Sink. Modules see the event first, in
// registration order; hub subscribers see it afterwards.
func (m *Manager) Emit(ctx context.Context, ev module.Event) []string {
	offered := m.opts.Modules.Dispatch(ctx, ev)
	m.hub.Publish(ev)

	if ev.Type == module.EventButtonAction && m.opts.History != nil && ev.Key != nil {
		m.record(ctx, ev, offered)
	}
	return offered
}

func (m *Manager) record(ctx context.Context, ev module.Event, offered []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	a := &store.Action{
		Serial:     ev.Serial,
		Key:        *ev.Key,
		Source:     ev.Source,
		Components: ev.Button.Components(),
		Modules:    offered,
		OccurredAt: ev.Time,
	}
	if err := m.opts.History.Record(ctx, a); err != nil {
		m.logger.Warn("recording button action", "serial", ev.Serial, "error", err)
	}
}
