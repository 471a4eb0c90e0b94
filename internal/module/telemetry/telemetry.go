// Package telemetry implements the telemetry module, which records button
// presses and device lifecycle transitions as time-series points.
package telemetry

import (
	"context"

	"github.com/nerrad567/keygrid-core/internal/module"
)

// Name is the name the module registers under.
const Name = "telemetry"

// Session states recorded for lifecycle events.
const (
	StateLive   = "live"
	StateClosed = "closed"
)

// Writer receives points. *influxdb.Client satisfies it.
type Writer interface {
	WriteButtonPress(serial string, key uint8, components int)
	WriteSessionState(serial, state string)
}

// Telemetry is the telemetry module.
type Telemetry struct {
	module.Base
	w       Writer
	version string
}

// New returns the module writing to w.
func New(w Writer, version string) *Telemetry {
	return &Telemetry{w: w, version: version}
}

// Name implements module.Module.
func (t *Telemetry) Name() string { return Name }

// Metadata implements module.Module.
func (t *Telemetry) Metadata() module.Metadata {
	return module.Metadata{
		Name:        Name,
		Author:      "Keygrid",
		Description: "Writes presses and lifecycle points to InfluxDB",
		Version:     t.version,
		UsedFeatures: module.DeclaredFeatures(
			module.FeatureCore, module.FeatureModuleAPI, module.FeatureEvents,
		),
	}
}

// ListeningFor implements module.Module.
func (t *Telemetry) ListeningFor() []module.EventType {
	return []module.EventType{
		module.EventButtonAction,
		module.EventDeviceConnected,
		module.EventDeviceDisconnected,
	}
}

// HandleEvent implements module.Module. Writes are batched by the client
// and never block.
func (t *Telemetry) HandleEvent(_ context.Context, ev module.Event) {
	switch ev.Type {
	case module.EventButtonAction:
		if ev.Key == nil {
			return
		}
		var n int
		if ev.Unique != nil {
			n = len(ev.Unique.Snapshot())
		}
		t.w.WriteButtonPress(ev.Serial, *ev.Key, n)
	case module.EventDeviceConnected:
		t.w.WriteSessionState(ev.Serial, StateLive)
	case module.EventDeviceDisconnected:
		t.w.WriteSessionState(ev.Serial, StateClosed)
	}
}
