// Package influxdb provides InfluxDB connectivity for Keygrid Core.
//
// It records time-series telemetry about the device fleet: button presses,
// session state transitions and render pass statistics. Writes are
// non-blocking and batched by the underlying client.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteButtonPress("CL12345", 7, 2)
//
// All write helpers are no-ops on a nil or closed client.
package influxdb
