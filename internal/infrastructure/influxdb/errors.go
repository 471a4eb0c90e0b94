package influxdb

import "errors"

var (
	// ErrNotConnected is returned by writes after Close or before a
	// successful ping.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps the error from the start-up ping.
	ErrConnectionFailed = errors.New("influxdb: start-up ping failed")

	// ErrDisabled is returned by Connect when telemetry is switched off.
	ErrDisabled = errors.New("influxdb: telemetry disabled")
)
