package relay

import "errors"

var (
	// ErrNoClient is returned by New without an MQTT client.
	ErrNoClient = errors.New("relay: MQTT client is required")

	// ErrNoController is returned by New without a device controller.
	ErrNoController = errors.New("relay: controller is required")

	// ErrUnknownCommand is returned for unsupported command topics.
	ErrUnknownCommand = errors.New("relay: unknown command")
)
