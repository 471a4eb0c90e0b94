package store

import "errors"

var (
	// ErrImageNotFound is returned when an image id is unknown for a device.
	ErrImageNotFound = errors.New("store: image not found")
)
