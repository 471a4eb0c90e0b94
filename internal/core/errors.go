package core

import "errors"

var (
	// ErrDeviceNotFound is returned for a serial the manager does not manage.
	ErrDeviceNotFound = errors.New("core: device not found")

	// ErrButtonNotFound is returned when the visible panel has no button at a key.
	ErrButtonNotFound = errors.New("core: button not found")

	// ErrClipboardEmpty is returned by Paste before anything was copied.
	ErrClipboardEmpty = errors.New("core: clipboard empty")

	// ErrNoImageStore is returned by image requests when no store is configured.
	ErrNoImageStore = errors.New("core: image store not configured")

	// ErrNoHistory is returned by history requests when no store is configured.
	ErrNoHistory = errors.New("core: action history not configured")

	// ErrInvalidOptions is returned by New for unusable options.
	ErrInvalidOptions = errors.New("core: invalid options")
)
