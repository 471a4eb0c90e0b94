package session

import "errors"

var (
	// ErrNotLive is returned for device I/O requested while no device is attached.
	ErrNotLive = errors.New("session: not live")

	// ErrAlreadyAttached is returned by Attach while Connecting or Live.
	ErrAlreadyAttached = errors.New("session: already attached")

	// ErrClosed is returned by Attach once the session has been closed.
	ErrClosed = errors.New("session: closed")

	// ErrKeyOutOfRange is returned for a key beyond the device layout.
	ErrKeyOutOfRange = errors.New("session: key out of range")

	// ErrConfig wraps failures to read or write the device config.
	ErrConfig = errors.New("session: device config")

	// ErrDriver wraps unexpected driver errors that end a session.
	ErrDriver = errors.New("session: driver error")

	// ErrInvalidOptions is returned by New for unusable options.
	ErrInvalidOptions = errors.New("session: invalid options")
)
