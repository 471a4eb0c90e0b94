package external

import "errors"

var (
	// ErrInvalidManifest is returned for manifests missing required fields.
	ErrInvalidManifest = errors.New("external: invalid manifest")

	// ErrTimeout is returned when a plugin does not answer in time.
	ErrTimeout = errors.New("external: request timed out")

	// ErrPluginError wraps an error reported by the plugin.
	ErrPluginError = errors.New("external: plugin error")

	// ErrStopped is returned for requests to a stopped plugin.
	ErrStopped = errors.New("external: plugin stopped")
)
