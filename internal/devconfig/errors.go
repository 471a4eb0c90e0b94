package devconfig

import "errors"

var (
	// ErrNotFound is returned when a serial has no active config file.
	ErrNotFound = errors.New("devconfig: config not found")

	// ErrNotDisabled is returned by Restore when there is nothing to restore.
	ErrNotDisabled = errors.New("devconfig: config not disabled")

	// ErrInvalidSerial is returned for serials that cannot be file names.
	ErrInvalidSerial = errors.New("devconfig: invalid serial")

	// ErrInvalidConfig is returned for files that do not parse.
	ErrInvalidConfig = errors.New("devconfig: invalid config")
)
