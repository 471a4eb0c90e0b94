package component

import "errors"

var (
	// ErrUnknownComponent is returned when no module registered the name.
	ErrUnknownComponent = errors.New("component: unknown component")

	// ErrDuplicateComponent is returned when a name is already registered.
	ErrDuplicateComponent = errors.New("component: already registered")

	// ErrInvalidSchema is returned when a definition's schema does not compile.
	ErrInvalidSchema = errors.New("component: invalid schema")

	// ErrInvalidValue is returned when a value fails schema validation.
	ErrInvalidValue = errors.New("component: value does not match schema")
)
