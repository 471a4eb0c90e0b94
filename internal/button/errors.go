package button

import (
	"errors"
	"fmt"
)

var (
	// ErrComponentAbsent is returned when a button has no value for a component.
	ErrComponentAbsent = errors.New("button: component not present")

	// ErrNoButton is returned when a key holds no button.
	ErrNoButton = errors.New("button: no button at key")
)

// ParseError reports a component value that does not decode into the type
// its consumer expects. Consumers treat the component as absent.
type ParseError struct {
	Component string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("button: parsing component %q: %v", e.Component, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
