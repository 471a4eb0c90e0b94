package module

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateModule is returned when a module name is already registered.
	ErrDuplicateModule = errors.New("module: already registered")

	// ErrInvalidModule is returned for a module without a name.
	ErrInvalidModule = errors.New("module: invalid module")

	// ErrUnknownModule is returned for a name nobody registered.
	ErrUnknownModule = errors.New("module: unknown module")
)

// Reason classifies a compatibility failure.
type Reason string

const (
	// ReasonVersionMismatch means a known feature at a different version.
	ReasonVersionMismatch Reason = "version_mismatch"

	// ReasonTooNew means a feature the host does not know.
	ReasonTooNew Reason = "too_new"
)

// CompatibilityError rejects a module at load time.
type CompatibilityError struct {
	Module  string
	Feature string
	Wanted  string
	Have    string
	Reason  Reason
}

func (e *CompatibilityError) Error() string {
	if e.Reason == ReasonTooNew {
		return fmt.Sprintf("module %q: feature %q (%s) not supported by host", e.Module, e.Feature, e.Wanted)
	}
	return fmt.Sprintf("module %q: feature %q wants %s, host has %s", e.Module, e.Feature, e.Wanted, e.Have)
}
