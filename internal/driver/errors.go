package driver

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means a poll found nothing to read. Callers retry.
	ErrNoData = errors.New("driver: no data available")

	// ErrLostConnection means the device is gone. The session closes.
	ErrLostConnection = errors.New("driver: lost connection")

	// ErrUnknownDriver is returned for a driver name nobody registered.
	ErrUnknownDriver = errors.New("driver: unknown driver")

	// ErrDuplicateDriver is returned when a namespaced name is taken.
	ErrDuplicateDriver = errors.New("driver: driver already registered")

	// ErrKeyOutOfRange is returned for a key index above the layout.
	ErrKeyOutOfRange = errors.New("driver: key out of range")
)

// ConnectKind classifies a connection failure.
type ConnectKind int

const (
	// ConnectNotFound means the device is not reachable.
	ConnectNotFound ConnectKind = iota
	// ConnectBusy means another process or session holds the device.
	ConnectBusy
	// ConnectTransport means the transport failed while opening.
	ConnectTransport
)

func (k ConnectKind) String() string {
	switch k {
	case ConnectNotFound:
		return "not_found"
	case ConnectBusy:
		return "busy"
	case ConnectTransport:
		return "transport"
	default:
		return fmt.Sprintf("ConnectKind(%d)", int(k))
	}
}

// ConnectError is returned by Driver.Connect.
type ConnectError struct {
	Kind   ConnectKind
	Serial string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("driver: connecting %s: %s: %v", e.Serial, e.Kind, e.Err)
	}
	return fmt.Sprintf("driver: connecting %s: %s", e.Serial, e.Kind)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsConnectKind reports whether err is a *ConnectError of the given kind.
func IsConnectKind(err error, kind ConnectKind) bool {
	var ce *ConnectError
	return errors.As(err, &ce) && ce.Kind == kind
}
