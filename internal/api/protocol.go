package api

import (
	"encoding/json"
	"errors"

	"github.com/nerrad567/keygrid-core/internal/component"
	"github.com/nerrad567/keygrid-core/internal/core"
	"github.com/nerrad567/keygrid-core/internal/devconfig"
	"github.com/nerrad567/keygrid-core/internal/render"
	"github.com/nerrad567/keygrid-core/internal/session"
	"github.com/nerrad567/keygrid-core/internal/store"
)

// Request is one control protocol message from a client.
type Request struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response answers a Request. Type and ID echo the request.
type Response struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Result  Result `json:"result"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Result is the typed outcome of a request.
type Result string

// Results shared by many requests.
const (
	ResultOK                Result = "Ok"
	ResultBadRequest        Result = "BadRequest"
	ResultDeviceNotFound    Result = "DeviceNotFound"
	ResultButtonNotFound    Result = "ButtonNotFound"
	ResultComponentNotFound Result = "ComponentNotFound"
	ResultKeyOutOfRange     Result = "KeyOutOfRange"
	ResultNotLive           Result = "NotLive"
	ResultConfigError       Result = "ConfigError"
	ResultInvalidImage      Result = "InvalidImage"
	ResultImageNotFound     Result = "ImageNotFound"
	ResultInvalidValue      Result = "InvalidValue"
	ResultClipboardEmpty    Result = "ClipboardEmpty"
	ResultUnavailable       Result = "Unavailable"
	ResultUnsupported       Result = "Unsupported"
	ResultError             Result = "Error"

	ResultReloaded Result = "Reloaded"
	ResultSaved    Result = "Saved"
)

// TypeEvent is the type of pushed event messages.
const TypeEvent = "event"

// EventMessage carries a pushed session event.
type EventMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// errBadRequest marks undecodable request data.
var errBadRequest = errors.New("api: bad request")

// resultFor maps an error from the layers below onto a Result.
func resultFor(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, errBadRequest):
		return ResultBadRequest
	case errors.Is(err, core.ErrDeviceNotFound):
		return ResultDeviceNotFound
	case errors.Is(err, core.ErrButtonNotFound):
		return ResultButtonNotFound
	case errors.Is(err, session.ErrKeyOutOfRange):
		return ResultKeyOutOfRange
	case errors.Is(err, session.ErrNotLive):
		return ResultNotLive
	case errors.Is(err, session.ErrConfig),
		errors.Is(err, devconfig.ErrNotFound),
		errors.Is(err, devconfig.ErrInvalidConfig):
		return ResultConfigError
	case errors.Is(err, render.ErrInvalidImage):
		return ResultInvalidImage
	case errors.Is(err, store.ErrImageNotFound):
		return ResultImageNotFound
	case errors.Is(err, component.ErrInvalidValue):
		return ResultInvalidValue
	case errors.Is(err, core.ErrClipboardEmpty):
		return ResultClipboardEmpty
	case errors.Is(err, core.ErrNoImageStore), errors.Is(err, core.ErrNoHistory):
		return ResultUnavailable
	default:
		return ResultError
	}
}
