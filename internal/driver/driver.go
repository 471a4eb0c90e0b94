package driver

import (
	"context"
	"image"
)

// InputType is the kind of physical input at a layout position.
type InputType string

const (
	InputButton       InputType = "button"
	InputScreenButton InputType = "screen_button"
)

// Input is one entry of a layout.
type Input struct {
	Index uint8     `json:"index"`
	Row   int       `json:"row"`
	Col   int       `json:"col"`
	Type  InputType `json:"type"`
}

// Layout is the static input geometry of a device model.
type Layout struct {
	// Rows holds the number of keys in each row, top to bottom.
	Rows []int `json:"rows"`

	// ImageSize is the square key image edge in pixels; 0 means no screen.
	ImageSize int `json:"image_size"`

	Inputs []Input `json:"inputs"`
}

// RowLayout builds a layout from per-row key counts, numbering keys left
// to right, top to bottom.
func RowLayout(rows []int, imageSize int) Layout {
	l := Layout{Rows: append([]int(nil), rows...), ImageSize: imageSize}
	kind := InputButton
	if imageSize > 0 {
		kind = InputScreenButton
	}
	idx := 0
	for r, n := range rows {
		for c := 0; c < n; c++ {
			l.Inputs = append(l.Inputs, Input{Index: uint8(idx), Row: r, Col: c, Type: kind}) // #nosec G115 -- layouts are far below 256 keys
			idx++
		}
	}
	return l
}

// KeyCount returns the number of inputs.
func (l Layout) KeyCount() int {
	return len(l.Inputs)
}

// HasScreen reports whether keys can show images.
func (l Layout) HasScreen() bool {
	return l.ImageSize > 0
}

// ValidKey reports whether key is within the layout.
func (l Layout) ValidKey(key uint8) bool {
	return int(key) < len(l.Inputs)
}

// Metadata is what a driver reports about a device during discovery.
type Metadata struct {
	Serial      string `json:"serial"`
	Description string `json:"description"`
	VendorID    uint16 `json:"vendor_id"`
	ProductID   uint16 `json:"product_id"`
	HasScreen   bool   `json:"has_screen"`
	Resolution  [2]int `json:"resolution"`
	Rows        []int  `json:"rows"`
}

// Identifier is a discovered device validated by the Manager.
type Identifier struct {
	// Driver is the namespaced driver name, e.g. "builtin/virtual".
	Driver      string `json:"driver"`
	Serial      string `json:"serial"`
	Description string `json:"description"`
	VendorID    uint16 `json:"vendor_id"`
	ProductID   uint16 `json:"product_id"`
	Layout      Layout `json:"layout"`
}

// InputEvent is one edge on one key.
type InputEvent struct {
	Key  uint8 `json:"key"`
	Down bool  `json:"down"`
}

// Driver is one family of devices.
type Driver interface {
	// Name is the driver's local name, e.g. "virtual".
	Name() string

	// Enumerate lists reachable devices without connecting.
	Enumerate(ctx context.Context) ([]Metadata, error)

	// Connect opens the device with the given serial. Failures are
	// *ConnectError.
	Connect(ctx context.Context, serial string) (Device, error)

	// Layout reports the input layout for a discovered device.
	Layout(meta Metadata) (Layout, error)
}

// Device is a connected handle. Any method may return ErrLostConnection.
type Device interface {
	// Poll returns input edges since the previous call, or ErrNoData.
	Poll() ([]InputEvent, error)

	Reset() error
	Clear() error
	ClearKey(key uint8) error
	SetBrightness(percent uint8) error

	// AddImage converts img for the device and stores it under key.
	AddImage(key string, img image.Image) error
	ContainsImage(key string) bool
	RemoveImage(key string) error

	// SetImage shows the cached image key on input pos.
	SetImage(pos uint8, key string) error

	Close() error
}
