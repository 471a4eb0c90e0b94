// Package virtual is an in-memory driver for simulated button grids.
//
// Simulated devices are configured up front (see config.VirtualConfig) and
// behave like hardware: presses are injected with Press, unplugging is
// simulated with Unplug, and every image upload is counted so callers can
// observe the session's image cache.
package virtual

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/nerrad567/keygrid-core/internal/driver"
)

// Name is the driver's local name.
const Name = "virtual"

// VendorID is reported for every simulated device.
const VendorID = 0xFFFF

// Config describes one simulated device.
type Config struct {
	Serial    string
	Rows      []int
	ImageSize int
}

type unit struct {
	cfg     Config
	plugged bool
	open    *Device
}

// Driver hosts a fixed set of simulated devices.
type Driver struct {
	mu    sync.Mutex
	units map[string]*unit
	order []string
}

// New returns a driver with the given devices plugged in.
func New(configs ...Config) *Driver {
	d := &Driver{units: make(map[string]*unit)}
	for _, s := range configs {
		d.Add(s)
	}
	return d
}

// Add plugs in another simulated device. An existing serial is replaced.
func (d *Driver) Add(s Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.units[s.Serial]; !ok {
		d.order = append(d.order, s.Serial)
	}
	d.units[s.Serial] = &unit{cfg: s, plugged: true}
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return Name }

// Enumerate implements driver.Driver.
func (d *Driver) Enumerate(_ context.Context) ([]driver.Metadata, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []driver.Metadata
	for _, serial := range d.order {
		u := d.units[serial]
		if !u.plugged {
			continue
		}
		out = append(out, driver.Metadata{
			Serial:      serial,
			Description: fmt.Sprintf("Virtual %d-key grid", sum(u.cfg.Rows)),
			VendorID:    VendorID,
			ProductID:   uint16(sum(u.cfg.Rows)), // #nosec G115 -- small key counts
			HasScreen:   u.cfg.ImageSize > 0,
			Resolution:  [2]int{u.cfg.ImageSize, u.cfg.ImageSize},
			Rows:        append([]int(nil), u.cfg.Rows...),
		})
	}
	return out, nil
}

// Layout implements driver.Driver.
func (d *Driver) Layout(meta driver.Metadata) (driver.Layout, error) {
	if len(meta.Rows) == 0 {
		return driver.Layout{}, fmt.Errorf("virtual: no rows for %s", meta.Serial)
	}
	return driver.RowLayout(meta.Rows, meta.Resolution[0]), nil
}

// Connect implements driver.Driver.
func (d *Driver) Connect(_ context.Context, serial string) (driver.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.units[serial]
	if !ok || !u.plugged {
		return nil, &driver.ConnectError{Kind: driver.ConnectNotFound, Serial: serial}
	}
	if u.open != nil && !u.open.closed() {
		return nil, &driver.ConnectError{Kind: driver.ConnectBusy, Serial: serial}
	}
	dev := newDevice(serial, driver.RowLayout(u.cfg.Rows, u.cfg.ImageSize))
	u.open = dev
	return dev, nil
}

// Device returns the open handle for serial, if any.
func (d *Driver) Device(serial string) (*Device, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.units[serial]
	if !ok || u.open == nil {
		return nil, false
	}
	return u.open, true
}

// Press queues a down and an up edge for key on the open device.
func (d *Driver) Press(serial string, key uint8) error {
	dev, ok := d.Device(serial)
	if !ok {
		return fmt.Errorf("virtual: %s is not connected", serial)
	}
	dev.inject(driver.InputEvent{Key: key, Down: true}, driver.InputEvent{Key: key, Down: false})
	return nil
}

// Unplug makes the device vanish. The open handle starts returning
// driver.ErrLostConnection and Enumerate stops listing it.
func (d *Driver) Unplug(serial string) {
	d.mu.Lock()
	u, ok := d.units[serial]
	if ok {
		u.plugged = false
	}
	d.mu.Unlock()
	if ok && u.open != nil {
		u.open.lose()
	}
}

// Replug makes an unplugged device reachable again.
func (d *Driver) Replug(serial string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.units[serial]; ok {
		u.plugged = true
	}
}

func sum(rows []int) int {
	n := 0
	for _, r := range rows {
		n += r
	}
	return n
}

// Device is an open simulated device.
type Device struct {
	serial string
	layout driver.Layout

	mu         sync.Mutex
	pending    []driver.InputEvent
	images     map[string]image.Image
	shown      map[uint8]string
	brightness uint8
	uploads    int
	lost       bool
	isClosed   bool
}

func newDevice(serial string, layout driver.Layout) *Device {
	return &Device{
		serial:     serial,
		layout:     layout,
		images:     make(map[string]image.Image),
		shown:      make(map[uint8]string),
		brightness: 100,
	}
}

func (v *Device) inject(events ...driver.InputEvent) {
	v.mu.Lock()
	v.pending = append(v.pending, events...)
	v.mu.Unlock()
}

func (v *Device) lose() {
	v.mu.Lock()
	v.lost = true
	v.mu.Unlock()
}

func (v *Device) closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isClosed || v.lost
}

// check must be called with v.mu held.
func (v *Device) check() error {
	if v.lost || v.isClosed {
		return driver.ErrLostConnection
	}
	return nil
}

// Poll implements driver.Device.
func (v *Device) Poll() ([]driver.InputEvent, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return nil, err
	}
	if len(v.pending) == 0 {
		return nil, driver.ErrNoData
	}
	out := v.pending
	v.pending = nil
	return out, nil
}

// Reset implements driver.Device.
func (v *Device) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	v.images = make(map[string]image.Image)
	v.shown = make(map[uint8]string)
	v.brightness = 100
	return nil
}

// Clear implements driver.Device.
func (v *Device) Clear() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	v.shown = make(map[uint8]string)
	return nil
}

// ClearKey implements driver.Device.
func (v *Device) ClearKey(key uint8) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	if !v.layout.ValidKey(key) {
		return driver.ErrKeyOutOfRange
	}
	delete(v.shown, key)
	return nil
}

// SetBrightness implements driver.Device.
func (v *Device) SetBrightness(percent uint8) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	if percent > 100 {
		percent = 100
	}
	v.brightness = percent
	return nil
}

// AddImage implements driver.Device.
func (v *Device) AddImage(key string, img image.Image) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	v.images[key] = img
	v.uploads++
	return nil
}

// ContainsImage implements driver.Device.
func (v *Device) ContainsImage(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.images[key]
	return ok
}

// RemoveImage implements driver.Device.
func (v *Device) RemoveImage(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	delete(v.images, key)
	return nil
}

// SetImage implements driver.Device.
func (v *Device) SetImage(pos uint8, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	if !v.layout.ValidKey(pos) {
		return driver.ErrKeyOutOfRange
	}
	if _, ok := v.images[key]; !ok {
		return fmt.Errorf("virtual: image %s not cached", key)
	}
	v.shown[pos] = key
	return nil
}

// Close implements driver.Device.
func (v *Device) Close() error {
	v.mu.Lock()
	v.isClosed = true
	v.mu.Unlock()
	return nil
}

// Uploads returns how many images were added to the cache.
func (v *Device) Uploads() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.uploads
}

// Shown returns the image key currently on pos.
func (v *Device) Shown(pos uint8) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	k, ok := v.shown[pos]
	return k, ok
}

// Brightness returns the last brightness set.
func (v *Device) Brightness() uint8 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.brightness
}

// Image returns the cached image for key.
func (v *Device) Image(key string) (image.Image, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	img, ok := v.images[key]
	return img, ok
}
