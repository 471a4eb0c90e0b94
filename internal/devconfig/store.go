package devconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/keygrid-core/internal/button"
)

const (
	// Ext is the extension of an active config file.
	Ext = ".json"

	// DisabledSuffix is appended to a disabled config file.
	DisabledSuffix = ".disabled"

	// DefaultBrightness is used for newly seeded configs.
	DefaultBrightness = 50
)

// DeviceConfig is the persisted state of one device.
type DeviceConfig struct {
	VendorID   uint16          `json:"vendor_id"`
	ProductID  uint16          `json:"product_id"`
	Serial     string          `json:"serial"`
	Driver     string          `json:"driver,omitempty"`
	Brightness uint8           `json:"brightness"`
	Layout     button.RawPanel `json:"layout"`
}

// Store reads and writes config files in one directory.
type Store struct {
	dir string

	mu sync.Mutex
	// written holds the bytes last written per serial so the watcher can
	// recognise its own writes.
	written map[string][]byte
}

// NewStore returns a store for dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}
	return &Store{dir: dir, written: make(map[string][]byte)}, nil
}

// Dir returns the configuration directory.
func (s *Store) Dir() string { return s.dir }

func validSerial(serial string) bool {
	return serial != "" && serial != "." && serial != ".." &&
		!strings.ContainsAny(serial, `/\`+"\x00")
}

func (s *Store) path(serial string) string {
	return filepath.Join(s.dir, serial+Ext)
}

// Load reads the active config of serial.
func (s *Store) Load(serial string) (*DeviceConfig, error) {
	if !validSerial(serial) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSerial, serial)
	}
	data, err := os.ReadFile(s.path(serial))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", serial, err)
	}

	var cfg DeviceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, serial, err)
	}
	if cfg.Serial == "" {
		cfg.Serial = serial
	}
	if cfg.Layout.Buttons == nil {
		cfg.Layout.Buttons = map[uint8]button.Button{}
	}
	return &cfg, nil
}

// Save writes cfg atomically (temp file then rename).
func (s *Store) Save(cfg *DeviceConfig) error {
	if !validSerial(cfg.Serial) {
		return fmt.Errorf("%w: %q", ErrInvalidSerial, cfg.Serial)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config %s: %w", cfg.Serial, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+cfg.Serial+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing config %s: %w", cfg.Serial, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config %s: %w", cfg.Serial, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config %s: %w", cfg.Serial, err)
	}

	s.mu.Lock()
	s.written[cfg.Serial] = data
	s.mu.Unlock()

	if err := os.Rename(tmp.Name(), s.path(cfg.Serial)); err != nil {
		return fmt.Errorf("writing config %s: %w", cfg.Serial, err)
	}
	return nil
}

// Exists reports whether serial has an active config file.
func (s *Store) Exists(serial string) bool {
	if !validSerial(serial) {
		return false
	}
	_, err := os.Stat(s.path(serial))
	return err == nil
}

// List returns the serials with an active config file, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing configs: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Ext) {
			continue
		}
		out = append(out, strings.TrimSuffix(name, Ext))
	}
	sort.Strings(out)
	return out, nil
}

// Disable renames the config of serial out of the way.
func (s *Store) Disable(serial string) error {
	if !validSerial(serial) {
		return fmt.Errorf("%w: %q", ErrInvalidSerial, serial)
	}
	if err := os.Rename(s.path(serial), s.path(serial)+DisabledSuffix); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, serial)
		}
		return fmt.Errorf("disabling config %s: %w", serial, err)
	}
	return nil
}

// Restore reverses Disable. It reports false, nil when serial already has
// an active config.
func (s *Store) Restore(serial string) (bool, error) {
	if !validSerial(serial) {
		return false, fmt.Errorf("%w: %q", ErrInvalidSerial, serial)
	}
	if s.Exists(serial) {
		return false, nil
	}
	if err := os.Rename(s.path(serial)+DisabledSuffix, s.path(serial)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("%w: %s", ErrNotDisabled, serial)
		}
		return false, fmt.Errorf("restoring config %s: %w", serial, err)
	}
	return true, nil
}

// isOwnWrite reports whether data is what the store last wrote for serial.
func (s *Store) isOwnWrite(serial string, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.written[serial]
	return ok && bytes.Equal(last, data)
}
