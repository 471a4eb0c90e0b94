package devconfig

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/keygrid-core/internal/button"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "devices"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func sampleConfig(serial string) *DeviceConfig {
	layout := button.NewRawPanel("Home")
	b := button.New()
	b.SetRaw("renderer", json.RawMessage(`{"text":"Mute"}`))
	layout.Buttons[7] = b
	return &DeviceConfig{
		VendorID:   0xFFFF,
		ProductID:  15,
		Serial:     serial,
		Driver:     "builtin/virtual",
		Brightness: 70,
		Layout:     layout,
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	want := sampleConfig("VIRT1")

	if err := s.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load("VIRT1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.VendorID != want.VendorID || got.Brightness != 70 || got.Driver != want.Driver {
		t.Errorf("Load() = %+v", got)
	}
	if !got.Layout.Buttons[7].Equal(want.Layout.Buttons[7]) {
		t.Errorf("key 7 = %v, want %v", got.Layout.Buttons[7], want.Layout.Buttons[7])
	}

	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (temp file left behind?)", len(entries))
	}
}

func TestStore_LoadErrors(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Load("NOPE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(missing) = %v, want ErrNotFound", err)
	}
	if _, err := s.Load("../etc"); !errors.Is(err, ErrInvalidSerial) {
		t.Errorf("Load(traversal) = %v, want ErrInvalidSerial", err)
	}

	if err := os.WriteFile(filepath.Join(s.Dir(), "BAD.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("BAD"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load(corrupt) = %v, want ErrInvalidConfig", err)
	}
}

func TestStore_DisableRestore(t *testing.T) {
	s := newTestStore(t)
	_ = s.Save(sampleConfig("A"))
	_ = s.Save(sampleConfig("B"))

	if list, _ := s.List(); len(list) != 2 || list[0] != "A" || list[1] != "B" {
		t.Fatalf("List() = %v", list)
	}

	if err := s.Disable("A"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if s.Exists("A") {
		t.Error("disabled config still active")
	}
	if list, _ := s.List(); len(list) != 1 || list[0] != "B" {
		t.Errorf("List() after disable = %v", list)
	}
	if err := s.Disable("A"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Disable() = %v, want ErrNotFound", err)
	}

	restored, err := s.Restore("A")
	if err != nil || !restored {
		t.Fatalf("Restore() = %v, %v", restored, err)
	}
	if !s.Exists("A") {
		t.Error("restored config not active")
	}
	if restored, err := s.Restore("A"); restored || err != nil {
		t.Errorf("Restore() of active config = %v, %v", restored, err)
	}
	if _, err := s.Restore("C"); !errors.Is(err, ErrNotDisabled) {
		t.Errorf("Restore(unknown) = %v, want ErrNotDisabled", err)
	}
}

func TestWatcher_ReportsExternalEditsOnly(t *testing.T) {
	s := newTestStore(t)
	changed := make(chan string, 4)

	w, err := NewWatcher(s, func(serial string) { changed <- serial })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	defer w.Close()

	if err := s.Save(sampleConfig("SELF")); err != nil {
		t.Fatal(err)
	}
	select {
	case serial := <-changed:
		t.Fatalf("own write reported for %s", serial)
	case <-time.After(4 * debounceDelay):
	}

	external := []byte(`{"serial":"EXT","brightness":10,"layout":{"display_name":"","buttons":{}}}`)
	if err := os.WriteFile(filepath.Join(s.Dir(), "EXT.json"), external, 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case serial := <-changed:
		if serial != "EXT" {
			t.Errorf("changed serial = %q, want EXT", serial)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("external edit not reported")
	}
}
