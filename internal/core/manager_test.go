package core

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/component"
	"github.com/nerrad567/keygrid-core/internal/devconfig"
	"github.com/nerrad567/keygrid-core/internal/driver"
	"github.com/nerrad567/keygrid-core/internal/driver/virtual"
	"github.com/nerrad567/keygrid-core/internal/module"
	"github.com/nerrad567/keygrid-core/internal/session"
	"github.com/nerrad567/keygrid-core/internal/store"
)

// beepModule owns the "beep" component and records the actions it sees.
type beepModule struct {
	module.Base

	mu      sync.Mutex
	actions []module.Event
	fired   chan struct{}
}

func newBeepModule() *beepModule {
	return &beepModule{fired: make(chan struct{}, 16)}
}

func (b *beepModule) Name() string { return "beep" }

func (b *beepModule) Metadata() module.Metadata {
	return module.Metadata{Name: "beep", Version: "1.0.0", UsedFeatures: module.HostFeatures}
}

func (b *beepModule) Components() map[string]component.Definition {
	return map[string]component.Definition{
		"beep": {
			DisplayName: "Beep",
			Default:     json.RawMessage(`{"tone":440}`),
			Schema:      json.RawMessage(`{"type":"object","properties":{"tone":{"type":"integer","title":"Tone"}}}`),
		},
	}
}

func (b *beepModule) ListeningFor() []module.EventType {
	return []module.EventType{module.EventButtonAction}
}

func (b *beepModule) HandleEvent(_ context.Context, ev module.Event) {
	if !ev.Button.Has("beep") {
		return
	}
	b.mu.Lock()
	b.actions = append(b.actions, ev)
	b.mu.Unlock()
	b.fired <- struct{}{}
}

func (b *beepModule) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.actions)
}

// memHistory is an in-memory HistoryRepository.
type memHistory struct {
	mu      sync.Mutex
	actions []store.Action
}

func (h *memHistory) Record(_ context.Context, a *store.Action) error {
	h.mu.Lock()
	h.actions = append(h.actions, *a)
	h.mu.Unlock()
	return nil
}

func (h *memHistory) List(_ context.Context, serial string, _ int) ([]store.Action, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []store.Action
	for _, a := range h.actions {
		if a.Serial == serial {
			out = append(out, a)
		}
	}
	return out, nil
}

func (h *memHistory) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

type fixture struct {
	drv     *virtual.Driver
	configs *devconfig.Store
	beep    *beepModule
	history *memHistory
	mgr     *Manager
}

// gatedDriver holds Connect calls at a gate while armed.
type gatedDriver struct {
	*virtual.Driver
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedDriver(d *virtual.Driver) *gatedDriver {
	return &gatedDriver{Driver: d, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedDriver) Connect(ctx context.Context, serial string) (driver.Device, error) {
	if g.armed.Load() {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.Driver.Connect(ctx, serial)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, func(d *virtual.Driver) driver.Driver { return d })
}

func newFixtureWith(t *testing.T, wrap func(*virtual.Driver) driver.Driver) *fixture {
	t.Helper()
	f := &fixture{
		drv: virtual.New(
			virtual.Config{Serial: "V1", Rows: []int{5, 5, 5}, ImageSize: 72},
			virtual.Config{Serial: "V2", Rows: []int{3}},
		),
		beep:    newBeepModule(),
		history: &memHistory{},
	}

	configs, err := devconfig.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f.configs = configs

	drivers := driver.NewManager()
	if _, err := drivers.Register("builtin", wrap(f.drv)); err != nil {
		t.Fatal(err)
	}
	modules := module.NewManager(component.NewRegistry())
	if err := modules.Register(f.beep); err != nil {
		t.Fatal(err)
	}

	mgr, err := New(Options{
		Drivers:           drivers,
		Modules:           modules,
		Configs:           configs,
		History:           f.history,
		ReconnectInterval: time.Hour,
		PollRate:          500,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.mgr = mgr
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		mgr.Stop(ctx)
	})
	return f
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("New() error = %v, want ErrInvalidOptions", err)
	}
}

func TestAddAndRemoveDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if got := len(f.mgr.Available(ctx)); got != 2 {
		t.Errorf("Available() = %d devices, want 2", got)
	}

	res, err := f.mgr.AddDevice(ctx, "missing")
	if err != nil || res != AddNotFound {
		t.Errorf("AddDevice(missing) = %s, %v", res, err)
	}
	res, err = f.mgr.AddDevice(ctx, "V1")
	if err != nil || res != AddAdded {
		t.Fatalf("AddDevice(V1) = %s, %v", res, err)
	}
	res, _ = f.mgr.AddDevice(ctx, "V1")
	if res != AddAlreadyRegistered {
		t.Errorf("second AddDevice(V1) = %s", res)
	}

	s, err := f.mgr.Session("V1")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Live() {
		t.Errorf("state = %s, want live", s.State())
	}
	if !f.configs.Exists("V1") {
		t.Error("config not seeded")
	}
	avail := f.mgr.Available(ctx)
	if len(avail) != 1 || avail[0].Serial != "V2" {
		t.Errorf("Available() = %v, want only V2", avail)
	}

	if err := s.SetButton(3, button.New()); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.SaveDevice("V1"); err != nil {
		t.Fatal(err)
	}

	rres, err := f.mgr.RemoveDevice(ctx, "V1")
	if err != nil || rres != RemoveRemoved {
		t.Fatalf("RemoveDevice(V1) = %s, %v", rres, err)
	}
	if f.configs.Exists("V1") {
		t.Error("config still active after remove")
	}
	if _, err := os.Stat(filepath.Join(f.configs.Dir(), "V1"+devconfig.Ext+devconfig.DisabledSuffix)); err != nil {
		t.Errorf("disabled config missing: %v", err)
	}
	if rres, _ := f.mgr.RemoveDevice(ctx, "V1"); rres != RemoveNotRegistered {
		t.Errorf("second RemoveDevice(V1) = %s", rres)
	}
	if _, err := f.mgr.Session("V1"); !IsNotFound(err) {
		t.Errorf("Session(V1) after remove = %v", err)
	}

	// Adding again restores the disabled config.
	if res, _ := f.mgr.AddDevice(ctx, "V1"); res != AddAdded {
		t.Fatalf("re-add = %s", res)
	}
	s, _ = f.mgr.Session("V1")
	if _, ok := s.Button(3); !ok {
		t.Error("restored config lost button 3")
	}
}

func TestStart_AdoptsConfiguredDevices(t *testing.T) {
	f := newFixture(t)
	root := button.NewRawPanel("home")
	root.Buttons[1] = button.New()
	if err := f.configs.Save(&devconfig.DeviceConfig{Serial: "V2", Brightness: 20, Layout: root}); err != nil {
		t.Fatal(err)
	}
	if err := f.configs.Save(&devconfig.DeviceConfig{Serial: "GONE", Layout: button.NewRawPanel("")}); err != nil {
		t.Fatal(err)
	}

	if err := f.mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	devices := f.mgr.Devices()
	if len(devices) != 1 || devices[0].Serial != "V2" || devices[0].State != session.StateLive.String() {
		t.Fatalf("Devices() = %+v", devices)
	}
	if devices[0].Brightness != 20 {
		t.Errorf("Brightness = %d, want 20", devices[0].Brightness)
	}
	if p := f.mgr.Pending(); len(p) != 1 || p[0] != "GONE" {
		t.Errorf("Pending() = %v, want [GONE]", p)
	}
	if res, _ := f.mgr.AddDevice(context.Background(), "GONE"); res != AddAlreadyRegistered {
		t.Errorf("AddDevice(pending) = %s, want AlreadyRegistered", res)
	}
}

func TestReconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.mgr.AddDevice(ctx, "V1"); err != nil {
		t.Fatal(err)
	}
	s, _ := f.mgr.Session("V1")

	f.drv.Unplug("V1")
	eventually(t, "session to close", func() bool { return s.State() == session.StateClosed })

	f.mgr.reconnect(ctx)
	if s.State() != session.StateClosed {
		t.Fatal("reconnected to an unplugged device")
	}

	f.drv.Replug("V1")
	f.mgr.reconnect(ctx)
	if !s.Live() {
		t.Errorf("state = %s after replug, want live", s.State())
	}
}

func TestReconnect_DeviceBusyWhenAdded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	holder, err := f.drv.Connect(ctx, "V1")
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.mgr.AddDevice(ctx, "V1")
	if err != nil || res != AddAdded {
		t.Fatalf("AddDevice(V1) = %s, %v", res, err)
	}
	s, _ := f.mgr.Session("V1")
	if s.Live() {
		t.Fatal("session live while another holder has the device")
	}

	_ = holder.Close()
	f.mgr.reconnect(ctx)
	if !s.Live() {
		t.Errorf("state = %s after holder released, want live", s.State())
	}
}

func TestReconnect_RemovedDuringConnect(t *testing.T) {
	var gate *gatedDriver
	f := newFixtureWith(t, func(d *virtual.Driver) driver.Driver {
		gate = newGatedDriver(d)
		return gate
	})
	ctx := context.Background()
	if _, err := f.mgr.AddDevice(ctx, "V1"); err != nil {
		t.Fatal(err)
	}
	s, _ := f.mgr.Session("V1")
	f.drv.Unplug("V1")
	eventually(t, "session to close", func() bool { return s.State() == session.StateClosed })
	f.drv.Replug("V1")

	gate.armed.Store(true)
	done := make(chan struct{})
	go func() {
		f.mgr.reconnect(ctx)
		close(done)
	}()
	<-gate.entered

	res, err := f.mgr.RemoveDevice(ctx, "V1")
	if err != nil || res != RemoveRemoved {
		t.Fatalf("RemoveDevice(V1) = %s, %v", res, err)
	}
	close(gate.release)
	<-done

	if s.Live() {
		t.Error("removed session went live")
	}
	if dev, ok := f.drv.Device("V1"); ok {
		if _, err := dev.Poll(); !errors.Is(err, driver.ErrLostConnection) {
			t.Error("removed session still holds the device")
		}
	}
}

func TestPress_OwningModuleSeesOneAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.mgr.AddDevice(ctx, "V1"); err != nil {
		t.Fatal(err)
	}
	s, _ := f.mgr.Session("V1")

	if _, err := s.NewButton(7); err != nil {
		t.Fatal(err)
	}
	ok, err := f.mgr.AddComponent("V1", 7, "beep")
	if err != nil || !ok {
		t.Fatalf("AddComponent() = %v, %v", ok, err)
	}
	if ok, _ := f.mgr.AddComponent("V1", 7, "unknown"); ok {
		t.Error("unknown component reported as handled")
	}

	if err := f.mgr.Controller("mqtt").Press("V1", 7); err != nil {
		t.Fatalf("Press() error = %v", err)
	}
	select {
	case <-f.beep.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("module never saw the action")
	}
	time.Sleep(20 * time.Millisecond)
	if n := f.beep.count(); n != 1 {
		t.Errorf("module saw %d actions, want 1", n)
	}

	eventually(t, "history record", func() bool {
		list, _ := f.mgr.History(ctx, "V1", 10)
		return len(list) == 1
	})
	list, _ := f.mgr.History(ctx, "V1", 10)
	a := list[0]
	if a.Key != 7 || a.Source != "mqtt" || len(a.Modules) != 1 || a.Modules[0] != "beep" {
		t.Errorf("history = %+v", a)
	}
	if len(a.Components) != 1 || a.Components[0] != "beep" {
		t.Errorf("history components = %v", a.Components)
	}

	if err := f.mgr.Controller("mqtt").Press("V1", 8); !errors.Is(err, ErrButtonNotFound) {
		t.Errorf("Press(empty) error = %v, want ErrButtonNotFound", err)
	}
	if err := f.mgr.Controller("mqtt").Press("nope", 1); !IsNotFound(err) {
		t.Errorf("Press(nope) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestComponentValues(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.AddDevice(context.Background(), "V1"); err != nil {
		t.Fatal(err)
	}

	ok, err := f.mgr.NewButtonFromComponent("V1", 2, "beep")
	if err != nil || !ok {
		t.Fatalf("NewButtonFromComponent() = %v, %v", ok, err)
	}

	values, ok, err := f.mgr.ComponentValues("V1", 2, "beep")
	if err != nil || !ok || len(values) != 1 || values[0].Name != "tone" {
		t.Fatalf("ComponentValues() = %+v, %v, %v", values, ok, err)
	}

	values[0].Value = json.RawMessage(`880`)
	if ok, err := f.mgr.SetComponentValues("V1", 2, "beep", values); err != nil || !ok {
		t.Fatalf("SetComponentValues() = %v, %v", ok, err)
	}
	s, _ := f.mgr.Session("V1")
	u, _ := s.Button(2)
	v, err := button.Get[map[string]int](u.Snapshot(), "beep")
	if err != nil || v["tone"] != 880 {
		t.Errorf("beep = %v, %v", v, err)
	}

	if ok, err := f.mgr.RemoveComponent("V1", 2, "beep"); err != nil || !ok {
		t.Errorf("RemoveComponent() = %v, %v", ok, err)
	}
	if _, _, err := f.mgr.ComponentValues("V1", 9, "beep"); !errors.Is(err, ErrButtonNotFound) {
		t.Errorf("ComponentValues(empty key) error = %v", err)
	}
}

func TestClipboard(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.AddDevice(context.Background(), "V1"); err != nil {
		t.Fatal(err)
	}
	s, _ := f.mgr.Session("V1")

	if err := f.mgr.Paste("V1", 0, false); !errors.Is(err, ErrClipboardEmpty) {
		t.Errorf("Paste() on empty clipboard = %v", err)
	}
	if err := f.mgr.Copy("V1", 0); !errors.Is(err, ErrButtonNotFound) {
		t.Errorf("Copy(empty key) = %v", err)
	}

	_, _ = f.mgr.NewButtonFromComponent("V1", 0, "beep")
	if err := f.mgr.Copy("V1", 0); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.Paste("V1", 1, false); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.Paste("V1", 2, true); err != nil {
		t.Fatal(err)
	}

	orig, _ := s.Button(0)
	copied, _ := s.Button(1)
	linked, _ := s.Button(2)
	if copied == orig {
		t.Error("plain paste shares the button")
	}
	if linked != orig {
		t.Error("linked paste did not share the button")
	}
}

func TestDeviceScopedNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checks := map[string]error{
		"ReloadDevice": f.mgr.ReloadDevice(ctx, "x"),
		"SaveDevice":   f.mgr.SaveDevice("x"),
		"Copy":         f.mgr.Copy("x", 0),
		"Paste":        f.mgr.Paste("x", 0, false),
	}
	_, checks["AddImage"] = f.mgr.AddImage(ctx, "x", nil)
	_, checks["ListImages"] = f.mgr.ListImages(ctx, "x")
	_, checks["History"] = f.mgr.History(ctx, "x", 1)
	_, checks["AddComponent"] = f.mgr.AddComponent("x", 0, "beep")
	checks["SetBrightness"] = f.mgr.Controller("test").SetBrightness("x", 10)

	for name, err := range checks {
		if !IsNotFound(err) {
			t.Errorf("%s error = %v, want ErrDeviceNotFound", name, err)
		}
	}
}

func TestSaveAndReloadAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.mgr.AddDevice(ctx, "V1")
	_, _ = f.mgr.AddDevice(ctx, "V2")

	if failed := f.mgr.SaveDevices(); len(failed) != 0 {
		t.Errorf("SaveDevices() failures = %v", failed)
	}
	if err := os.Remove(filepath.Join(f.configs.Dir(), "V2"+devconfig.Ext)); err != nil {
		t.Fatal(err)
	}
	failed := f.mgr.ReloadDevices(ctx)
	if len(failed) != 1 || !errors.Is(failed["V2"], devconfig.ErrNotFound) {
		t.Errorf("ReloadDevices() failures = %v, want V2 not found", failed)
	}
}
