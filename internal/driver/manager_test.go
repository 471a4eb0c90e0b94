package driver

import (
	"context"
	"errors"
	"testing"
)

type stubDriver struct {
	name    string
	metas   []Metadata
	enumErr error
}

func (s *stubDriver) Name() string { return s.name }

func (s *stubDriver) Enumerate(context.Context) ([]Metadata, error) {
	return s.metas, s.enumErr
}

func (s *stubDriver) Connect(_ context.Context, serial string) (Device, error) {
	return nil, &ConnectError{Kind: ConnectTransport, Serial: serial, Err: errors.New("stub")}
}

func (s *stubDriver) Layout(meta Metadata) (Layout, error) {
	if len(meta.Rows) == 0 {
		return Layout{}, errors.New("unknown model")
	}
	return RowLayout(meta.Rows, meta.Resolution[0]), nil
}

func TestRowLayout(t *testing.T) {
	l := RowLayout([]int{5, 5, 5}, 72)
	if l.KeyCount() != 15 || !l.HasScreen() {
		t.Fatalf("RowLayout() = %d keys, screen=%v", l.KeyCount(), l.HasScreen())
	}
	in := l.Inputs[7]
	if in.Index != 7 || in.Row != 1 || in.Col != 2 || in.Type != InputScreenButton {
		t.Errorf("Inputs[7] = %+v", in)
	}
	if !l.ValidKey(14) || l.ValidKey(15) {
		t.Error("ValidKey bounds wrong")
	}
	if RowLayout([]int{2}, 0).Inputs[0].Type != InputButton {
		t.Error("screenless layout should use plain buttons")
	}
}

func TestManager_RegisterNamespaced(t *testing.T) {
	m := NewManager()
	name, err := m.Register("builtin", &stubDriver{name: "stub"})
	if err != nil || name != "builtin/stub" {
		t.Fatalf("Register() = %q, %v", name, err)
	}
	if _, err := m.Register("builtin", &stubDriver{name: "stub"}); !errors.Is(err, ErrDuplicateDriver) {
		t.Errorf("duplicate Register() error = %v", err)
	}
	if _, err := m.Register("plugin", &stubDriver{name: "stub"}); err != nil {
		t.Errorf("same name in another namespace: %v", err)
	}
	if _, err := m.Register("a/b", &stubDriver{name: "x"}); err == nil {
		t.Error("namespace with slash accepted")
	}
	if _, err := m.Get("nope/stub"); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("Get(unknown) error = %v", err)
	}
}

func TestManager_Discover(t *testing.T) {
	m := NewManager()
	_, _ = m.Register("builtin", &stubDriver{name: "good", metas: []Metadata{
		{Serial: "B", Rows: []int{3}},
		{Serial: "A", Rows: []int{5, 5, 5}, Resolution: [2]int{72, 72}},
		{Serial: "", Rows: []int{1}},
		{Serial: "NOLAYOUT"},
	}})
	_, _ = m.Register("builtin", &stubDriver{name: "broken", enumErr: errors.New("usb gone")})

	ids := m.Discover(context.Background())
	if len(ids) != 2 {
		t.Fatalf("Discover() = %+v, want 2 devices", ids)
	}
	if ids[0].Serial != "A" || ids[0].Driver != "builtin/good" || ids[0].Layout.KeyCount() != 15 {
		t.Errorf("ids[0] = %+v", ids[0])
	}

	if _, ok := m.Find(context.Background(), "B"); !ok {
		t.Error("Find(B) = false")
	}
	if _, ok := m.Find(context.Background(), "NOLAYOUT"); ok {
		t.Error("device without layout should not be discoverable")
	}
}

func TestManager_Connect(t *testing.T) {
	m := NewManager()
	_, _ = m.Register("builtin", &stubDriver{name: "stub"})

	_, err := m.Connect(context.Background(), Identifier{Driver: "builtin/stub", Serial: "X"})
	if !IsConnectKind(err, ConnectTransport) {
		t.Errorf("Connect() error = %v, want transport", err)
	}
	_, err = m.Connect(context.Background(), Identifier{Driver: "missing/stub", Serial: "X"})
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("Connect() with unknown driver error = %v", err)
	}
}
