package button

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func TestButton_RoundTrip(t *testing.T) {
	b := New()
	if err := b.Set("renderer", map[string]any{"text": "Mute", "background": "#202020"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	b.SetRaw("obs_scene", json.RawMessage(`{"scene":"Intro"}`))

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got Button
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	names := got.Components()
	if len(names) != 2 || names[0] != "obs_scene" || names[1] != "renderer" {
		t.Errorf("Components() = %v, want [obs_scene renderer]", names)
	}
	if !got.Equal(b) {
		t.Errorf("round trip changed contents: %s", data)
	}
}

func TestGet(t *testing.T) {
	type scene struct {
		Scene string `json:"scene"`
	}

	b := Button{
		"obs_scene": json.RawMessage(`{"scene":"Intro"}`),
		"broken":    json.RawMessage(`"not an object"`),
	}

	got, err := Get[scene](b, "obs_scene")
	if err != nil || got.Scene != "Intro" {
		t.Errorf("Get(obs_scene) = %+v, %v", got, err)
	}

	if _, err := Get[scene](b, "missing"); !errors.Is(err, ErrComponentAbsent) {
		t.Errorf("Get(missing) error = %v, want ErrComponentAbsent", err)
	}

	_, err = Get[scene](b, "broken")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Get(broken) error = %v, want *ParseError", err)
	}
	if perr.Component != "broken" {
		t.Errorf("ParseError.Component = %q, want broken", perr.Component)
	}
}

func TestButton_CloneIsDeep(t *testing.T) {
	b := Button{"a": json.RawMessage(`1`)}
	c := b.Clone()
	c["a"][0] = '2'
	c["b"] = json.RawMessage(`true`)

	if string(b["a"]) != "1" || b.Has("b") {
		t.Errorf("clone shares storage with original: %v", b)
	}
	if Button(nil).Clone() != nil {
		t.Error("Clone(nil) should be nil")
	}
}

func TestButton_Remove(t *testing.T) {
	b := Button{"a": json.RawMessage(`1`)}
	if !b.Remove("a") {
		t.Error("Remove(a) = false, want true")
	}
	if b.Remove("a") {
		t.Error("second Remove(a) = true, want false")
	}
}

func TestUnique_SharedVisibility(t *testing.T) {
	u := NewUnique(Button{"renderer": json.RawMessage(`{"text":"A"}`)})

	first := NewPanel(NewRawPanel("first"))
	second := NewPanel(NewRawPanel("second"))
	first.SetButton(1, u)
	second.SetButton(9, u)

	err := u.Update(func(b Button) error {
		return b.Set("renderer", map[string]string{"text": "B"})
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := second.Button(9)
	var text string
	got.Read(func(b Button) {
		r, _ := Get[map[string]string](b, "renderer")
		text = r["text"]
	})
	if text != "B" {
		t.Errorf("linked button text = %q, want B", text)
	}
}

func TestUnique_CloneIndependent(t *testing.T) {
	u := NewUnique(Button{"a": json.RawMessage(`1`)})
	c := u.Clone()
	c.Replace(Button{"b": json.RawMessage(`2`)})

	if snap := u.Snapshot(); !snap.Has("a") || snap.Has("b") {
		t.Errorf("original changed through clone: %v", snap)
	}
}

func TestUnique_ConcurrentAccess(t *testing.T) {
	u := NewUnique(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = u.Update(func(b Button) error { return b.Set("counter", i) })
		}(i)
		go func() {
			defer wg.Done()
			_ = u.Snapshot()
		}()
	}
	wg.Wait()

	if !u.Snapshot().Has("counter") {
		t.Error("expected counter component after concurrent updates")
	}
}

func TestClipboard(t *testing.T) {
	var c Clipboard
	if _, ok := c.Paste(false); ok {
		t.Fatal("Paste() on empty clipboard returned a button")
	}

	u := NewUnique(Button{"a": json.RawMessage(`1`)})
	c.Copy(u)

	linked, _ := c.Paste(true)
	if linked != u {
		t.Error("Paste(link) should return the same button")
	}

	copied, _ := c.Paste(false)
	if copied == u {
		t.Fatal("Paste(copy) returned the original button")
	}
	copied.Replace(New())
	if !u.Snapshot().Has("a") {
		t.Error("editing a pasted copy changed the original")
	}

	c.Clear()
	if _, ok := c.Paste(true); ok {
		t.Error("Paste() after Clear returned a button")
	}
}
