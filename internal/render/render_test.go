package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestKey_CanonicalForm(t *testing.T) {
	a, err := Key([]byte(`{"text":"Mute","background":"#102030"}`), 72, nil)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	b, err := Key([]byte("{\n  \"background\": \"#102030\",\n  \"text\": \"Mute\"\n}"), 72, nil)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if a != b {
		t.Errorf("equivalent values hash differently: %s vs %s", a, b)
	}
	if len(a) != HashSize*2 {
		t.Errorf("len(Key()) = %d, want %d", len(a), HashSize*2)
	}

	c, _ := Key([]byte(`{"text":"Mute","background":"#102030"}`), 96, nil)
	if c == a {
		t.Error("different sizes must produce different keys")
	}
	d, _ := Key([]byte(`{"text":"Unmute","background":"#102030"}`), 72, nil)
	if d == a {
		t.Error("different contents must produce different keys")
	}

	if _, err := Key([]byte(`{`), 72, nil); err == nil {
		t.Error("Key() accepted malformed JSON")
	}
}

func TestKey_ImageResolution(t *testing.T) {
	value := []byte(`{"image":"img1","text":"Cam"}`)
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	present := func(id string) (image.Image, bool) { return img, id == "img1" }
	missing := func(string) (image.Image, bool) { return nil, false }

	withImage, err := Key(value, 72, present)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	without, _ := Key(value, 72, missing)
	if withImage == without {
		t.Error("deleting the library image must change the key")
	}
	if noLib, _ := Key(value, 72, nil); noLib != without {
		t.Error("nil source should behave like a missing image")
	}

	plain := []byte(`{"text":"Cam"}`)
	a, _ := Key(plain, 72, present)
	b, _ := Key(plain, 72, missing)
	if a != b {
		t.Error("buttons without an image must not depend on the library")
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	img, format, err := Decode(pngBytes(t, 4, 2))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if format != "png" || img.Bounds().Dx() != 4 {
		t.Errorf("Decode() = %s %v", format, img.Bounds())
	}

	for name, data := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("definitely not an image"),
		"too big": make([]byte, MaxImageBytes+1),
	} {
		t.Run(name, func(t *testing.T) {
			if _, _, err := Decode(data); !errors.Is(err, ErrInvalidImage) {
				t.Errorf("Decode() error = %v, want ErrInvalidImage", err)
			}
		})
	}
}

func TestDraw(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			src.Set(x, y, color.RGBA{G: 255, A: 255})
		}
	}
	images := func(id string) (image.Image, bool) {
		if id == "green" {
			return src, true
		}
		return nil, false
	}

	out, err := Draw(Renderer{Background: "#0000ff"}, 16, images)
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if got := out.RGBAAt(8, 8); got != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("background pixel = %v", got)
	}

	out, _ = Draw(Renderer{Background: "#0000ff", Image: "green"}, 16, images)
	if got := out.RGBAAt(8, 8); got.G < 200 {
		t.Errorf("image not drawn: pixel = %v", got)
	}

	if _, err := Draw(Renderer{Image: "missing", Text: "Hi"}, 16, images); err != nil {
		t.Errorf("missing image should be skipped, got %v", err)
	}
	if _, err := Draw(Renderer{Background: "blue"}, 16, nil); err == nil {
		t.Error("Draw() accepted an invalid colour")
	}
	if _, err := Draw(Renderer{}, 0, nil); err == nil {
		t.Error("Draw() accepted size 0")
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		src  image.Rectangle
		want image.Rectangle
	}{
		{image.Rect(0, 0, 100, 100), image.Rect(0, 0, 72, 72)},
		{image.Rect(0, 0, 200, 100), image.Rect(0, 18, 72, 54)},
		{image.Rect(0, 0, 100, 200), image.Rect(18, 0, 54, 72)},
	}
	for _, tt := range tests {
		if got := fit(tt.src, 72); got != tt.want {
			t.Errorf("fit(%v) = %v, want %v", tt.src, got, tt.want)
		}
	}
}
