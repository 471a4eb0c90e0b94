package render

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ComponentName is the component a button needs to be drawn.
const ComponentName = "renderer"

// Renderer is the value of the renderer component.
type Renderer struct {
	// Background is a #rrggbb colour; empty means black.
	Background string `json:"background,omitempty"`

	// Image is the id of an image in the device's image library.
	Image string `json:"image,omitempty"`

	// Text is drawn centred on top of the image.
	Text string `json:"text,omitempty"`

	// TextColor is a #rrggbb colour; empty means white.
	TextColor string `json:"text_color,omitempty"`
}

// Schema is the JSON Schema of the renderer component.
const Schema = `{
	"type": "object",
	"properties": {
		"background": {"type": "string", "title": "Background", "pattern": "^(#[0-9a-fA-F]{6})?$"},
		"image":      {"type": "string", "title": "Image"},
		"text":       {"type": "string", "title": "Text"},
		"text_color": {"type": "string", "title": "Text colour", "pattern": "^(#[0-9a-fA-F]{6})?$"}
	},
	"additionalProperties": false
}`

// ImageSource resolves an image library id.
type ImageSource func(id string) (image.Image, bool)

// Draw rasterises r into a size by size image. A missing library image is
// skipped rather than treated as an error.
func Draw(r Renderer, size int, images ImageSource) (*image.RGBA, error) {
	if size <= 0 {
		return nil, fmt.Errorf("render: invalid size %d", size)
	}
	bg, err := parseColor(r.Background, color.RGBA{A: 255})
	if err != nil {
		return nil, err
	}
	fg, err := parseColor(r.TextColor, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	if r.Image != "" && images != nil {
		if src, ok := images(r.Image); ok {
			draw.CatmullRom.Scale(dst, fit(src.Bounds(), size), src, src.Bounds(), draw.Over, nil)
		}
	}

	if r.Text != "" {
		drawText(dst, r.Text, fg)
	}
	return dst, nil
}

// DrawValue decodes a serialised renderer and draws it.
func DrawValue(value json.RawMessage, size int, images ImageSource) (*image.RGBA, error) {
	var r Renderer
	if err := json.Unmarshal(value, &r); err != nil {
		return nil, fmt.Errorf("render: decoding renderer: %w", err)
	}
	return Draw(r, size, images)
}

// fit returns the centred rectangle that scales src into a size square
// keeping its aspect ratio.
func fit(src image.Rectangle, size int) image.Rectangle {
	w, h := src.Dx(), src.Dy()
	if w <= 0 || h <= 0 {
		return image.Rect(0, 0, size, size)
	}
	if w >= h {
		sh := h * size / w
		off := (size - sh) / 2
		return image.Rect(0, off, size, off+sh)
	}
	sw := w * size / h
	off := (size - sw) / 2
	return image.Rect(off, 0, off+sw, size)
}

func drawText(dst *image.RGBA, text string, c color.Color) {
	face := basicfont.Face7x13
	lines := strings.Split(text, "\n")
	lineHeight := face.Metrics().Height.Ceil()
	size := dst.Bounds().Dx()
	top := (size-lineHeight*len(lines))/2 + face.Metrics().Ascent.Ceil()

	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	for i, line := range lines {
		width := d.MeasureString(line).Ceil()
		d.Dot = fixed.P((size-width)/2, top+i*lineHeight)
		d.DrawString(line)
	}
}

func parseColor(s string, fallback color.RGBA) (color.RGBA, error) {
	if s == "" {
		return fallback, nil
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("render: invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("render: invalid colour %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil // #nosec G115 -- masked by width
}
