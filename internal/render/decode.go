package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoding
	_ "image/jpeg" // JPEG decoding
	_ "image/png"  // PNG decoding

	_ "golang.org/x/image/bmp"  // BMP decoding
	_ "golang.org/x/image/webp" // WebP decoding
)

// MaxImageBytes bounds an uploaded image before decoding.
const MaxImageBytes = 8 << 20

// maxImageEdge bounds decoded dimensions.
const maxImageEdge = 4096

// ErrInvalidImage is returned for bytes that are not a supported image.
var ErrInvalidImage = errors.New("render: invalid image")

// Decode validates and decodes image bytes.
//
// Returns:
//   - image.Image: Decoded image
//   - string: Format name ("png", "jpeg", "gif", "bmp", "webp")
//   - error: ErrInvalidImage wrapped with the reason
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty", ErrInvalidImage)
	}
	if len(data) > MaxImageBytes {
		return nil, "", fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidImage, len(data), MaxImageBytes)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxImageEdge || cfg.Height > maxImageEdge {
		return nil, "", fmt.Errorf("%w: %dx%d out of bounds", ErrInvalidImage, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return img, format, nil
}
