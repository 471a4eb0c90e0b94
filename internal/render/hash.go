package render

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/blake2b"
)

// HashSize is the digest length in bytes.
const HashSize = 16

// Key returns the cache key for a renderer value drawn at size pixels.
// Whether its library image currently resolves is part of the key, so a
// deleted image changes the key of every button that used it. Image ids
// are never reused, so presence alone identifies the image bytes.
//
// Parameters:
//   - value: Serialised renderer component
//   - size: Key image edge in pixels
//   - images: Library lookup; nil resolves nothing
//
// Returns:
//   - string: 32 hex characters
//   - error: If value is not valid JSON
func Key(value []byte, size int, images ImageSource) (string, error) {
	canonical, err := jcs.Transform(value)
	if err != nil {
		return "", fmt.Errorf("canonicalising renderer value: %w", err)
	}

	h, err := blake2b.New(HashSize, nil)
	if err != nil {
		return "", err
	}
	var sz [8]byte
	binary.BigEndian.PutUint64(sz[:], uint64(size)) // #nosec G115 -- size is a small positive pixel count
	h.Write(sz[:])
	h.Write(canonical)

	var ref struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal(value, &ref); err == nil && ref.Image != "" {
		resolved := byte(0)
		if images != nil {
			if _, ok := images(ref.Image); ok {
				resolved = 1
			}
		}
		h.Write([]byte{resolved})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
