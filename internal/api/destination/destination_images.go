package destination

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"
)

// Thumbnail downscales a photo to width pixels, keeping its aspect ratio,
// and returns it as base64 JPEG. Photos narrower than width are only
// re-encoded.
func Thumbnail(photo []byte, width int) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(photo), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode photo: %w", err)
	}
	if width > 0 && img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// EncodePhoto stores a gallery photo as fetched.
func EncodePhoto(photo []byte) string {
	return base64.StdEncoding.EncodeToString(photo)
}
