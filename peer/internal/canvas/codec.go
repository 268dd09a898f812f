package canvas

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // decode snapshots from peers that send JPEG
	"image/png"
	"strings"

	_ "golang.org/x/image/webp" // decode snapshots from peers that send WebP
)

// SnapshotSlack is how many times larger than the surface, per side, a
// decoded snapshot may be. Anything bigger is rejected before the pixels
// are allocated.
const SnapshotSlack = 2

// ErrMalformedSnapshot is returned for snapshots that cannot be decoded.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

const pngDataURLPrefix = "data:image/png;base64,"

// PNGCodec encodes surfaces as PNG data URLs, the format a browser canvas
// produces with toDataURL.
//
// MaxWidth and MaxHeight bound decoded snapshots. Zero means SnapshotSlack
// times the default surface size.
type PNGCodec struct {
	MaxWidth  int
	MaxHeight int
}

// NewPNGCodec returns a codec that accepts snapshots up to SnapshotSlack
// times a width by height surface.
func NewPNGCodec(width, height int) PNGCodec {
	return PNGCodec{MaxWidth: SnapshotSlack * width, MaxHeight: SnapshotSlack * height}
}

func (c PNGCodec) limits() (width, height int) {
	width, height = c.MaxWidth, c.MaxHeight
	if width <= 0 {
		width = SnapshotSlack * DefaultWidth
	}
	if height <= 0 {
		height = SnapshotSlack * DefaultHeight
	}
	return width, height
}

// Encode returns img as a PNG data URL.
func (PNGCodec) Encode(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("canvas: encode png: %w", err)
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode parses a data URL or bare base64 string holding a PNG, JPEG or WebP
// image. Every failure wraps ErrMalformedSnapshot.
func (c PNGCodec) Decode(s string) (image.Image, error) {
	raw, err := decodePayload(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	maxW, maxH := c.limits()
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxW || cfg.Height > maxH {
		return nil, fmt.Errorf("%w: %s image is %dx%d, limit is %dx%d",
			ErrMalformedSnapshot, format, cfg.Width, cfg.Height, maxW, maxH)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return img, nil
}

// decodePayload strips an optional data URL header and decodes the base64
// body. Padding is optional.
func decodePayload(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty payload")
	}
	if strings.HasPrefix(s, "data:") {
		header, body, ok := strings.Cut(s, ",")
		if !ok {
			return nil, errors.New("data URL without body")
		}
		if !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("data URL %q is not base64", header)
		}
		s = body
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	return raw, nil
}
