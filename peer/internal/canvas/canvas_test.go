package canvas

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketchrelay/sketchrelay/pkg/types"
)

// --- helpers ----------------------------------------------------------------

func newSurface(t *testing.T, w, h int) *Surface {
	t.Helper()
	s, err := NewSurface(w, h)
	require.NoError(t, err)
	return s
}

func at(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}

func pt(x, y float64) *types.Point { return &types.Point{X: x, Y: y} }

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// assertOpaqueMatch compares the pixels that are fully opaque or fully
// transparent in want. Anti-aliased edges hold straight alpha in the surface
// buffer and do not survive a PNG round trip exactly, so they are skipped.
func assertOpaqueMatch(t *testing.T, want, got *image.RGBA, tol int) {
	t.Helper()
	require.Equal(t, want.Bounds(), got.Bounds())
	diffs := 0
	for i := 0; i < len(want.Pix); i += 4 {
		switch want.Pix[i+3] {
		case 0:
			if got.Pix[i+3] != 0 {
				diffs++
			}
		case 255:
			for c := 0; c < 4; c++ {
				d := int(want.Pix[i+c]) - int(got.Pix[i+c])
				if d < -tol || d > tol {
					diffs++
					break
				}
			}
		}
	}
	assert.Zero(t, diffs, "pixels differing by more than %d", tol)
}

func transparent(img *image.RGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			return false
		}
	}
	return true
}

// --- Surface ----------------------------------------------------------------

func TestNewSurface_InvalidSize(t *testing.T) {
	_, err := NewSurface(0, 10)
	assert.Error(t, err)
	_, err = NewSurface(10, -1)
	assert.Error(t, err)
}

func TestNewSurface_StartsTransparent(t *testing.T) {
	s := newSurface(t, 40, 30)
	w, h := s.Size()
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)
	assert.True(t, transparent(s.Image()))
}

func TestImage_ReturnsCopy(t *testing.T) {
	s := newSurface(t, 8, 8)
	img := s.Image()
	img.Pix[3] = 255

	assert.True(t, transparent(s.Image()), "writes to a returned image must not reach the surface")
}

func TestRenderSegment_NilPrevDrawsDot(t *testing.T) {
	s := newSurface(t, 50, 50)
	require.NoError(t, s.RenderSegment(nil, types.Point{X: 10, Y: 10}, "#000000", 2))

	img := s.Image()
	assert.Equal(t, uint8(255), at(img, 10, 10).A, "dot centre is painted")
	assert.Equal(t, uint8(0), at(img, 30, 30).A, "nothing away from the dot")
	assert.Equal(t, uint8(0), at(img, 10, 20).A)
}

func TestRenderSegment_Line(t *testing.T) {
	s := newSurface(t, 120, 100)
	require.NoError(t, s.RenderSegment(pt(10, 50), types.Point{X: 100, Y: 50}, "#ff0000", 6))

	img := s.Image()
	mid := at(img, 55, 50)
	assert.Equal(t, uint8(255), mid.A)
	assert.Equal(t, uint8(255), mid.R)
	assert.Equal(t, uint8(0), mid.G)
	assert.Equal(t, uint8(0), at(img, 55, 60).A, "outside the line width")
	assert.Equal(t, uint8(0), at(img, 110, 50).A, "past the end point")
}

func TestRenderSegment_IdempotentRedelivery(t *testing.T) {
	once := newSurface(t, 80, 80)
	twice := newSurface(t, 80, 80)
	prev, cur := pt(10, 10), types.Point{X: 60, Y: 40}

	require.NoError(t, once.RenderSegment(prev, cur, "#123456", 4))
	require.NoError(t, twice.RenderSegment(prev, cur, "#123456", 4))
	require.NoError(t, twice.RenderSegment(prev, cur, "#123456", 4))

	a, b := once.Image(), twice.Image()
	for y := 0; y < 80; y++ {
		for x := 0; x < 80; x++ {
			pa, pb := at(a, x, y), at(b, x, y)
			switch pa.A {
			case 0:
				require.Equal(t, uint8(0), pb.A, "redelivery painted new pixel (%d,%d)", x, y)
			case 255:
				require.InDelta(t, int(pa.R), int(pb.R), 2, "solid pixel (%d,%d) changed", x, y)
				require.InDelta(t, int(pa.G), int(pb.G), 2, "solid pixel (%d,%d) changed", x, y)
				require.InDelta(t, int(pa.B), int(pb.B), 2, "solid pixel (%d,%d) changed", x, y)
				require.Equal(t, uint8(255), pb.A)
			}
		}
	}
}

func TestClearSurface(t *testing.T) {
	s := newSurface(t, 50, 50)
	require.NoError(t, s.RenderSegment(pt(5, 5), types.Point{X: 45, Y: 45}, "#00f", 8))
	require.False(t, transparent(s.Image()))

	s.ClearSurface()
	assert.True(t, transparent(s.Image()))
}

func TestRenderSnapshot_ReplacesContent(t *testing.T) {
	src := newSurface(t, 60, 40)
	require.NoError(t, src.RenderSegment(pt(5, 20), types.Point{X: 55, Y: 20}, "#000", 6))

	dst := newSurface(t, 60, 40)
	require.NoError(t, dst.RenderSegment(nil, types.Point{X: 30, Y: 5}, "#f00", 2))

	dst.RenderSnapshot(src.Image())

	assertOpaqueMatch(t, src.Image(), dst.Image(), 2)
	assert.Equal(t, uint8(0), at(dst.Image(), 30, 5).A, "previous content is overwritten")
}

func TestRenderSnapshot_SmallerImageAnchoredAtOrigin(t *testing.T) {
	s := newSurface(t, 100, 100)
	require.NoError(t, s.RenderSegment(pt(60, 80), types.Point{X: 90, Y: 80}, "#000", 4))

	s.RenderSnapshot(solid(20, 20, color.RGBA{R: 255, A: 255}))

	img := s.Image()
	c := at(img, 10, 10)
	assert.InDelta(t, 255, int(c.R), 2)
	assert.InDelta(t, 255, int(c.A), 2)
	assert.Equal(t, uint8(0), at(img, 50, 50).A)
	assert.Equal(t, uint8(0), at(img, 75, 80).A, "content outside the snapshot is cleared")
}

func TestRenderSnapshot_LargerImageCropped(t *testing.T) {
	s := newSurface(t, 30, 30)
	s.RenderSnapshot(solid(60, 60, color.RGBA{G: 255, A: 255}))

	img := s.Image()
	assert.Equal(t, image.Rect(0, 0, 30, 30), img.Bounds())
	assert.InDelta(t, 255, int(at(img, 15, 15).G), 2)
}

func TestWritePNG(t *testing.T) {
	s := newSurface(t, 40, 30)
	require.NoError(t, s.RenderSegment(pt(5, 15), types.Point{X: 35, Y: 15}, "#0f0", 6))

	path := filepath.Join(t.TempDir(), "board.png")
	require.NoError(t, s.WritePNG(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())

	_, _, _, a := img.At(20, 15).RGBA()
	assert.Equal(t, uint32(0xffff), a)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestWritePNG_BadDirectory(t *testing.T) {
	s := newSurface(t, 4, 4)
	err := s.WritePNG(filepath.Join(t.TempDir(), "missing", "board.png"))
	assert.Error(t, err)
}

// --- PNGCodec ---------------------------------------------------------------

func TestCodec_RoundTrip(t *testing.T) {
	s := newSurface(t, DefaultWidth, DefaultHeight)
	require.NoError(t, s.RenderSegment(nil, types.Point{X: 10, Y: 10}, "#000", 2))
	require.NoError(t, s.RenderSegment(pt(10, 10), types.Point{X: 20, Y: 20}, "#000", 2))

	var codec PNGCodec
	enc, err := codec.Encode(s.Image())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, "data:image/png;base64,"))

	img, err := codec.Decode(enc)
	require.NoError(t, err)

	other := newSurface(t, DefaultWidth, DefaultHeight)
	other.RenderSnapshot(img)
	assertOpaqueMatch(t, s.Image(), other.Image(), 2)
}

func TestCodec_DecodeFormats(t *testing.T) {
	red := solid(8, 6, color.RGBA{R: 255, A: 255})

	var pngBuf, jpgBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, red))
	require.NoError(t, jpeg.Encode(&jpgBuf, red, &jpeg.Options{Quality: 95}))
	pngB64 := base64.StdEncoding.EncodeToString(pngBuf.Bytes())

	tests := []struct {
		name string
		in   string
	}{
		{"png data url", "data:image/png;base64," + pngB64},
		{"bare base64", pngB64},
		{"unpadded base64", strings.TrimRight(pngB64, "=")},
		{"jpeg data url", "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpgBuf.Bytes())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := PNGCodec{}.Decode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, 8, img.Bounds().Dx())
			assert.Equal(t, 6, img.Bounds().Dy())
		})
	}
}

func TestCodec_LimitFollowsSurface(t *testing.T) {
	codec := NewPNGCodec(10, 8)

	encode := func(w, h int) string {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
		return base64.StdEncoding.EncodeToString(buf.Bytes())
	}

	img, err := codec.Decode(encode(20, 16))
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	_, err = codec.Decode(encode(21, 8))
	assert.ErrorIs(t, err, ErrMalformedSnapshot)
	_, err = codec.Decode(encode(10, 17))
	assert.ErrorIs(t, err, ErrMalformedSnapshot)

	_, err = codec.Decode(encode(400, 400))
	assert.ErrorIs(t, err, ErrMalformedSnapshot)
}

func TestCodec_DecodeRejects(t *testing.T) {
	var huge bytes.Buffer
	require.NoError(t, png.Encode(&huge, image.NewRGBA(image.Rect(0, 0, SnapshotSlack*DefaultWidth+1, 1))))

	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"not base64", "data:image/png;base64,@@@@"},
		{"data url without body", "data:image/png;base64"},
		{"data url not base64", "data:image/png,abcd"},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("hello, world"))},
		{"too large", base64.StdEncoding.EncodeToString(huge.Bytes())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PNGCodec{}.Decode(tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedSnapshot)
		})
	}
}
