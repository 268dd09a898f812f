package canvas

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/gogpu/gg"

	"github.com/sketchrelay/sketchrelay/pkg/types"
)

// Default surface size, matching the browser client's canvas.
const (
	DefaultWidth  = 1100
	DefaultHeight = 690
)

// dotRadius is the radius of the round dot painted at the start of every
// segment, which is what a stroke's first point looks like.
const dotRadius = 2

// Surface is a drawing surface. It is safe for concurrent use.
type Surface struct {
	mu     sync.Mutex
	dc     *gg.Context
	width  int
	height int
}

// NewSurface creates a transparent surface of the given size.
func NewSurface(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("canvas: invalid size %dx%d", width, height)
	}
	return &Surface{
		dc:     gg.NewContext(width, height),
		width:  width,
		height: height,
	}, nil
}

// Size returns the surface dimensions.
func (s *Surface) Size() (width, height int) {
	return s.width, s.height
}

// RenderSegment strokes a line from prev to cur and paints a dot at the
// line's start. A nil prev starts a new stroke, which renders as a dot.
func (s *Surface) RenderSegment(prev *types.Point, cur types.Point, color string, width float64) error {
	start := cur
	if prev != nil {
		start = *prev
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dc.SetHexColor(color)
	s.dc.SetLineWidth(width)
	s.dc.DrawLine(start.X, start.Y, cur.X, cur.Y)
	if err := s.dc.Stroke(); err != nil {
		return fmt.Errorf("canvas: stroke segment: %w", err)
	}

	s.dc.DrawCircle(start.X, start.Y, dotRadius)
	if err := s.dc.Fill(); err != nil {
		return fmt.Errorf("canvas: fill dot: %w", err)
	}
	return nil
}

// Render draws ev. It is RenderSegment for a decoded draw-line payload.
func (s *Surface) Render(ev types.DrawEvent) error {
	return s.RenderSegment(ev.PrevPoint, ev.CurrentPoint, ev.Color, ev.LineWidth)
}

// RenderSnapshot replaces the surface content with img anchored at the
// origin. Parts of img outside the surface are cut off; parts of the surface
// img does not cover become transparent.
func (s *Surface) RenderSnapshot(img image.Image) {
	b := img.Bounds()

	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.dc.Close()
	if b.Dx() == s.width && b.Dy() == s.height {
		s.dc = gg.NewContextForImage(img)
		return
	}
	dc := gg.NewContext(s.width, s.height)
	dc.DrawImage(gg.ImageBufFromImage(img), 0, 0)
	s.dc = dc
}

// ClearSurface makes every pixel transparent.
func (s *Surface) ClearSurface() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dc.Clear()
}

// Image returns a copy of the current surface content. The copy is made by
// gg: Context.Image builds a fresh *image.RGBA from its pixmap on every call.
func (s *Surface) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dc.Image().(*image.RGBA)
}

// WritePNG saves the surface to path. The file is written next to path and
// renamed into place, so readers never see a partial image.
func (s *Surface) WritePNG(path string) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")

	s.mu.Lock()
	err := s.dc.SavePNG(tmp)
	s.mu.Unlock()
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("canvas: write png: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("canvas: write png: %w", err)
	}
	return nil
}
