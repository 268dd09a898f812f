package stroke

import (
	"sync"

	"github.com/sketchrelay/sketchrelay/pkg/types"
)

// Encoder packages pointer moves into draw events. It is safe for concurrent
// use: the board resets it from its receive loop while the caller draws.
type Encoder struct {
	mu    sync.Mutex
	color string
	width float64
	down  bool
	last  *types.Point
}

// New returns an Encoder with the pen up and the given brush.
func New(color string, width float64) *Encoder {
	return &Encoder{color: color, width: width}
}

// SetBrush changes the color and width used for subsequent events.
// The stroke in progress is not interrupted.
func (e *Encoder) SetBrush(color string, width float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.color = color
	e.width = width
}

// Brush returns the current color and width.
func (e *Encoder) Brush() (color string, width float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.color, e.width
}

// PenDown arms the encoder. The first Move after it starts a new stroke.
func (e *Encoder) PenDown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.down = true
	e.last = nil
}

// Move records p. While the pen is down it returns the segment ending at p
// and advances the anchor; with the pen up it returns false.
func (e *Encoder) Move(p types.Point) (types.DrawEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.down {
		return types.DrawEvent{}, false
	}

	ev := types.DrawEvent{
		PrevPoint:    e.last,
		CurrentPoint: p,
		Color:        e.color,
		LineWidth:    e.width,
	}
	next := p
	e.last = &next
	return ev, true
}

// PenUp ends the stroke.
func (e *Encoder) PenUp() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.down = false
	e.last = nil
}

// Reset drops the anchor without lifting the pen. A clear received mid-stroke
// makes the next segment render as a standalone dot.
func (e *Encoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = nil
}
