// Package stroke turns pointer movement into draw-line events.
//
// An Encoder tracks whether the pen is down and the last point of the
// current stroke. PenDown arms it, each Move while armed yields a
// types.DrawEvent from the previous point to the new one, and PenUp or
// Reset drops the anchor so the next stroke starts with a nil PrevPoint.
//
// ParsePoints reads the "x,y x,y ..." lists the peer binary takes on its
// command line.
package stroke
