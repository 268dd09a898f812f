// Package canvas is the peer's raster surface and snapshot codec.
//
// Surface wraps a gogpu/gg software context and implements the three
// operations the sync protocol needs: RenderSegment, RenderSnapshot and
// ClearSurface. PNGCodec turns a surface image into the data URL carried by
// canvas-state frames and back.
package canvas
