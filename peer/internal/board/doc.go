// Package board is a drawing peer's side of the join/sync protocol.
//
// A Board owns a raster surface and drives one session per transport:
//
//	Connecting ──client-ready──▶ AwaitingSync ──canvas-state-from-server──▶ Synced
//
// Inbound events while the session lasts:
//   - get-canvas-state: encode the surface and reply canvas-state, echoing
//     the request ID.
//   - canvas-state-from-server: decode and overwrite the surface. The last
//     snapshot received wins. Undecodable snapshots are logged and skipped.
//   - draw-line: validate and render. Invalid events are logged and skipped.
//   - clear: wipe the surface and drop the local stroke anchor.
//
// Staying in AwaitingSync is equivalent to being synced to a blank canvas.
// Draw and clear events are applied in every state.
//
// Local drawing goes through PenDown, MoveTo and PenUp. MoveTo renders the
// segment immediately and sends it; Clear only sends, and the surface clears
// when the hub relays the signal back.
package board
