// Package ws implements the relay hub of sketchrelay-server.
//
// Hub keeps the session (every connected peer) and relays drawing events
// between peers. New(registry, recorder, opts) creates a Hub; Hub.Run(ctx)
// runs the dispatch loop until ctx is cancelled and then closes every
// connection; Hub.ServeHTTP upgrades a request to WebSocket and serves one
// peer. The server mounts it at /ws.
//
// Every frame is a JSON envelope:
//
//	{"event": "draw-line", "data": {...}, "from": "<peer id>", "requestId": "..."}
//
// Routing:
//
//	client-ready   -> get-canvas-state to every other peer (broadcast mode)
//	                  or to the earliest-joined peer, tagged (elected mode)
//	canvas-state   -> canvas-state-from-server to every peer (broadcast)
//	                  or to the tagged requester only (elected)
//	draw-line      -> every other peer (plus the sender with echo_draw)
//	clear          -> every peer, the sender included
//
// Delivery is best effort. A peer whose send queue is full is disconnected;
// malformed frames and unknown events are dropped and counted, and never
// close the sender's connection.
package ws
