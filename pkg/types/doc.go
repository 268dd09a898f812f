// Package types defines the wire protocol shared by sketchrelay-server and
// sketchrelay-peer: event names, the JSON envelope every frame travels in,
// and the DrawEvent payload together with its validation rules.
//
// Every WebSocket text frame carries exactly one Envelope:
//
//	{"event": "draw-line", "data": {...}, "from": "<peer id>", "requestId": "<id>"}
//
// The hub stamps From on relayed frames; RequestID is only used when the hub
// runs in elected sync mode.
package types
