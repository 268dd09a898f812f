// Package api builds the HTTP router of sketchrelay-server.
//
// New(relay, recorder, ws, uiDir) returns a chi router that serves:
//
//	GET /ws              - WebSocket endpoint (the hub)
//	GET /healthz         - liveness probe, plain "ok"
//	GET /metrics         - Prometheus text exposition
//	GET /api/v1/health   - status, peer count, uptime, active sync mode
//	GET /api/v1/peers    - connected peers in join order
//	GET /api/v1/stats    - relay counters per event and drops per reason
//	GET /*               - static browser client from uiDir, if set
//
// JSON endpoints respond with Content-Type: application/json, and unknown
// routes and non-GET methods get a JSON error body. Types are in types.go.
package api
