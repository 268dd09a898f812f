package api

import "github.com/sketchrelay/sketchrelay/server/internal/session"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string  `json:"status"`
	Peers         int     `json:"peers"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	SyncMode      string  `json:"sync_mode"`
}

// PeersResponse is the payload for GET /api/v1/peers.
type PeersResponse struct {
	Count int            `json:"count"`
	Peers []session.Info `json:"peers"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
