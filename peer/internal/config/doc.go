// Package config loads the drawing peer's configuration.
//
// The peer reads the `peer:` section of the same config.yaml the server
// uses; the `server:` section is ignored here.
//
//   - PeerConfig: server_url, width, height, color, line_width,
//     sync_timeout, output, snapshot_interval, max_message_bytes, log_level
//
// Load(path) applies defaults (1100x690 canvas, black 5px brush, 5s sync
// timeout, 8 MiB frames), overlays SKETCHRELAY_SERVER_URL,
// SKETCHRELAY_PEER_OUTPUT and SKETCHRELAY_LOG_LEVEL, then validates.
package config
