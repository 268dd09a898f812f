// Package config loads the server-side configuration from the `server:` section
// of the config file (the `peer:` key is ignored by the server binary).
//
// Config fields:
//   - HTTPPort: WebSocket endpoint and REST API (default 3001)
//   - AdminPort: gRPC health/reflection server (default 50051, 0 disables)
//   - LogLevel: debug | info | warn | error (default info)
//   - AllowedOrigins: browser origins allowed to connect (empty = any)
//   - Relay.SyncMode: broadcast | elected (default broadcast)
//   - Relay.EchoDraw: also send draw-line back to its sender
//   - Relay.*: max_peers, send_buffer, max_message_bytes, write_timeout, pong_wait
//
// Load(path) applies defaults before unmarshalling, then the SKETCHRELAY_*
// environment overrides, then validates. Watch(ctx, path, onChange) watches
// the file's directory and reloads after each save; the server applies the
// log level and relay policy live.
package config
