package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := Load(writeFile(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Valid(t *testing.T) {
	cfg := loadFromString(t, `
peer:
  server_url: "wss://board.example/ws"
  width: 800
  height: 600
  color: "#ff8800"
  line_width: 3
  sync_timeout: 2s
  output: board.png
  snapshot_interval: 30s
  max_message_bytes: 1048576
  log_level: debug
`)
	p := cfg.Peer
	if p.ServerURL != "wss://board.example/ws" {
		t.Errorf("server_url: got %q", p.ServerURL)
	}
	if p.Width != 800 || p.Height != 600 {
		t.Errorf("size: got %dx%d", p.Width, p.Height)
	}
	if p.Color != "#ff8800" || p.LineWidth != 3 {
		t.Errorf("brush: got %q %v", p.Color, p.LineWidth)
	}
	if p.SyncTimeout != 2*time.Second {
		t.Errorf("sync_timeout: got %v", p.SyncTimeout)
	}
	if p.Output != "board.png" || p.SnapshotInterval != 30*time.Second {
		t.Errorf("output: got %q every %v", p.Output, p.SnapshotInterval)
	}
	if p.MaxMessageBytes != 1<<20 {
		t.Errorf("max_message_bytes: got %d", p.MaxMessageBytes)
	}
	if p.Level() != slog.LevelDebug {
		t.Errorf("level: got %v", p.Level())
	}
}

func TestLoad_Defaults(t *testing.T) {
	// Only the server section present; the peer runs on defaults.
	cfg := loadFromString(t, `
server:
  http_port: 3001
`)
	p := cfg.Peer
	if p.ServerURL != DefaultServerURL {
		t.Errorf("server_url: got %q, want %q", p.ServerURL, DefaultServerURL)
	}
	if p.Width != DefaultWidth || p.Height != DefaultHeight {
		t.Errorf("size: got %dx%d", p.Width, p.Height)
	}
	if p.Color != DefaultColor || p.LineWidth != DefaultLineWidth {
		t.Errorf("brush: got %q %v", p.Color, p.LineWidth)
	}
	if p.SyncTimeout != DefaultSyncTimeout {
		t.Errorf("sync_timeout: got %v", p.SyncTimeout)
	}
	if p.Output != "" {
		t.Errorf("output: got %q, want empty", p.Output)
	}
	if p.Level() != slog.LevelInfo {
		t.Errorf("level: got %v", p.Level())
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Peer.Width != DefaultWidth {
		t.Errorf("width: got %d", cfg.Peer.Width)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvServerURL, "ws://relay:9000/ws")
	t.Setenv(EnvOutput, "/tmp/board.png")
	t.Setenv(EnvLogLevel, "warn")

	cfg := loadFromString(t, `
peer:
  server_url: "ws://localhost:3001/ws"
`)
	if cfg.Peer.ServerURL != "ws://relay:9000/ws" {
		t.Errorf("server_url: got %q", cfg.Peer.ServerURL)
	}
	if cfg.Peer.Output != "/tmp/board.png" {
		t.Errorf("output: got %q", cfg.Peer.Output)
	}
	if cfg.Peer.Level() != slog.LevelWarn {
		t.Errorf("level: got %v", cfg.Peer.Level())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"http url", `peer: {server_url: "http://localhost:3001/ws"}`, "server_url"},
		{"no host", `peer: {server_url: "ws:///ws"}`, "server_url"},
		{"zero width", `peer: {width: 0}`, "size"},
		{"too tall", `peer: {height: 9000}`, "size"},
		{"bad color", `peer: {color: "black"}`, "color"},
		{"zero line width", `peer: {line_width: 0}`, "line_width"},
		{"huge line width", `peer: {line_width: 600}`, "line_width"},
		{"zero sync timeout", `peer: {sync_timeout: 0s}`, "sync_timeout"},
		{"output without interval", `peer: {output: a.png, snapshot_interval: 0s}`, "snapshot_interval"},
		{"zero max message", `peer: {max_message_bytes: 0}`, "max_message_bytes"},
		{"bad level", `peer: {log_level: loud}`, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeFile(t, "peer: [unclosed")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
