package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 3001
	DefaultAdminPort       = 50051
	DefaultLogLevel        = "info"
	DefaultSyncMode        = SyncBroadcast
	DefaultSendBuffer      = 256
	DefaultMaxMessageBytes = 8 << 20
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPongWait        = 60 * time.Second
)

// Sync modes for answering client-ready.
const (
	// SyncBroadcast asks every other peer for its canvas and relays every
	// reply to everyone. The last snapshot a peer receives wins.
	SyncBroadcast = "broadcast"

	// SyncElected asks only the earliest-connected other peer, tagging the
	// request so the reply is routed back to the joiner alone.
	SyncElected = "elected"
)

// Environment variables that override values from the config file.
const (
	EnvHTTPPort  = "SKETCHRELAY_HTTP_PORT"
	EnvAdminPort = "SKETCHRELAY_ADMIN_PORT"
	EnvLogLevel  = "SKETCHRELAY_LOG_LEVEL"
	EnvSyncMode  = "SKETCHRELAY_SYNC_MODE"
)

// Config holds the server-side configuration parsed from the `server:` section
// of the config file. The `peer:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the WebSocket endpoint and REST API listen on (default 3001).
	HTTPPort int `yaml:"http_port"`

	// AdminPort is the port of the gRPC health/reflection server.
	// Zero disables the admin server.
	AdminPort int `yaml:"admin_port"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// AllowedOrigins restricts which browser origins may open a socket.
	// Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Relay controls fan-out and sync behaviour of the hub.
	Relay RelayConfig `yaml:"relay"`
}

// RelayConfig controls how the hub routes events.
type RelayConfig struct {
	// SyncMode is one of: broadcast | elected.
	SyncMode string `yaml:"sync_mode"`

	// EchoDraw sends draw-line events back to their sender as well.
	EchoDraw bool `yaml:"echo_draw"`

	// MaxPeers caps the session size. Zero means unlimited.
	MaxPeers int `yaml:"max_peers"`

	// SendBuffer is the per-peer outgoing queue depth. A peer whose queue
	// is full is disconnected.
	SendBuffer int `yaml:"send_buffer"`

	// MaxMessageBytes is the largest inbound frame accepted. Snapshots are
	// full-canvas images, so this is generous.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`

	// WriteTimeout is the deadline for a single write to a peer.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PongWait is how long a peer may stay silent before it is dropped.
	PongWait time.Duration `yaml:"pong_wait"`
}

// Level returns the slog level for LogLevel. Unknown values map to info.
func (s ServerConfig) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults, then environment overrides are
// applied before validation. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("server config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("server config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:  DefaultHTTPPort,
			AdminPort: DefaultAdminPort,
			LogLevel:  DefaultLogLevel,
			Relay: RelayConfig{
				SyncMode:        DefaultSyncMode,
				SendBuffer:      DefaultSendBuffer,
				MaxMessageBytes: DefaultMaxMessageBytes,
				WriteTimeout:    DefaultWriteTimeout,
				PongWait:        DefaultPongWait,
			},
		},
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvHTTPPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHTTPPort, err)
		}
		cfg.Server.HTTPPort = port
	}
	if v := os.Getenv(EnvAdminPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAdminPort, err)
		}
		cfg.Server.AdminPort = port
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv(EnvSyncMode); v != "" {
		cfg.Server.Relay.SyncMode = v
	}
	return nil
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.AdminPort < 0 || s.AdminPort > 65535 {
		return fmt.Errorf("server.admin_port %d is out of range [0, 65535]", s.AdminPort)
	}
	if s.AdminPort != 0 && s.AdminPort == s.HTTPPort {
		return fmt.Errorf("server.admin_port must differ from server.http_port")
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	switch s.Relay.SyncMode {
	case SyncBroadcast, SyncElected:
	default:
		return fmt.Errorf("server.relay.sync_mode %q unknown: want broadcast|elected", s.Relay.SyncMode)
	}
	if s.Relay.MaxPeers < 0 {
		return fmt.Errorf("server.relay.max_peers must not be negative")
	}
	if s.Relay.SendBuffer <= 0 {
		return fmt.Errorf("server.relay.send_buffer must be positive")
	}
	if s.Relay.MaxMessageBytes <= 0 {
		return fmt.Errorf("server.relay.max_message_bytes must be positive")
	}
	if s.Relay.WriteTimeout <= 0 {
		return fmt.Errorf("server.relay.write_timeout must be positive")
	}
	if s.Relay.PongWait <= 0 {
		return fmt.Errorf("server.relay.pong_wait must be positive")
	}
	return nil
}
