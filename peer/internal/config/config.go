package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultServerURL        = "ws://localhost:3001/ws"
	DefaultWidth            = 1100
	DefaultHeight           = 690
	DefaultColor            = "#000000"
	DefaultLineWidth        = 5
	DefaultSyncTimeout      = 5 * time.Second
	DefaultSnapshotInterval = 10 * time.Second
	DefaultMaxMessageBytes  = 8 << 20
	DefaultLogLevel         = "info"

	// MaxSide bounds width and height.
	MaxSide = 8192
)

// Environment variables that override values from the config file.
const (
	EnvServerURL = "SKETCHRELAY_SERVER_URL"
	EnvOutput    = "SKETCHRELAY_PEER_OUTPUT"
	EnvLogLevel  = "SKETCHRELAY_LOG_LEVEL"
)

// Config is the peer's view of the config file.
type Config struct {
	Peer PeerConfig `yaml:"peer"`
}

// PeerConfig holds all peer-side settings.
type PeerConfig struct {
	// ServerURL is the relay's WebSocket endpoint (ws:// or wss://).
	ServerURL string `yaml:"server_url"`

	// Width and Height size the local surface.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Color and LineWidth are the brush used for local drawing.
	Color     string  `yaml:"color"`
	LineWidth float64 `yaml:"line_width"`

	// SyncTimeout bounds how long the peer waits for a snapshot before it
	// treats the session as blank and starts drawing.
	SyncTimeout time.Duration `yaml:"sync_timeout"`

	// Output is the PNG file the mirrored board is written to.
	// Empty disables writing.
	Output string `yaml:"output"`

	// SnapshotInterval is how often Output is rewritten.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`

	// MaxMessageBytes is the largest inbound frame accepted from the relay.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// Level returns the slog level for LogLevel. Unknown values map to info.
func (p PeerConfig) Level() slog.Level {
	switch strings.ToLower(p.LogLevel) {
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

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults. An empty path yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("peer config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("peer config: parse yaml: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("peer config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Peer: PeerConfig{
			ServerURL:        DefaultServerURL,
			Width:            DefaultWidth,
			Height:           DefaultHeight,
			Color:            DefaultColor,
			LineWidth:        DefaultLineWidth,
			SyncTimeout:      DefaultSyncTimeout,
			SnapshotInterval: DefaultSnapshotInterval,
			MaxMessageBytes:  DefaultMaxMessageBytes,
			LogLevel:         DefaultLogLevel,
		},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvServerURL); v != "" {
		cfg.Peer.ServerURL = v
	}
	if v := os.Getenv(EnvOutput); v != "" {
		cfg.Peer.Output = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Peer.LogLevel = v
	}
}

var hexValidator = validator.New()

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	p := cfg.Peer
	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return fmt.Errorf("peer.server_url: %w", err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("peer.server_url %q must be a ws:// or wss:// URL", p.ServerURL)
	}
	if p.Width <= 0 || p.Width > MaxSide || p.Height <= 0 || p.Height > MaxSide {
		return fmt.Errorf("peer size %dx%d is out of range [1, %d]", p.Width, p.Height, MaxSide)
	}
	if err := hexValidator.Var(p.Color, "required,hexcolor"); err != nil {
		return fmt.Errorf("peer.color %q is not a hex color", p.Color)
	}
	if p.LineWidth <= 0 || p.LineWidth > 512 {
		return fmt.Errorf("peer.line_width %v is out of range (0, 512]", p.LineWidth)
	}
	if p.SyncTimeout <= 0 {
		return fmt.Errorf("peer.sync_timeout must be positive")
	}
	if p.Output != "" && p.SnapshotInterval <= 0 {
		return fmt.Errorf("peer.snapshot_interval must be positive when output is set")
	}
	if p.MaxMessageBytes <= 0 {
		return fmt.Errorf("peer.max_message_bytes must be positive")
	}
	switch strings.ToLower(p.LogLevel) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("peer.log_level %q unknown: want debug|info|warn|error", p.LogLevel)
	}
	return nil
}
