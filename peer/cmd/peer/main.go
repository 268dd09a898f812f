package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gogpu/gg"
	"github.com/joho/godotenv"

	"github.com/sketchrelay/sketchrelay/peer/internal/board"
	"github.com/sketchrelay/sketchrelay/peer/internal/canvas"
	"github.com/sketchrelay/sketchrelay/peer/internal/config"
	"github.com/sketchrelay/sketchrelay/peer/internal/stroke"
	"github.com/sketchrelay/sketchrelay/peer/internal/transport"
	"github.com/sketchrelay/sketchrelay/pkg/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file; empty runs on defaults")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the config")
	drawFlag := flag.String("draw", "", `stroke to draw once joined, as "x,y x,y ..."`)
	origin := flag.String("origin", "", "Origin header sent with the handshake")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	gg.SetLogger(logger)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load env file", "path", *envFile, "err", err)
	}

	slog.Info("sketchrelay-peer starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Peer.Level())
	slog.Info("config loaded",
		"server_url", cfg.Peer.ServerURL,
		"width", cfg.Peer.Width,
		"height", cfg.Peer.Height,
		"output", cfg.Peer.Output,
	)

	points, err := stroke.ParsePoints(*drawFlag)
	if err != nil {
		slog.Error("invalid -draw", "err", err)
		os.Exit(1)
	}

	surface, err := canvas.NewSurface(cfg.Peer.Width, cfg.Peer.Height)
	if err != nil {
		slog.Error("failed to create surface", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := board.New(surface, canvas.NewPNGCodec(cfg.Peer.Width, cfg.Peer.Height), board.Options{
		Color:     cfg.Peer.Color,
		LineWidth: cfg.Peer.LineWidth,
		Logger:    logger,
	})

	var header http.Header
	if *origin != "" {
		header = http.Header{"Origin": []string{*origin}}
	}
	client := transport.New(transport.Options{
		URL:             cfg.Peer.ServerURL,
		MaxMessageBytes: cfg.Peer.MaxMessageBytes,
		Header:          header,
		Logger:          logger,
	})

	// The transport keeps a session running; the surface outlives each one.
	go client.Run(ctx, func(ctx context.Context, conn *transport.Conn) error {
		return b.Run(ctx, conn)
	})

	if len(points) > 0 {
		go drawOnce(ctx, b, points, cfg.Peer.SyncTimeout)
	}

	if cfg.Peer.Output == "" {
		<-ctx.Done()
		slog.Info("sketchrelay-peer shutting down")
		return
	}

	ticker := time.NewTicker(cfg.Peer.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("sketchrelay-peer shutting down")
			writeSnapshot(surface, cfg.Peer.Output)
			return
		case <-ticker.C:
			writeSnapshot(surface, cfg.Peer.Output)
		}
	}
}

// drawOnce waits for the first snapshot, or sync timeout on an empty
// session, then draws pts as one stroke.
func drawOnce(ctx context.Context, b *board.Board, pts []types.Point, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-b.Synced():
	case <-timer.C:
		slog.Info("no snapshot before sync timeout, drawing on the current canvas", "state", b.State())
	}

	b.PenDown()
	defer b.PenUp()
	for _, p := range pts {
		err := b.MoveTo(ctx, p)
		if errors.Is(err, board.ErrNotConnected) {
			slog.Warn("not connected, segment drawn locally only", "x", p.X, "y", p.Y)
			continue
		}
		if err != nil {
			slog.Error("draw failed", "err", err)
			return
		}
	}
	color, width := b.Brush()
	slog.Info("stroke drawn", "points", len(pts), "color", color, "line_width", width)
}

func writeSnapshot(s *canvas.Surface, path string) {
	if err := s.WritePNG(path); err != nil {
		slog.Error("failed to write snapshot", "path", path, "err", err)
		return
	}
	slog.Debug("snapshot written", "path", path)
}
