package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/sketchrelay/sketchrelay/server/internal/admin"
	"github.com/sketchrelay/sketchrelay/server/internal/api"
	"github.com/sketchrelay/sketchrelay/server/internal/config"
	"github.com/sketchrelay/sketchrelay/server/internal/metrics"
	"github.com/sketchrelay/sketchrelay/server/internal/session"
	"github.com/sketchrelay/sketchrelay/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file; empty runs on defaults")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the config")
	uiDir := flag.String("ui-dir", "", "serve a pre-built browser client from this directory; leave empty to disable")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load env file", "path", *envFile, "err", err)
	}

	slog.Info("sketchrelay-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.Level())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"admin_port", cfg.Server.AdminPort,
		"sync_mode", cfg.Server.Relay.SyncMode,
		"echo_draw", cfg.Server.Relay.EchoDraw,
		"max_peers", cfg.Server.Relay.MaxPeers,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// One registry per process, owned by the hub's dispatch loop.
	peers := session.New[*ws.Peer]()
	rec := metrics.New(peers.Count)
	hub := ws.New(peers, rec, ws.Options{
		Relay:          cfg.Server.Relay,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	// Hot reload covers the log level and the routing policy. Ports, buffers
	// and timeouts need a restart.
	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				level.Set(updated.Server.Level())
				hub.Reconfigure(updated.Server.Relay)
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           api.New(hub, rec, hub, *uiDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var adminSrv *admin.Server
	var adminLis net.Listener
	if cfg.Server.AdminPort != 0 {
		adminLis, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.AdminPort))
		if err != nil {
			slog.Error("failed to listen on admin port", "port", cfg.Server.AdminPort, "err", err)
			os.Exit(1)
		}
		adminSrv = admin.New(logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if adminSrv != nil {
		adminSrv.SetServing(true)
		g.Go(func() error {
			slog.Info("admin gRPC server listening", "port", cfg.Server.AdminPort, "services", adminSrv.Services())
			if err := adminSrv.Serve(adminLis); err != nil {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("sketchrelay-server shutting down")
		if adminSrv != nil {
			adminSrv.SetServing(false)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked WebSocket connections are not tracked by Shutdown; the hub
		// closes them when gctx ends.
		err := httpSrv.Shutdown(shutdownCtx)
		if adminSrv != nil {
			adminSrv.Stop()
		}
		return err
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("sketchrelay-server stopped")
}
