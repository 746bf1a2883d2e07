package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tailscale.com/tsnet"

	"github.com/claude/repflow/internal/config"
	"github.com/claude/repflow/internal/engine"
	"github.com/claude/repflow/internal/reconciler"
	"github.com/claude/repflow/internal/recovery"
	"github.com/claude/repflow/internal/server"
	"github.com/claude/repflow/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("repflow starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Open database (migrations run on open)
	ctx := context.Background()
	var store storage.Store
	switch cfg.Database.Driver {
	case "postgres":
		store, err = storage.OpenPostgres(ctx, cfg.Database.DSN())
	default:
		store, err = storage.OpenSQLite(cfg.Database.Path)
	}
	if err != nil {
		log.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("database ready", "driver", cfg.Database.Driver)

	// Wire the engine and its save worker
	eng := engine.New(store, store, store, log)
	rec := reconciler.New(store, eng, reconcilerConfig(cfg.Engine), log)
	eng.SetSaver(rec)
	rec.Start()
	defer rec.Stop()

	// Recover an unfinished session from a previous run
	if m, err := recovery.New(store, store, log).Load(ctx); err != nil {
		log.Error("session recovery failed", "error", err)
		os.Exit(1)
	} else if m != nil {
		if err := eng.Restore(m); err != nil {
			log.Error("restoring recovered session failed", "error", err)
			os.Exit(1)
		}
	}

	// Create server
	srv := server.New(eng, store, cfg.Auth.APIKey, log)

	// Start server — tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	// Flush the live session so the next boot recovers it.
	if err := rec.FinalSave(shutdownCtx); err != nil {
		log.Error("final flush failed", "error", err)
	}
	log.Info("server stopped")
}

func reconcilerConfig(ec config.EngineConfig) reconciler.Config {
	return reconciler.Config{
		AutosaveInterval: time.Duration(ec.AutosaveSec) * time.Second,
		EagerSuppression: time.Duration(ec.EagerSuppressSec) * time.Second,
		BackoffBase:      time.Duration(ec.BackoffBaseMs) * time.Millisecond,
		BackoffCap:       time.Duration(ec.BackoffCapMs) * time.Millisecond,
		RoutineAttempts:  ec.RoutineAttempts,
		UrgentAttempts:   ec.UrgentAttempts,
	}
}
