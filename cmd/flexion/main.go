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

	"github.com/claude/flexion/internal/advisory"
	"github.com/claude/flexion/internal/config"
	"github.com/claude/flexion/internal/engine"
	"github.com/claude/flexion/internal/models"
	"github.com/claude/flexion/internal/server"
	"github.com/claude/flexion/internal/storage"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Sessions that stop receiving samples are finalized by a background sweep,
// so an abandoned session still gets its summary persisted.
const (
	sweepInterval  = time.Minute
	sessionMaxIdle = 5 * time.Minute
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("Flexion starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Run migrations
	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Connect database
	ctx := context.Background()
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	// Seed the exercise catalog (idempotent — ON CONFLICT DO NOTHING)
	seeded, err := db.SeedExercises(ctx, exerciseRows())
	if err != nil {
		log.Error("exercise seed failed", "error", err)
		os.Exit(1)
	}
	if seeded > 0 {
		log.Info("exercise catalog seeded", "inserted", seeded)
	}

	// Advisory clients. An unset URL leaves that advisor nil, which disables
	// it; the engine then adapts on its local ladder alone.
	var quality engine.QualityAdvisor
	var policy engine.PolicyAdvisor
	if cfg.Advisory.Enabled {
		if cfg.Advisory.QualityURL != "" {
			quality = advisory.NewQualityClient(cfg.Advisory.QualityURL, cfg.Advisory.Timeout())
		}
		if cfg.Advisory.PolicyURL != "" {
			policy = advisory.NewPolicyClient(cfg.Advisory.PolicyURL, cfg.Advisory.Timeout())
		}
		log.Info("advisory enabled",
			"quality", cfg.Advisory.QualityURL != "",
			"policy", cfg.Advisory.PolicyURL != "",
			"timeout", cfg.Advisory.Timeout())
	}

	// Create server
	srv := server.New(db, quality, policy, cfg.Advisory.Timeout(), cfg.Auth.APIKey, log)

	// Idle session janitor
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := srv.SweepIdleSessions(sessionMaxIdle); n > 0 {
					log.Info("idle sweep", "finalized", n)
				}
			case <-sweepDone:
				return
			}
		}
	}()

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

	close(sweepDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	// Finalize whatever is still live so summaries are not lost on restart.
	if n := srv.SweepIdleSessions(0); n > 0 {
		log.Info("finalized live sessions on shutdown", "count", n)
	}
	log.Info("server stopped")
}

// exerciseRows flattens the engine catalog for seeding.
func exerciseRows() []models.ExerciseRow {
	exercises := engine.Exercises()
	rows := make([]models.ExerciseRow, 0, len(exercises))
	for _, ex := range exercises {
		rows = append(rows, ex.Row())
	}
	return rows
}
