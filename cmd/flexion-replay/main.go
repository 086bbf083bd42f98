package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/claude/flexion/internal/config"
	"github.com/claude/flexion/internal/replay"
	"github.com/claude/flexion/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dir := flag.String("dir", "", "directory of .jsonl recordings (required)")
	dryRun := flag.Bool("dry-run", false, "replay through the engine but don't write to the database")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("flexion-replay", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *dir == "" {
		fmt.Fprintf(os.Stderr, "Usage: flexion-replay -config config.yaml -dir /path/to/recordings [-dry-run]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	info, err := os.Stat(*dir)
	if err != nil || !info.IsDir() {
		log.Error("recordings directory not found", "path", *dir)
		os.Exit(1)
	}

	// Open state database
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Error("failed to get home directory", "error", err)
		os.Exit(1)
	}
	state, err := replay.OpenStateDB(filepath.Join(homeDir, ".flexion-replay"))
	if err != nil {
		log.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	ctx := context.Background()

	// Connect the database unless dry-running; config is only needed then, so
	// recordings can be validated on a machine with no server setup at all.
	var db *storage.DB
	if *dryRun {
		log.Info("DRY RUN mode — recordings will be replayed but nothing written")
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		dsn := cfg.Database.DSN()
		if err := storage.RunMigrations(dsn, "migrations"); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		db, err = storage.New(ctx, dsn)
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		log.Info("database connected")
	}

	replayer := replay.New(db, state, *dir, *dryRun, log)
	stats, err := replayer.Run(ctx)
	if err != nil {
		log.Error("replay failed", "error", err)
		printStats(stats)
		os.Exit(1)
	}

	printStats(stats)
	log.Info("replay complete")
}

func printStats(stats *replay.Stats) {
	fmt.Println()
	fmt.Println("=== Replay Summary ===")
	fmt.Printf("  Files total:      %d\n", stats.FilesTotal)
	fmt.Printf("  Files replayed:   %d\n", stats.FilesReplayed)
	fmt.Printf("  Files skipped:    %d (already replayed or empty)\n", stats.FilesSkipped)
	fmt.Printf("  Files errored:    %d\n", stats.FilesErrored)
	fmt.Println()
	fmt.Printf("  Samples fed:      %d\n", stats.SamplesFed)
	fmt.Printf("  Samples dropped:  %d\n", stats.SamplesDropped)
	fmt.Printf("  Reps recorded:    %d\n", stats.RepsRecorded)
	fmt.Printf("  Sessions stored:  %d\n", stats.SessionsInserted)
	fmt.Println()
}
