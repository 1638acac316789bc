package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/tutorbill/tutorbill/internal/config"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/migrations"
)

func main() {
	// Parse command line flags
	dryRun := flag.Bool("dry-run", false, "Print migration SQL without executing it")
	flag.Parse()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	names, err := migrations.List()
	if err != nil {
		logger.Fatalw("Failed to read migrations", "error", err)
	}

	// Check if we're in dry-run mode
	if *dryRun {
		logger.Info("Dry run mode - printing migration SQL without executing")
		for _, name := range names {
			sqlBytes, err := migrations.FS.ReadFile(name)
			if err != nil {
				logger.Fatalw("Failed to read migration", "file", name, "error", err)
			}
			fmt.Printf("-- %s\n%s\n", name, sqlBytes)
		}
		return
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host)
	db, err := sqlx.Connect("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Run the actual migration
	logger.Info("Running database migrations...")
	for _, name := range names {
		sqlBytes, err := migrations.FS.ReadFile(name)
		if err != nil {
			logger.Fatalw("Failed to read migration", "file", name, "error", err)
		}
		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			logger.Fatalw("Migration failed", "file", name, "error", err)
		}
		logger.Infow("Applied migration", "file", name)
	}
	logger.Info("Migrations completed successfully")
}
