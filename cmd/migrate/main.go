package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var (
		command       string
		steps         int
		migrationsDir string
		databaseURL   string
	)

	flag.StringVar(&command, "command", "up", "Migration command: up, down, force, version, drop")
	flag.IntVar(&steps, "steps", 0, "Number of migrations to run (0 = all)")
	flag.StringVar(&migrationsDir, "dir", "migrations", "Path to migrations directory")
	flag.StringVar(&databaseURL, "database", "", "Database URL (overrides DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		log.Error("DATABASE_URL environment variable or -database flag is required")
		os.Exit(1)
	}

	absPath, err := filepath.Abs(migrationsDir)
	if err != nil {
		log.Error("resolving migrations directory failed", "err", err)
		os.Exit(1)
	}
	sourceURL := fmt.Sprintf("file://%s", absPath)

	log.Info("starting migration", "source", sourceURL, "command", command, "steps", steps)

	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		log.Error("creating migrate instance failed", "err", err)
		os.Exit(1)
	}
	defer m.Close()

	switch command {
	case "up":
		err = runUp(m, steps)
	case "down":
		err = runDown(m, steps)
	case "force":
		if steps == 0 {
			log.Error("force command requires -steps flag with version number")
			os.Exit(1)
		}
		err = m.Force(steps)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			if errors.Is(verr, migrate.ErrNilVersion) {
				log.Info("no migrations have been applied yet")
				return
			}
			log.Error("reading version failed", "err", verr)
			os.Exit(1)
		}
		log.Info("current migration version", "version", version, "dirty", dirty)
		return
	case "drop":
		err = m.Drop()
	default:
		log.Error("unknown command", "command", command)
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no migrations to apply")
			return
		}
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}

	log.Info("migration completed successfully")
}

func runUp(m *migrate.Migrate, steps int) error {
	if steps > 0 {
		return m.Steps(steps)
	}
	return m.Up()
}

func runDown(m *migrate.Migrate, steps int) error {
	if steps > 0 {
		return m.Steps(-steps)
	}
	return m.Down()
}
