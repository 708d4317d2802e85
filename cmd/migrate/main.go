package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"

	"github.com/joao-fontenele/shopledger/migrations"
)

const usage = "usage: migrate [-steps n] <up|down|goto <version>|force <version>|version>"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	steps := flag.Int("steps", 1, "number of migrations to roll back with down")
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		logger.Error(usage)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	m, err := migrations.New(postgresURL)
	if err != nil {
		logger.Error("failed to create migrate instance", "error", err)
		os.Exit(1)
	}

	err = run(m, logger, args, *steps)
	if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
		logger.Warn("closing migrate instance", "source_error", srcErr, "database_error", dbErr)
	}
	if err != nil {
		logger.Error("migrate failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, logger *slog.Logger, args []string, steps int) error {
	switch command := args[0]; command {
	case "up":
		if err := m.Up(); err != nil {
			return noChange(logger, err, "no pending migrations")
		}
		logger.Info("migrations applied")

	case "down":
		if steps < 1 {
			return fmt.Errorf("steps must be positive, got %d", steps)
		}
		if err := m.Steps(-steps); err != nil {
			return noChange(logger, err, "no migrations to roll back")
		}
		logger.Info("migrations rolled back", "steps", steps)

	case "goto", "force":
		if len(args) < 2 {
			return errors.New(usage)
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("parse version %q: %w", args[1], err)
		}
		if command == "force" {
			if err := m.Force(int(version)); err != nil {
				return err
			}
			logger.Info("migration version forced", "version", version)
			return nil
		}
		if err := m.Migrate(uint(version)); err != nil {
			return noChange(logger, err, "already at requested version")
		}
		logger.Info("migrated to version", "version", version)

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("get version: %w", err)
		}
		logger.Info("current migration version", "version", version, "dirty", dirty)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func noChange(logger *slog.Logger, err error, msg string) error {
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info(msg)
		return nil
	}
	return err
}
