// Package main is the entry point for the affirmations API server.
//
// The main package stays small. It reads configuration, builds the logger,
// makes sure the sqlite directory exists and hands everything to
// internal/server, which owns the rest of the wiring.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/affirmations/internal/config"
	"github.com/sakif/affirmations/internal/logging"
	"github.com/sakif/affirmations/internal/repository/sqlstore"
	"github.com/sakif/affirmations/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// === 1. CONFIGURATION ===
	// .env is optional; real environment variables override it.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// === 2. LOGGING ===
	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	// === 3. DATABASE DIRECTORY ===
	if cfg.DBDriver == sqlstore.DriverSQLite && cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			return err
		}
	}

	if len(cfg.AdminEmails) == 0 {
		logger.Warn("ADMIN_EMAILS not set; nobody can reach /api/admin")
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
