// Command migrator applies, rolls back or reports the embedded schema
// migrations. Usage: migrator [up|down|version]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/doguto/nari-note-sub000/internal/config"
	"github.com/doguto/nari-note-sub000/internal/database"
	"github.com/doguto/nari-note-sub000/internal/observability"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	log, err := observability.NewLogger(observability.LogConfig{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		App:    "nari-note-migrator",
		Env:    os.Getenv("APP_ENV"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if err := run(cmd, log); err != nil {
		log.Error("migration failed", zap.String("command", cmd), zap.Error(err))
		os.Exit(1)
	}
}

func run(cmd string, log *zap.Logger) error {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return errors.New("DATABASE_URL is empty")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.NewPostgresConnection(ctx, config.Database{URL: dsn})
	if err != nil {
		return err
	}
	defer db.Close()

	switch cmd {
	case "up":
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	case "down":
		if err := database.Rollback(ctx, db); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown command %q (want up, down or version)", cmd)
	}

	v, err := database.Version(ctx, db)
	if err != nil {
		return err
	}
	log.Info("migrations done", zap.String("command", cmd), zap.Int64("version", v))
	return nil
}
