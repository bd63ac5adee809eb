package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ops-notifier/internal/config"
	"ops-notifier/internal/database"
	"ops-notifier/internal/docstore"
	"ops-notifier/internal/logger"
	"ops-notifier/internal/notify"
	"ops-notifier/internal/secrets"
	"ops-notifier/internal/trigger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Setup(logger.Config{
		Level: cfg.Log.Level,
	})

	slog.Info("Starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"log_level", cfg.Log.Level,
	)

	db, err := database.New(&cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func(db *database.Database) {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}(db)

	slog.Info("Database connection established")

	migrator := database.NewMigrationExecutor(db.DB)
	if err := migrator.RunMigrations("./migrations"); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations completed")

	secretStore, err := secrets.NewVaultStore(&cfg.Vault)
	if err != nil {
		slog.Error("Failed to create vault client", "error", err)
		os.Exit(1)
	}

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), 5*time.Second)
	if err := secretStore.Health(healthCtx); err != nil {
		cancelHealth()
		slog.Error("Vault health check failed", "error", err)
		os.Exit(1)
	}
	cancelHealth()
	slog.Info("Vault connection established")

	store := docstore.NewStore(db.DB)
	notifier := notify.New(store, store, secretStore, notify.NewResendMailer())
	feed := trigger.NewFeed(db.DB, cfg.Database.DSN(), cfg.Feed, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := feed.Run(ctx); err != nil {
		slog.Error("Trigger feed stopped", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutdown complete")
}
