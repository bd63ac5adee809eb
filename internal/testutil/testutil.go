// Package testutil starts throwaway Postgres and Vault containers for
// integration tests. Tests using it should be guarded with testing.Short.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/vault"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/lib/pq"

	"ops-notifier/internal/database"
)

// PostgresHarness holds a running Postgres container with migrations applied
type PostgresHarness struct {
	Container *postgres.PostgresContainer
	DB        *sql.DB
	DSN       string
}

// SetupPostgres starts a Postgres container and runs the migrations
func SetupPostgres(t *testing.T) *PostgresHarness {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18",
		postgres.WithDatabase("opsnotifier_test"),
		postgres.WithUsername("opsnotifier_test"),
		postgres.WithPassword("opsnotifier_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	migrator := database.NewMigrationExecutor(db)
	if err := migrator.RunMigrations(filepath.Join("..", "..", "migrations")); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &PostgresHarness{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}
}

// Cleanup closes the connection and terminates the container
func (h *PostgresHarness) Cleanup(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	if h.DB != nil {
		if err := h.DB.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	}

	if h.Container != nil {
		if err := h.Container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}
}

// VaultHarness holds a running Vault dev container
type VaultHarness struct {
	Container *vault.VaultContainer
	Addr      string
	Token     string
}

// SetupVault starts a Vault container in dev mode
func SetupVault(t *testing.T) *VaultHarness {
	t.Helper()
	ctx := context.Background()

	container, err := vault.Run(ctx,
		"hashicorp/vault:1.15",
		vault.WithToken("test-token"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Vault server started!").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start Vault container: %v", err)
	}

	addr, err := container.HttpHostAddress(ctx)
	if err != nil {
		t.Fatalf("Failed to get Vault address: %v", err)
	}

	return &VaultHarness{
		Container: container,
		Addr:      fmt.Sprintf("http://%s", addr),
		Token:     "test-token",
	}
}

// Cleanup terminates the container
func (h *VaultHarness) Cleanup(t *testing.T) {
	t.Helper()

	if h.Container != nil {
		if err := h.Container.Terminate(context.Background()); err != nil {
			t.Errorf("Failed to terminate Vault container: %v", err)
		}
	}
}
