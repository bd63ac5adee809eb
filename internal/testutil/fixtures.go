package testutil

import (
	"database/sql"
	"testing"
)

// CreateUser inserts a user row with the given claims JSON
func CreateUser(t *testing.T, db *sql.DB, uid, email, claims string) {
	t.Helper()

	query := `INSERT INTO users (uid, email, claims) VALUES ($1, $2, $3::jsonb)`
	if _, err := db.Exec(query, uid, email, claims); err != nil {
		t.Fatalf("Failed to create user %s: %v", uid, err)
	}
}
