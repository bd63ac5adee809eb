// Command grantreviewer grants or revokes the reviewer authorization flag
// on a user identity, addressed by uid or email. The review UI reads the
// flag; the notifier itself never does.
//
// Usage:
//
//	grantreviewer -email seth@example.com
//	grantreviewer -uid abc123 -reviewer=false
//	grantreviewer -email seth@example.com -admin true
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"ops-notifier/internal/config"
	"ops-notifier/internal/database"
	"ops-notifier/internal/docstore"
)

func main() {
	uid := flag.String("uid", "", "user id to update")
	email := flag.String("email", "", "user email to update")
	reviewer := flag.Bool("reviewer", true, "grant (true) or revoke (false) the reviewer flag")
	admin := flag.String("admin", "", "optionally set the admin flag (true or false)")
	flag.Parse()

	if err := run(*uid, *email, *reviewer, *admin); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to update reviewer claim.")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(uid, email string, reviewer bool, admin string) error {
	if uid == "" && email == "" {
		return fmt.Errorf("you must provide either -uid or -email")
	}
	if uid != "" && email != "" {
		return fmt.Errorf("provide only one of -uid or -email, not both")
	}

	claims := map[string]bool{"reviewer": reviewer}
	if admin != "" {
		adminClaim, err := parseBool(admin)
		if err != nil {
			return err
		}
		claims["admin"] = adminClaim
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := docstore.NewStore(db.DB)
	if err := store.SetUserClaims(ctx, uid, email, claims); err != nil {
		return err
	}

	gotUID, gotEmail, gotClaims, err := store.GetUser(ctx, uid, email)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]interface{}{
		"uid":    gotUID,
		"email":  gotEmail,
		"claims": gotClaims,
	}, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println("Updated custom claims successfully.")
	fmt.Println(string(out))
	fmt.Println("Ask the user to sign out/in for claim changes to take effect.")

	return nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value: %s (use true or false)", value)
}
