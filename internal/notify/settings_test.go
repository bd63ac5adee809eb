package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeSecrets map[string]string

func (f fakeSecrets) Get(_ context.Context, name string) (string, error) {
	value, ok := f[name]
	if !ok {
		return "", fmt.Errorf("secret %s is missing or empty", name)
	}
	return value, nil
}

func validSecrets() fakeSecrets {
	return fakeSecrets{
		SecretAPIKey:         "re_test_key",
		SecretFromEmail:      "noreply@example.com",
		SecretReviewerEmails: "a@example.com, b@example.com",
		SecretReviewAppURL:   "https://review.example.com",
	}
}

func TestResolveSettings(t *testing.T) {
	settings, err := ResolveSettings(context.Background(), validSecrets())
	if err != nil {
		t.Fatalf("Failed to resolve settings: %v", err)
	}

	if settings.APIKey != "re_test_key" {
		t.Errorf("Unexpected API key: %q", settings.APIKey)
	}
	if len(settings.ReviewerEmails) != 2 {
		t.Fatalf("Expected 2 reviewer emails, got %d", len(settings.ReviewerEmails))
	}
	if settings.ReviewerEmails[0] != "a@example.com" || settings.ReviewerEmails[1] != "b@example.com" {
		t.Errorf("Reviewer emails should be trimmed, got %v", settings.ReviewerEmails)
	}
}

func TestResolveSettingsEmptyRoster(t *testing.T) {
	for _, raw := range []string{"", " , ,"} {
		store := validSecrets()
		store[SecretReviewerEmails] = raw

		_, err := ResolveSettings(context.Background(), store)

		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("Roster %q should yield a ConfigurationError, got %v", raw, err)
		}
	}
}

func TestResolveSettingsMissingSecret(t *testing.T) {
	for _, name := range []string{SecretAPIKey, SecretFromEmail, SecretReviewerEmails, SecretReviewAppURL} {
		store := validSecrets()
		delete(store, name)

		_, err := ResolveSettings(context.Background(), store)

		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("Missing %s should yield a ConfigurationError, got %v", name, err)
		}
	}
}

func TestParseReviewerEmails(t *testing.T) {
	got := parseReviewerEmails(" a@x.com ,, b@y.com , ")
	if len(got) != 2 || got[0] != "a@x.com" || got[1] != "b@y.com" {
		t.Errorf("Unexpected parse result: %v", got)
	}
}
