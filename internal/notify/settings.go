package notify

import (
	"context"
	"strings"

	"ops-notifier/internal/secrets"
)

// Secret names resolved at invocation time
const (
	SecretAPIKey         = "RESEND_API_KEY"
	SecretFromEmail      = "RESEND_FROM_EMAIL"
	SecretReviewerEmails = "REVIEWER_EMAILS"
	SecretReviewAppURL   = "REVIEW_APP_URL"
)

// Settings holds the resolved notifier configuration for one invocation
type Settings struct {
	APIKey         string
	FromEmail      string
	ReviewerEmails []string
	ReviewAppURL   string
}

// ResolveSettings reads the four required secrets and parses the reviewer
// roster. Returns a ConfigurationError if any value is missing or the
// roster is empty after parsing.
func ResolveSettings(ctx context.Context, store secrets.Store) (*Settings, error) {
	apiKey, err := store.Get(ctx, SecretAPIKey)
	if err != nil {
		return nil, &ConfigurationError{Reason: SecretAPIKey + " unavailable", Err: err}
	}

	fromEmail, err := store.Get(ctx, SecretFromEmail)
	if err != nil {
		return nil, &ConfigurationError{Reason: SecretFromEmail + " unavailable", Err: err}
	}

	reviewerEmailsRaw, err := store.Get(ctx, SecretReviewerEmails)
	if err != nil {
		return nil, &ConfigurationError{Reason: SecretReviewerEmails + " unavailable", Err: err}
	}

	reviewAppURL, err := store.Get(ctx, SecretReviewAppURL)
	if err != nil {
		return nil, &ConfigurationError{Reason: SecretReviewAppURL + " unavailable", Err: err}
	}

	reviewerEmails := parseReviewerEmails(reviewerEmailsRaw)
	if len(reviewerEmails) == 0 {
		return nil, &ConfigurationError{Reason: SecretReviewerEmails + " did not contain any valid email addresses"}
	}

	return &Settings{
		APIKey:         apiKey,
		FromEmail:      fromEmail,
		ReviewerEmails: reviewerEmails,
		ReviewAppURL:   reviewAppURL,
	}, nil
}

// parseReviewerEmails splits a comma-delimited roster, trimming whitespace
// and discarding empty tokens
func parseReviewerEmails(raw string) []string {
	var emails []string
	for _, token := range strings.Split(raw, ",") {
		if email := strings.TrimSpace(token); email != "" {
			emails = append(emails, email)
		}
	}
	return emails
}
