package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/resend/resend-go/v2"
)

// Mailer dispatches a composed message to a recipient list. The API key is
// passed per call because it is resolved fresh on each invocation.
type Mailer interface {
	Send(ctx context.Context, apiKey, from string, to []string, msg Message) error
}

// ResendMailer sends mail through the Resend transactional email API
type ResendMailer struct {
	// BaseURL overrides the Resend API endpoint when non-empty
	BaseURL string
}

// NewResendMailer creates a Resend-backed mailer
func NewResendMailer() *ResendMailer {
	return &ResendMailer{}
}

// Send delivers the message to the whole recipient list in one request.
// Provider-reported failures surface as a DispatchError carrying the
// provider's message; transport-level errors propagate unchanged.
func (m *ResendMailer) Send(ctx context.Context, apiKey, from string, to []string, msg Message) error {
	client := resend.NewClient(apiKey)
	if m.BaseURL != "" {
		if base, err := url.Parse(m.BaseURL); err == nil {
			client.BaseURL = base
		}
	}

	sent, err := client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    from,
		To:      to,
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTML,
	})
	if err != nil {
		return classifySendError(err)
	}

	slog.Debug("Provider accepted message", "provider_id", sent.Id, "recipients", len(to))

	return nil
}

// classifySendError separates transport failures, which propagate unchanged,
// from provider-reported failures, which become a DispatchError
func classifySendError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return err
	}

	message := err.Error()
	if message == "" {
		message = "unknown error"
	}

	return &DispatchError{Message: message}
}
