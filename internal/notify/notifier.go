// Package notify implements the review-notification pipeline for completed
// assessment submissions: claim the trigger event, resolve configuration,
// compose the message, dispatch it, and record the outcome.
//
// The receipt is created before the send is attempted, matching the
// behavior the reviewer workflow was built against: a delivery that dies
// between claim and send is not re-sent automatically and needs manual
// re-enqueueing.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"ops-notifier/internal/docstore"
	"ops-notifier/internal/secrets"
)

// Event is one delivery of a submission-created trigger. ID is the
// invocation id assigned by the feed; it stays stable across redeliveries
// of the same event.
type Event struct {
	ID       string
	Ref      docstore.Ref
	Snapshot map[string]interface{}
}

// ClaimStore attempts the atomic create of an event receipt. It must return
// docstore.ErrAlreadyExists when the receipt is present, and any other
// error only for infrastructure failures.
type ClaimStore interface {
	CreateReceipt(ctx context.Context, ref docstore.Ref, eventID string) error
}

// OutcomeRecorder merges the notification status onto the submission
type OutcomeRecorder interface {
	MergeNotification(ctx context.Context, ref docstore.Ref, n docstore.Notification) error
}

// Notifier orchestrates one trigger invocation end to end
type Notifier struct {
	claims   ClaimStore
	recorder OutcomeRecorder
	secrets  secrets.Store
	mailer   Mailer
}

// New creates a notifier
func New(claims ClaimStore, recorder OutcomeRecorder, store secrets.Store, mailer Mailer) *Notifier {
	return &Notifier{
		claims:   claims,
		recorder: recorder,
		secrets:  store,
		mailer:   mailer,
	}
}

// Handle processes one trigger event. A nil return means the invocation is
// finished: either the notification went out, or there was nothing to do
// (empty payload, duplicate delivery). A non-nil return asks the host to
// redeliver the same event.
func (n *Notifier) Handle(ctx context.Context, evt Event) error {
	if len(evt.Snapshot) == 0 {
		slog.Warn("No snapshot data in trigger event", "event_id", evt.ID)
		return nil
	}

	err := n.claims.CreateReceipt(ctx, evt.Ref, evt.ID)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		slog.Info("Notification event already processed; skipping duplicate send",
			"event_id", evt.ID,
			"submission_path", evt.Ref.Path(),
		)
		return nil
	}
	if err != nil {
		return &ClaimError{Err: err}
	}

	settings, err := ResolveSettings(ctx, n.secrets)
	if err != nil {
		return err
	}

	sub, err := ParseSubmission(evt.Snapshot)
	if err != nil {
		return err
	}

	msg := Compose(sub, ComposeContext{
		AppID:        evt.Ref.AppID,
		DocID:        evt.Ref.DocID,
		ReviewAppURL: settings.ReviewAppURL,
	})

	if err := n.mailer.Send(ctx, settings.APIKey, settings.FromEmail, settings.ReviewerEmails, msg); err != nil {
		slog.Error("Failed to send submission notification",
			"event_id", evt.ID,
			"error", err,
		)
		return err
	}

	// Best-effort bookkeeping: the send already happened, so a failure here
	// is logged rather than raised. Raising would request a redelivery the
	// receipt would then suppress.
	err = n.recorder.MergeNotification(ctx, evt.Ref, docstore.Notification{
		ReviewerEmails: settings.ReviewerEmails,
		LastEventID:    evt.ID,
		Status:         "sent",
	})
	if err != nil {
		slog.Error("Failed to record notification outcome",
			"event_id", evt.ID,
			"submission_path", evt.Ref.Path(),
			"error", err,
		)
	}

	slog.Info("Submission review notification sent",
		"event_id", evt.ID,
		"submission_path", evt.Ref.Path(),
		"reviewer_count", len(settings.ReviewerEmails),
	)

	return nil
}
