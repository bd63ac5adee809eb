// Package trigger delivers submission-created events to a handler with
// at-least-once semantics and stable invocation ids. Events live in the
// submission_events table, written by a database trigger in the same
// transaction as the submission insert; the feed drains them with
// FOR UPDATE SKIP LOCKED leases and uses LISTEN/NOTIFY as a wakeup so a
// freshly created submission is usually picked up within a second.
package trigger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ops-notifier/internal/config"
	"ops-notifier/internal/docstore"
	"ops-notifier/internal/notify"
)

// Handler consumes one event delivery. A nil return marks the event
// processed; an error schedules a redelivery of the same event id.
type Handler interface {
	Handle(ctx context.Context, evt notify.Event) error
}

// Feed drains the submission event outbox
type Feed struct {
	db      *sql.DB
	dsn     string
	cfg     config.FeedConfig
	handler Handler
}

// NewFeed creates a feed. The DSN is used for the notification listener,
// which needs its own connection.
func NewFeed(db *sql.DB, dsn string, cfg config.FeedConfig, handler Handler) *Feed {
	return &Feed{
		db:      db,
		dsn:     dsn,
		cfg:     cfg,
		handler: handler,
	}
}

// Run delivers events until the context is canceled
func (f *Feed) Run(ctx context.Context) error {
	listener := pq.NewListener(f.dsn, 10*time.Second, time.Minute, func(event pq.ListenerEventType, err error) {
		if err != nil {
			slog.Error("Feed listener error", "error", err)
		}
	})
	defer func() {
		if err := listener.Close(); err != nil {
			slog.Error("Failed to close feed listener", "error", err)
		}
	}()

	if err := listener.Listen(f.cfg.Channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.cfg.Channel, err)
	}

	slog.Info("Trigger feed started",
		"channel", f.cfg.Channel,
		"poll_interval", f.cfg.PollInterval,
		"batch_size", f.cfg.BatchSize,
	)

	for {
		processed, err := f.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			slog.Error("Feed batch failed", "error", err)
		}
		if processed > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-listener.Notify:
		case <-time.After(f.cfg.PollInterval):
		}
	}
}

// RunOnce leases one batch of due events and delivers them. Returns the
// number of events handled.
func (f *Feed) RunOnce(ctx context.Context) (int, error) {
	events, err := f.lease(ctx)
	if err != nil {
		return 0, err
	}

	for _, evt := range events {
		f.deliver(ctx, evt)
	}

	return len(events), nil
}

// Enqueue re-delivers an existing submission under a fresh invocation id.
// Used for manual remediation of submissions whose notification was lost.
func (f *Feed) Enqueue(ctx context.Context, ref docstore.Ref) (string, error) {
	eventID := uuid.NewString()

	query := `
		INSERT INTO submission_events (event_id, app_id, doc_id, snapshot)
		SELECT $1, app_id, doc_id, doc FROM submissions WHERE app_id = $2 AND doc_id = $3
	`

	result, err := f.db.ExecContext(ctx, query, eventID, ref.AppID, ref.DocID)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue submission event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to check enqueue result: %w", err)
	}
	if rows == 0 {
		return "", docstore.ErrNotFound
	}

	return eventID, nil
}

type leasedEvent struct {
	rowID    int64
	attempts int
	event    notify.Event
}

// lease claims a batch of due events. The lease bumps the attempt counter
// and pushes next_attempt_at forward so a worker that dies mid-delivery
// leaves its events to be retried with the same event id.
func (f *Feed) lease(ctx context.Context) ([]leasedEvent, error) {
	query := `
		UPDATE submission_events
		SET attempts = attempts + 1,
		    next_attempt_at = now() + make_interval(secs => $3)
		WHERE id IN (
			SELECT id FROM submission_events
			WHERE processed_at IS NULL
			  AND next_attempt_at <= now()
			  AND attempts < $1
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id::text, app_id, doc_id, snapshot, attempts
	`

	rows, err := f.db.QueryContext(ctx, query, f.cfg.MaxAttempts, f.cfg.BatchSize, f.cfg.InitialBackoff.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to lease events: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			slog.Error("Failed to close rows", "error", err)
		}
	}(rows)

	var events []leasedEvent
	for rows.Next() {
		var lease leasedEvent
		var snapshot []byte
		err := rows.Scan(
			&lease.rowID,
			&lease.event.ID,
			&lease.event.Ref.AppID,
			&lease.event.Ref.DocID,
			&snapshot,
			&lease.attempts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &lease.event.Snapshot); err != nil {
				slog.Warn("Discarding unreadable event snapshot",
					"event_id", lease.event.ID,
					"error", err,
				)
				lease.event.Snapshot = nil
			}
		}

		events = append(events, lease)
	}

	return events, rows.Err()
}

// deliver runs the handler for one leased event and records the outcome
func (f *Feed) deliver(ctx context.Context, lease leasedEvent) {
	err := f.handler.Handle(ctx, lease.event)
	if err == nil {
		if markErr := f.markProcessed(ctx, lease.rowID); markErr != nil {
			// The lease expiry redelivers; the receipt makes that a no-op.
			slog.Error("Failed to mark event processed", "event_id", lease.event.ID, "error", markErr)
		}
		return
	}

	if lease.attempts >= f.cfg.MaxAttempts {
		slog.Error("Event delivery exhausted all attempts",
			"event_id", lease.event.ID,
			"submission_path", lease.event.Ref.Path(),
			"attempts", lease.attempts,
			"error", err,
		)
	} else {
		slog.Warn("Event delivery failed; will retry",
			"event_id", lease.event.ID,
			"attempts", lease.attempts,
			"retry_in", f.backoff(lease.attempts),
			"error", err,
		)
	}

	if markErr := f.markFailed(ctx, lease.rowID, lease.attempts, err); markErr != nil {
		slog.Error("Failed to record event failure", "event_id", lease.event.ID, "error", markErr)
	}
}

func (f *Feed) markProcessed(ctx context.Context, rowID int64) error {
	query := `UPDATE submission_events SET processed_at = now(), last_error = NULL WHERE id = $1`
	_, err := f.db.ExecContext(ctx, query, rowID)
	return err
}

func (f *Feed) markFailed(ctx context.Context, rowID int64, attempts int, cause error) error {
	query := `
		UPDATE submission_events
		SET next_attempt_at = now() + make_interval(secs => $2), last_error = $3
		WHERE id = $1
	`
	_, err := f.db.ExecContext(ctx, query, rowID, f.backoff(attempts).Seconds(), cause.Error())
	return err
}

// backoff returns the delay before the next delivery attempt, doubling per
// attempt up to the configured maximum
func (f *Feed) backoff(attempts int) time.Duration {
	delay := f.cfg.InitialBackoff
	for i := 1; i < attempts && delay < f.cfg.MaxBackoff; i++ {
		delay *= 2
	}
	if delay > f.cfg.MaxBackoff {
		delay = f.cfg.MaxBackoff
	}
	return delay
}
