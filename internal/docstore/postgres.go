package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store handles submission document database operations
type Store struct {
	db *sql.DB
}

// NewStore creates a new document store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateSubmission inserts a new submission document with a generated doc id.
// The insert fires the submission_events trigger, which enqueues delivery.
func (s *Store) CreateSubmission(ctx context.Context, appID string, doc map[string]interface{}) (Ref, error) {
	ref := Ref{AppID: appID, DocID: uuid.NewString()}

	body, err := json.Marshal(doc)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to marshal submission: %w", err)
	}

	query := `INSERT INTO submissions (app_id, doc_id, doc) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, query, ref.AppID, ref.DocID, body); err != nil {
		if isUniqueViolation(err) {
			return Ref{}, ErrAlreadyExists
		}
		return Ref{}, fmt.Errorf("failed to create submission: %w", err)
	}

	return ref, nil
}

// GetSubmission retrieves a submission document
func (s *Store) GetSubmission(ctx context.Context, ref Ref) (map[string]interface{}, error) {
	var body []byte
	query := `SELECT doc FROM submissions WHERE app_id = $1 AND doc_id = $2`
	err := s.db.QueryRowContext(ctx, query, ref.AppID, ref.DocID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission: %w", err)
	}

	return doc, nil
}

// CreateReceipt atomically records that eventID has been claimed for the
// submission. Returns ErrAlreadyExists if a receipt for this event is
// already present; any other error is an infrastructure failure.
func (s *Store) CreateReceipt(ctx context.Context, ref Ref, eventID string) error {
	query := `
		INSERT INTO notification_receipts (app_id, doc_id, event_id, created_at)
		VALUES ($1, $2, $3, now())
	`

	if _, err := s.db.ExecContext(ctx, query, ref.AppID, ref.DocID, eventID); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create receipt: %w", err)
	}

	return nil
}

// MergeNotification merges the notification sub-object onto the submission
// document, leaving all other fields untouched. The notifiedAt timestamp is
// assigned server-side.
func (s *Store) MergeNotification(ctx context.Context, ref Ref, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	query := `
		UPDATE submissions
		SET doc = jsonb_set(doc, '{notification}', $3::jsonb || jsonb_build_object('notifiedAt', now()), true),
		    updated_at = now()
		WHERE app_id = $1 AND doc_id = $2
	`

	result, err := s.db.ExecContext(ctx, query, ref.AppID, ref.DocID, body)
	if err != nil {
		return fmt.Errorf("failed to merge notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check merge result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SetUserClaims merges authorization claims onto a user identity, addressed
// by uid or email. Existing unrelated claims are preserved.
func (s *Store) SetUserClaims(ctx context.Context, uid, email string, claims map[string]bool) error {
	body, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("failed to marshal claims: %w", err)
	}

	var query string
	var key string
	if uid != "" {
		query = `UPDATE users SET claims = claims || $2::jsonb WHERE uid = $1`
		key = uid
	} else {
		query = `UPDATE users SET claims = claims || $2::jsonb WHERE email = $1`
		key = email
	}

	result, err := s.db.ExecContext(ctx, query, key, body)
	if err != nil {
		return fmt.Errorf("failed to update claims: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check claims update: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// GetUser retrieves a user's uid, email and claims by uid or email
func (s *Store) GetUser(ctx context.Context, uid, email string) (string, string, map[string]bool, error) {
	var query string
	var key string
	if uid != "" {
		query = `SELECT uid, COALESCE(email, ''), claims FROM users WHERE uid = $1`
		key = uid
	} else {
		query = `SELECT uid, COALESCE(email, ''), claims FROM users WHERE email = $1`
		key = email
	}

	var gotUID, gotEmail string
	var body []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&gotUID, &gotEmail, &body)
	if err == sql.ErrNoRows {
		return "", "", nil, ErrNotFound
	}
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to get user: %w", err)
	}

	var claims map[string]bool
	if err := json.Unmarshal(body, &claims); err != nil {
		return "", "", nil, fmt.Errorf("failed to unmarshal claims: %w", err)
	}

	return gotUID, gotEmail, claims, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
