// Package docstore persists submission documents and the notification
// bookkeeping that hangs off them. The receipt create is the only operation
// with transactional semantics: it either creates the row or reports
// ErrAlreadyExists, backed by the store's primary-key constraint rather than
// a read-then-write.
package docstore

import (
	"errors"
	"fmt"
)

// ErrAlreadyExists is returned when a create hits an existing document
var ErrAlreadyExists = errors.New("document already exists")

// ErrNotFound is returned when the addressed document does not exist
var ErrNotFound = errors.New("document not found")

// Ref identifies one submission document
type Ref struct {
	AppID string
	DocID string
}

// Path returns the document path used in logs
func (r Ref) Path() string {
	return fmt.Sprintf("%s/completedAssessments/%s", r.AppID, r.DocID)
}

// Notification is the sub-object merged onto a submission after a
// successful send. notifiedAt is assigned by the store at write time.
type Notification struct {
	ReviewerEmails []string `json:"reviewerEmails"`
	LastEventID    string   `json:"lastEventId"`
	Status         string   `json:"status"`
}
