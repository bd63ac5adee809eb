package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"ops-notifier/internal/docstore"
)

type fakeClaims struct {
	mu       sync.Mutex
	receipts map[string]bool
	err      error
}

func newFakeClaims() *fakeClaims {
	return &fakeClaims{receipts: make(map[string]bool)}
}

func (f *fakeClaims) CreateReceipt(_ context.Context, ref docstore.Ref, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	key := ref.Path() + "#" + eventID
	if f.receipts[key] {
		return docstore.ErrAlreadyExists
	}
	f.receipts[key] = true
	return nil
}

func (f *fakeClaims) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.receipts)
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []docstore.Notification
	err     error
}

func (f *fakeRecorder) MergeNotification(_ context.Context, _ docstore.Ref, n docstore.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, n)
	return nil
}

type sentMail struct {
	apiKey  string
	from    string
	to      []string
	subject string
}

type fakeMailer struct {
	mu    sync.Mutex
	sends []sentMail
	err   error
}

func (f *fakeMailer) Send(_ context.Context, apiKey, from string, to []string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, sentMail{apiKey: apiKey, from: from, to: to, subject: msg.Subject})
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func completedEvent(eventID string) Event {
	return Event{
		ID:  eventID,
		Ref: docstore.Ref{AppID: "app-1", DocID: "doc-1"},
		Snapshot: map[string]interface{}{
			"userId": "u1",
			"totals": map[string]interface{}{
				"answered":          10,
				"questions":         10,
				"completionPercent": 100,
			},
		},
	}
}

func TestHandleHappyPath(t *testing.T) {
	claims := newFakeClaims()
	recorder := &fakeRecorder{}
	mailer := &fakeMailer{}
	notifier := New(claims, recorder, validSecrets(), mailer)

	if err := notifier.Handle(context.Background(), completedEvent("evt-1")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if mailer.count() != 1 {
		t.Fatalf("Expected exactly one send, got %d", mailer.count())
	}

	sent := mailer.sends[0]
	if !strings.Contains(sent.subject, "u1") {
		t.Errorf("Subject should contain the submitter id, got %q", sent.subject)
	}
	if sent.from != "noreply@example.com" {
		t.Errorf("Unexpected from address: %q", sent.from)
	}
	if len(sent.to) != 2 {
		t.Errorf("Expected the full reviewer roster, got %v", sent.to)
	}

	if len(recorder.records) != 1 {
		t.Fatalf("Expected one outcome record, got %d", len(recorder.records))
	}
	record := recorder.records[0]
	if record.Status != "sent" {
		t.Errorf("Outcome status should be sent, got %q", record.Status)
	}
	if record.LastEventID != "evt-1" {
		t.Errorf("Outcome should carry the event id, got %q", record.LastEventID)
	}
	if len(record.ReviewerEmails) != 2 {
		t.Errorf("Outcome should carry the reviewer roster, got %v", record.ReviewerEmails)
	}
}

func TestHandleDuplicateDelivery(t *testing.T) {
	claims := newFakeClaims()
	recorder := &fakeRecorder{}
	mailer := &fakeMailer{}
	notifier := New(claims, recorder, validSecrets(), mailer)

	if err := notifier.Handle(context.Background(), completedEvent("evt-1")); err != nil {
		t.Fatalf("First delivery failed: %v", err)
	}
	if err := notifier.Handle(context.Background(), completedEvent("evt-1")); err != nil {
		t.Fatalf("Duplicate delivery should terminate cleanly, got %v", err)
	}

	if mailer.count() != 1 {
		t.Errorf("Duplicate delivery should not send again, got %d sends", mailer.count())
	}
	if len(recorder.records) != 1 {
		t.Errorf("Duplicate delivery should not record again, got %d records", len(recorder.records))
	}
}

func TestHandleEmptyPayload(t *testing.T) {
	claims := newFakeClaims()
	mailer := &fakeMailer{}
	notifier := New(claims, &fakeRecorder{}, validSecrets(), mailer)

	evt := Event{ID: "evt-empty", Ref: docstore.Ref{AppID: "app-1", DocID: "doc-1"}}
	if err := notifier.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Empty payload should terminate cleanly, got %v", err)
	}

	if claims.count() != 0 {
		t.Error("Empty payload should not attempt a claim")
	}
	if mailer.count() != 0 {
		t.Error("Empty payload should not send")
	}
}

func TestHandleEmptyRosterRejectedBeforeSend(t *testing.T) {
	store := validSecrets()
	store[SecretReviewerEmails] = " , ,"
	mailer := &fakeMailer{}
	notifier := New(newFakeClaims(), &fakeRecorder{}, store, mailer)

	err := notifier.Handle(context.Background(), completedEvent("evt-1"))

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected a ConfigurationError, got %v", err)
	}
	if mailer.count() != 0 {
		t.Error("Configuration failure should reject before any send attempt")
	}
}

func TestHandleClaimInfrastructureFailure(t *testing.T) {
	claims := newFakeClaims()
	claims.err = errors.New("connection reset")
	mailer := &fakeMailer{}
	notifier := New(claims, &fakeRecorder{}, validSecrets(), mailer)

	err := notifier.Handle(context.Background(), completedEvent("evt-1"))

	var claimErr *ClaimError
	if !errors.As(err, &claimErr) {
		t.Fatalf("Expected a ClaimError, got %v", err)
	}
	if mailer.count() != 0 {
		t.Error("Claim failure should abort before any send attempt")
	}
}

func TestHandleProviderFailure(t *testing.T) {
	claims := newFakeClaims()
	recorder := &fakeRecorder{}
	mailer := &fakeMailer{err: &DispatchError{Message: "quota exceeded"}}
	notifier := New(claims, recorder, validSecrets(), mailer)

	err := notifier.Handle(context.Background(), completedEvent("evt-1"))

	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) {
		t.Fatalf("Expected a DispatchError, got %v", err)
	}
	if dispatchErr.Message != "quota exceeded" {
		t.Errorf("DispatchError should carry the provider message, got %q", dispatchErr.Message)
	}
	if len(recorder.records) != 0 {
		t.Error("No outcome should be recorded after a failed send")
	}

	// The receipt was written before the send, so a redelivery with the
	// same event id terminates as a duplicate without another send.
	mailer.err = nil
	if err := notifier.Handle(context.Background(), completedEvent("evt-1")); err != nil {
		t.Fatalf("Redelivery after claim should terminate cleanly, got %v", err)
	}
	if mailer.count() != 0 {
		t.Errorf("Redelivery should be suppressed by the existing receipt, got %d sends", mailer.count())
	}
}

func TestHandleRecordFailureStillSucceeds(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("write timeout")}
	mailer := &fakeMailer{}
	notifier := New(newFakeClaims(), recorder, validSecrets(), mailer)

	if err := notifier.Handle(context.Background(), completedEvent("evt-1")); err != nil {
		t.Fatalf("Outcome record failure should not fail the invocation, got %v", err)
	}
	if mailer.count() != 1 {
		t.Errorf("Expected exactly one send, got %d", mailer.count())
	}
}

func TestConcurrentDeliveriesSendOnce(t *testing.T) {
	claims := newFakeClaims()
	recorder := &fakeRecorder{}
	mailer := &fakeMailer{}
	notifier := New(claims, recorder, validSecrets(), mailer)

	const deliveries = 16
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)

	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- notifier.Handle(context.Background(), completedEvent("evt-race"))
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent delivery failed: %v", err)
		}
	}

	if mailer.count() != 1 {
		t.Errorf("Exactly one delivery should win the claim, got %d sends", mailer.count())
	}
	if len(recorder.records) != 1 {
		t.Errorf("Exactly one outcome should be recorded, got %d", len(recorder.records))
	}
}
