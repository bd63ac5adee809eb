package notify

import (
	"strings"
	"testing"
)

func TestComposeDeterminism(t *testing.T) {
	sub := Submission{
		SubmissionID: "sub-1",
		UserID:       "u1",
		Totals:       &Totals{Answered: 10, Questions: 10, CompletionPercent: 100},
	}
	ctx := ComposeContext{
		AppID:        "app-1",
		DocID:        "doc-1",
		ReviewAppURL: "https://review.example.com/app",
	}

	first := Compose(sub, ctx)
	second := Compose(sub, ctx)

	if first.Subject != second.Subject || first.Text != second.Text || first.HTML != second.HTML {
		t.Error("Compose should produce identical output for identical input")
	}

	if !strings.Contains(first.Subject, "u1") {
		t.Errorf("Subject should contain the submitter id, got %q", first.Subject)
	}

	if !strings.Contains(first.Text, "Completion: 10/10 (100%)") {
		t.Errorf("Text should contain the completion fraction, got %q", first.Text)
	}

	if !strings.Contains(first.Text, "Submission ID: sub-1") {
		t.Errorf("Text should prefer the submission's own id, got %q", first.Text)
	}
}

func TestComposeMissingFieldDefaults(t *testing.T) {
	msg := Compose(Submission{}, ComposeContext{
		AppID:        "app-1",
		DocID:        "doc-9",
		ReviewAppURL: "https://review.example.com",
	})

	if !strings.Contains(msg.Subject, "unknown-user") {
		t.Errorf("Subject should fall back to unknown-user, got %q", msg.Subject)
	}

	if !strings.Contains(msg.Text, "Completion: 0/0 (0%)") {
		t.Errorf("Missing totals should render as 0/0 (0%%), got %q", msg.Text)
	}

	if !strings.Contains(msg.Text, "Submission ID: doc-9") {
		t.Errorf("Missing submissionId should fall back to the document id, got %q", msg.Text)
	}

	if !strings.Contains(msg.HTML, "unknown-user") {
		t.Error("HTML should fall back to unknown-user")
	}
}

func TestReviewLinkSeparator(t *testing.T) {
	tests := []struct {
		baseURL string
		want    string
	}{
		{"https://x/y", "https://x/y?review=1"},
		{"https://x/y?ref=1", "https://x/y?ref=1&review=1"},
	}

	for _, tt := range tests {
		if got := reviewLink(tt.baseURL); got != tt.want {
			t.Errorf("reviewLink(%q) = %q, want %q", tt.baseURL, got, tt.want)
		}
	}
}

func TestComposeIncludesReviewLink(t *testing.T) {
	msg := Compose(Submission{UserID: "u1"}, ComposeContext{
		AppID:        "app-1",
		DocID:        "doc-1",
		ReviewAppURL: "https://review.example.com/app?ref=mail",
	})

	want := "https://review.example.com/app?ref=mail&review=1"
	if !strings.Contains(msg.Text, want) {
		t.Errorf("Text should contain review link %q, got %q", want, msg.Text)
	}
	if !strings.Contains(msg.HTML, want) {
		t.Errorf("HTML should contain review link %q", want)
	}
}

func TestParseSubmission(t *testing.T) {
	snapshot := map[string]interface{}{
		"submissionId": "sub-7",
		"userId":       "u7",
		"totals": map[string]interface{}{
			"answered":          float64(8),
			"questions":         float64(10),
			"completionPercent": float64(80),
		},
		"responses": map[string]interface{}{"q1": "yes"},
	}

	sub, err := ParseSubmission(snapshot)
	if err != nil {
		t.Fatalf("Failed to parse submission: %v", err)
	}

	if sub.SubmissionID != "sub-7" || sub.UserID != "u7" {
		t.Errorf("Unexpected identity fields: %+v", sub)
	}
	if sub.Totals == nil || sub.Totals.Answered != 8 || sub.Totals.Questions != 10 || sub.Totals.CompletionPercent != 80 {
		t.Errorf("Unexpected totals: %+v", sub.Totals)
	}
}

func TestParseSubmissionWithoutTotals(t *testing.T) {
	sub, err := ParseSubmission(map[string]interface{}{"userId": "u1"})
	if err != nil {
		t.Fatalf("Failed to parse submission: %v", err)
	}

	if sub.Totals != nil {
		t.Errorf("Totals should be nil when absent, got %+v", sub.Totals)
	}
}
