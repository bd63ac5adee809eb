package notify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Submission is the subset of a completed-assessment document the composer
// reads. Fields absent from the document keep their zero values.
type Submission struct {
	SubmissionID string  `json:"submissionId"`
	UserID       string  `json:"userId"`
	Totals       *Totals `json:"totals"`
}

// Totals holds the completion counters of a submission
type Totals struct {
	Answered          int `json:"answered"`
	Questions         int `json:"questions"`
	CompletionPercent int `json:"completionPercent"`
}

// ComposeContext carries the trigger parameters the composer needs
type ComposeContext struct {
	AppID        string
	DocID        string
	ReviewAppURL string
}

// Message is a composed notification ready for dispatch
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// ParseSubmission decodes a submission document snapshot
func ParseSubmission(snapshot map[string]interface{}) (Submission, error) {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return Submission{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	var sub Submission
	if err := json.Unmarshal(body, &sub); err != nil {
		return Submission{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return sub, nil
}

// Compose builds the reviewer notification for a submission. It is a pure
// function of its inputs: the same submission and context always produce
// the same message.
func Compose(sub Submission, ctx ComposeContext) Message {
	userID := sub.UserID
	if userID == "" {
		userID = "unknown-user"
	}

	var answered, total, completionPercent int
	if sub.Totals != nil {
		answered = sub.Totals.Answered
		total = sub.Totals.Questions
		completionPercent = sub.Totals.CompletionPercent
	}

	submissionID := sub.SubmissionID
	if submissionID == "" {
		submissionID = ctx.DocID
	}

	reviewURL := reviewLink(ctx.ReviewAppURL)
	subject := fmt.Sprintf("New Ops Assessment Submission: %s", userID)

	text := strings.Join([]string{
		"A new operations assessment has been submitted for review.",
		"",
		fmt.Sprintf("App ID: %s", ctx.AppID),
		fmt.Sprintf("Submission ID: %s", submissionID),
		fmt.Sprintf("Submitter: %s", userID),
		fmt.Sprintf("Completion: %d/%d (%d%%)", answered, total, completionPercent),
		"",
		fmt.Sprintf("Review now: %s", reviewURL),
	}, "\n")

	html := fmt.Sprintf(`
<div style="font-family: Inter, Arial, sans-serif; line-height: 1.5; color: #0f172a;">
    <h2 style="margin-bottom: 8px;">New operations assessment submitted</h2>
    <p style="margin-top: 0;">A completed assessment is ready for review and analysis.</p>
    <ul style="padding-left: 18px;">
        <li><strong>App ID:</strong> %s</li>
        <li><strong>Submission ID:</strong> %s</li>
        <li><strong>Submitter:</strong> %s</li>
        <li><strong>Completion:</strong> %d/%d (%d%%)</li>
    </ul>
    <p>
        <a href="%s" style="display: inline-block; padding: 10px 14px; background: #0f172a; color: white; text-decoration: none; border-radius: 6px;">
            Open Reviewer View
        </a>
    </p>
</div>
`, ctx.AppID, submissionID, userID, answered, total, completionPercent, reviewURL)

	return Message{
		Subject: subject,
		Text:    text,
		HTML:    html,
	}
}

// reviewLink appends the review=1 query parameter to the base URL, using
// & when the base URL already carries a query string
func reviewLink(baseURL string) string {
	separator := "?"
	if strings.Contains(baseURL, "?") {
		separator = "&"
	}
	return baseURL + separator + "review=1"
}
