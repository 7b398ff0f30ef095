package clickup

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/quailyquaily/taskrelay/internal/relay"
)

const (
	EventTaskCommentPosted = "taskCommentPosted"
	SignatureHeader        = "X-Signature"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrIgnoredEvent     = errors.New("webhook event is not relayed")
)

type WebhookPayload struct {
	Event        string        `json:"event"`
	WebhookID    string        `json:"webhook_id,omitempty"`
	TaskID       string        `json:"task_id"`
	HistoryItems []HistoryItem `json:"history_items"`
}

type HistoryItem struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	User     struct {
		Username string `json:"username"`
		Email    string `json:"email,omitempty"`
	} `json:"user"`
	Comment *struct {
		ID          string `json:"id,omitempty"`
		TextContent string `json:"text_content"`
		Parent      string `json:"parent"`
	} `json:"comment,omitempty"`
}

// VerifySignature checks the hex HMAC-SHA256 of body against signature.
// An empty secret disables the check.
func VerifySignature(secret string, body []byte, signature string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the signature ClickUp would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseWebhook decodes a webhook body. Only JSON errors are reported here.
func ParseWebhook(body []byte) (WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookPayload{}, malformedf("decode webhook: %v", err)
	}
	return payload, nil
}

// DeliveryID identifies the webhook delivery; ClickUp reuses it on retries.
func (p WebhookPayload) DeliveryID() string {
	if len(p.HistoryItems) == 0 {
		return ""
	}
	return strings.TrimSpace(p.HistoryItems[0].ID)
}

// TaskComment turns the payload into a relay event. Events other than
// taskCommentPosted return ErrIgnoredEvent; payloads that are not usable wrap
// relay.ErrMalformedEvent.
func (p WebhookPayload) TaskComment() (relay.TaskCommentEvent, error) {
	event := strings.TrimSpace(p.Event)
	if event != "" && event != EventTaskCommentPosted {
		return relay.TaskCommentEvent{}, fmt.Errorf("%w: %s", ErrIgnoredEvent, event)
	}
	if len(p.HistoryItems) == 0 {
		return relay.TaskCommentEvent{}, malformedf("history_items is empty")
	}
	item := p.HistoryItems[0]
	if item.Comment == nil {
		return relay.TaskCommentEvent{}, malformedf("history item %s has no comment", item.ID)
	}
	taskID := strings.TrimSpace(p.TaskID)
	if taskID == "" {
		taskID = strings.TrimSpace(item.Comment.Parent)
	}
	if taskID == "" {
		return relay.TaskCommentEvent{}, malformedf("task id is missing")
	}
	return relay.TaskCommentEvent{
		ListID:      strings.TrimSpace(item.ParentID),
		TaskID:      taskID,
		CommentText: item.Comment.TextContent,
		AuthorName:  strings.TrimSpace(item.User.Username),
	}, nil
}

func malformedf(format string, args ...any) error {
	return &relay.Error{Kind: relay.KindMalformedEvent, Op: "decode_task_comment", Err: fmt.Errorf(format, args...)}
}
