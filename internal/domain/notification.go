package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationKind identifies why a notification was raised.
type NotificationKind string

const NotificationKindTaskBlocked NotificationKind = "task_blocked"

// Notification is one message addressed to one recipient.
type Notification struct {
	ID          string
	ProjectID   string
	TaskID      string
	RecipientID string
	Kind        NotificationKind
	Message     string
	CreatedAt   time.Time
}

// NotificationInput holds input values for notification creation.
type NotificationInput struct {
	ID          string
	ProjectID   string
	TaskID      string
	RecipientID string
	Kind        NotificationKind
	Message     string
}

// NewNotification validates one notification.
func NewNotification(in NotificationInput, now time.Time) (Notification, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.TaskID = strings.TrimSpace(in.TaskID)
	in.RecipientID = strings.TrimSpace(in.RecipientID)
	in.Message = strings.TrimSpace(in.Message)
	if in.ID == "" || in.ProjectID == "" || in.TaskID == "" || in.RecipientID == "" {
		return Notification{}, ErrInvalidID
	}
	if in.Message == "" {
		return Notification{}, ErrInvalidMessage
	}
	if in.Kind == "" {
		in.Kind = NotificationKindTaskBlocked
	}
	return Notification{
		ID:          in.ID,
		ProjectID:   in.ProjectID,
		TaskID:      in.TaskID,
		RecipientID: in.RecipientID,
		Kind:        in.Kind,
		Message:     in.Message,
		CreatedAt:   now.UTC(),
	}, nil
}

// BlockedMessage renders the lead-facing text for a blocked task.
func BlockedMessage(taskTitle, reason string) string {
	return fmt.Sprintf("Task %q is blocked: %s", strings.TrimSpace(taskTitle), strings.TrimSpace(reason))
}
