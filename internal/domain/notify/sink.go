// Package notify defines the best-effort notification boundary.
//
// The ledger engine calls out to a notification sink for low-stock alerts.
// Delivery is fire-and-forget from the engine's perspective: a send yields
// a Result that is observed and logged, never an error returned to the
// caller of an inventory operation, and it must never roll back inventory
// changes.
package notify

import (
	"context"
	"time"

	"larder/internal/core/id"
	"larder/pkg/logger"
)

// Notification is one message for one recipient.
type Notification struct {
	ID          id.ID          `db:"id" json:"id"`
	RecipientID id.ID          `db:"recipient_id" json:"recipientId"`
	Title       string         `db:"title" json:"title"`
	Message     string         `db:"message" json:"message"`
	Kind        string         `db:"kind" json:"kind"` // info, warning
	Metadata    map[string]any `db:"-" json:"metadata,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
}

// NewNotification builds a notification with a fresh id.
func NewNotification(recipientID id.ID, title, message, kind string) Notification {
	return Notification{
		ID:          id.New(),
		RecipientID: recipientID,
		Title:       title,
		Message:     message,
		Kind:        kind,
		CreatedAt:   time.Now().UTC(),
	}
}

// Result is the observed outcome of one best-effort send. It is a value,
// not an error channel: callers inspect and log it, they do not propagate.
type Result struct {
	NotificationID id.ID
	Err            error
}

// Failed reports whether the send failed.
func (r Result) Failed() bool { return r.Err != nil }

// Sink accepts notifications for delivery.
type Sink interface {
	Send(ctx context.Context, n Notification) Result
}

// Recipient is a notification target resolved by the identity collaborator.
type Recipient struct {
	ID   id.ID
	Name string
}

// Directory resolves who receives operational alerts. The engine never
// owns identity; the excluded request layer supplies an implementation.
type Directory interface {
	// Managers returns users with a manager or administrator role.
	Managers(ctx context.Context) ([]Recipient, error)
}

// --- Default implementations ---

// LogSink writes notifications to the structured log. Used when no
// delivery channel is configured.
type LogSink struct{}

// Send implements Sink.
func (LogSink) Send(ctx context.Context, n Notification) Result {
	logger.Info(ctx, "notification",
		"notification_id", n.ID,
		"recipient_id", n.RecipientID,
		"title", n.Title,
		"kind", n.Kind,
	)
	return Result{NotificationID: n.ID}
}

// StaticDirectory returns a fixed recipient set. Used by operational
// binaries and tests.
type StaticDirectory struct {
	Recipients []Recipient
}

// Managers implements Directory.
func (d StaticDirectory) Managers(ctx context.Context) ([]Recipient, error) {
	return d.Recipients, nil
}
