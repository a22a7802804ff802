package notify

import (
	"context"
	"time"

	"nightlife/internal/logging"
)

// Notification types published by the service.
const (
	TypeOrderConfirmed   = "order.confirmed"
	TypeOrderCancelled   = "order.cancelled"
	TypeWaitlistNotified = "waitlist.notified"
)

// Message is a single outbound notification. Delivery to the user (email,
// SMS) happens downstream of the topic.
type Message struct {
	Type      string            `json:"type"`
	EventID   string            `json:"eventId"`
	OrderID   string            `json:"orderId,omitempty"`
	EntryID   string            `json:"entryId,omitempty"`
	Email     string            `json:"email,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Notifier dispatches notifications.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the log. It is used when no broker is
// configured.
type LogNotifier struct{}

// Notify logs msg.
func (LogNotifier) Notify(ctx context.Context, msg Message) error {
	logging.FromContext(ctx).Info().
		Str("type", msg.Type).
		Str("event_id", msg.EventID).
		Str("order_id", msg.OrderID).
		Str("email", msg.Email).
		Msg("notification")
	return nil
}
