package models

import "time"

// AnyTicket is the tier id of a waitlist entry that accepts any tier.
const AnyTicket = "any"

// WaitlistStatus tracks a waitlist entry.
type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistNotified  WaitlistStatus = "notified"
	WaitlistPurchased WaitlistStatus = "purchased"
	WaitlistExpired   WaitlistStatus = "expired"
)

// WaitlistEntry queues a user for a sold out tier.
type WaitlistEntry struct {
	ID         string         `json:"id"`
	EventID    string         `json:"eventId"`
	TicketID   string         `json:"ticketId"`
	Email      string         `json:"email"`
	UserID     *string        `json:"userId,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	Status     WaitlistStatus `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
	NotifiedAt *time.Time     `json:"notifiedAt,omitempty"`
	ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
}

// Matches reports whether the entry is eligible for the given tier.
func (w *WaitlistEntry) Matches(ticketID string) bool {
	if ticketID == "" || ticketID == AnyTicket {
		return true
	}
	return w.TicketID == ticketID || w.TicketID == AnyTicket
}

// HoldActive reports whether a notified entry still owns its purchase window.
func (w *WaitlistEntry) HoldActive(now time.Time) bool {
	return w.Status == WaitlistNotified && w.ExpiresAt != nil && now.Before(*w.ExpiresAt)
}

// Clone returns a deep copy safe to hand out of a store.
func (w *WaitlistEntry) Clone() *WaitlistEntry {
	if w == nil {
		return nil
	}
	c := *w
	if w.UserID != nil {
		id := *w.UserID
		c.UserID = &id
	}
	if w.NotifiedAt != nil {
		t := *w.NotifiedAt
		c.NotifiedAt = &t
	}
	if w.ExpiresAt != nil {
		t := *w.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}
