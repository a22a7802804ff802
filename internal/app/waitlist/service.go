package waitlist

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"nightlife/internal/logging"
	"nightlife/internal/metrics"
	"nightlife/internal/models"
	"nightlife/internal/notify"
	"nightlife/internal/store"
)

// HoldWindow is how long a notified entry has priority access.
const HoldWindow = 15 * time.Minute

// Store describes the persistence operations required by the waitlist.
type Store interface {
	JoinWaitlist(ctx context.Context, entry *models.WaitlistEntry) (*models.WaitlistEntry, bool, error)
	NotifyNextWaiting(ctx context.Context, eventID, ticketID string, now time.Time, window time.Duration) (*models.WaitlistEntry, error)
	ListWaitlistByEmail(ctx context.Context, eventID, email string) ([]*models.WaitlistEntry, error)
	SetWaitlistStatus(ctx context.Context, id string, from, to models.WaitlistStatus) error
}

// JoinRequest is the payload accepted when joining a waitlist.
type JoinRequest struct {
	EventID  string  `json:"eventId"`
	TicketID string  `json:"ticketId"`
	UserID   *string `json:"userId,omitempty"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone"`
}

// Service exposes waitlist workflows.
type Service interface {
	// Join queues the caller, returning the existing waiting entry with
	// created=false when the email already waits for the event.
	Join(ctx context.Context, req JoinRequest) (entry *models.WaitlistEntry, created bool, err error)
	Process(ctx context.Context, eventID, ticketID string) (*models.WaitlistEntry, error)
	VerifyAccess(ctx context.Context, eventID, email string) (bool, error)
	MarkPurchased(ctx context.Context, eventID, email string) error
}

type service struct {
	store    Store
	notifier notify.Notifier
	policy   ExpiryPolicy
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option customises the service.
type Option func(*service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithPolicy sets the expiry policy. The default keeps lapsed entries.
func WithPolicy(p ExpiryPolicy) Option {
	return func(s *service) { s.policy = p }
}

// WithMetrics records waitlist counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *service) { s.metrics = m }
}

// New wires a Service backed by store. A nil notifier logs notifications.
func New(store Store, notifier notify.Notifier, opts ...Option) Service {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	s := &service{store: store, notifier: notifier, policy: KeepPolicy{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) Join(ctx context.Context, req JoinRequest) (*models.WaitlistEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, false, fmt.Errorf("%w: email is required", store.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, false, fmt.Errorf("%w: email is not a valid address", store.ErrValidation)
	}
	if strings.TrimSpace(req.EventID) == "" {
		return nil, false, fmt.Errorf("%w: eventId is required", store.ErrValidation)
	}

	ticketID := strings.TrimSpace(req.TicketID)
	if ticketID == "" {
		ticketID = models.AnyTicket
	}

	entry, created, err := s.store.JoinWaitlist(ctx, &models.WaitlistEntry{
		ID:        uuid.NewString(),
		EventID:   strings.TrimSpace(req.EventID),
		TicketID:  ticketID,
		Email:     email,
		UserID:    req.UserID,
		Phone:     strings.TrimSpace(req.Phone),
		Status:    models.WaitlistWaiting,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.metrics.WaitlistOperation("join")
	}
	return entry, created, nil
}

func (s *service) Process(ctx context.Context, eventID, ticketID string) (*models.WaitlistEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry, err := s.store.NotifyNextWaiting(ctx, eventID, strings.TrimSpace(ticketID), s.now().UTC(), HoldWindow)
	if err != nil {
		return nil, err
	}
	s.metrics.WaitlistOperation("notify")

	msg := notify.Message{
		Type:      notify.TypeWaitlistNotified,
		EventID:   entry.EventID,
		EntryID:   entry.ID,
		Email:     entry.Email,
		Phone:     entry.Phone,
		ExpiresAt: entry.ExpiresAt,
		Data:      map[string]string{"ticketId": entry.TicketID},
		Timestamp: s.now().UTC(),
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		// The hold is already open; the user can still verify access.
		s.metrics.NotificationFailed(msg.Type)
		logging.FromContext(ctx).Error().Err(err).
			Str("entry_id", entry.ID).
			Msg("waitlist notification failed")
	}
	return entry, nil
}

func (s *service) VerifyAccess(ctx context.Context, eventID, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	email = normalizeEmail(email)
	if email == "" {
		return false, fmt.Errorf("%w: email is required", store.ErrValidation)
	}

	entries, err := s.store.ListWaitlistByEmail(ctx, eventID, email)
	if err != nil {
		return false, err
	}

	now := s.now()
	granted := false
	for _, entry := range entries {
		if entry.Status != models.WaitlistNotified {
			continue
		}
		if entry.HoldActive(now) {
			granted = true
			continue
		}
		if err := s.policy.Apply(ctx, s.store, entry); err != nil {
			if errors.Is(err, store.ErrWaitlistEntryNotFound) || errors.Is(err, store.ErrAlreadyWaiting) {
				continue
			}
			return false, err
		}
		if s.policy.Name() != PolicyKeep {
			s.metrics.WaitlistOperation(s.policy.Name())
		}
	}
	return granted, nil
}

func (s *service) MarkPurchased(ctx context.Context, eventID, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := s.store.ListWaitlistByEmail(ctx, eventID, normalizeEmail(email))
	if err != nil {
		return err
	}

	now := s.now()
	for _, entry := range entries {
		if !entry.HoldActive(now) {
			continue
		}
		if err := s.store.SetWaitlistStatus(ctx, entry.ID, models.WaitlistNotified, models.WaitlistPurchased); err != nil {
			return err
		}
		s.metrics.WaitlistOperation("purchase")
		return nil
	}
	return store.ErrWaitlistEntryNotFound
}
