package orders

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"nightlife/internal/auth"
	"nightlife/internal/logging"
	"nightlife/internal/metrics"
	"nightlife/internal/models"
	"nightlife/internal/notify"
	"nightlife/internal/store"
)

// recentOrderLimit bounds ListByUser when the caller passes no limit.
const recentOrderLimit = 50

// Store describes the persistence operations required by the order manager.
type Store interface {
	CreateOrder(ctx context.Context, n models.NewOrder) (*models.Order, error)
	CancelOrder(ctx context.Context, id string, now time.Time) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, details map[string]string, now time.Time) (*models.Order, bool, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, limit int) ([]*models.Order, error)
	ListOrdersByEvent(ctx context.Context, eventID string, status models.OrderStatus) ([]*models.Order, error)
}

// CreateRequest is the checkout payload.
type CreateRequest struct {
	EventID       string                 `json:"eventId"`
	Tickets       []models.TicketRequest `json:"tickets"`
	UserEmail     string                 `json:"userEmail"`
	UserName      string                 `json:"userName"`
	PaymentMethod string                 `json:"paymentMethod"`
}

// Validate checks the payload before any inventory is touched.
func (r CreateRequest) Validate() error {
	var problems []string
	if strings.TrimSpace(r.EventID) == "" {
		problems = append(problems, "eventId is required")
	}
	if len(r.Tickets) == 0 {
		problems = append(problems, "at least one ticket is required")
	}
	for i, t := range r.Tickets {
		if strings.TrimSpace(t.TicketID) == "" {
			problems = append(problems, fmt.Sprintf("tickets[%d].ticketId is required", i))
		}
		if t.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("tickets[%d].quantity must be positive", i))
		}
	}
	if r.UserEmail != "" {
		if _, err := mail.ParseAddress(r.UserEmail); err != nil {
			problems = append(problems, "userEmail is not a valid address")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", store.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// Service exposes order workflows.
type Service interface {
	Create(ctx context.Context, buyer *auth.Principal, req CreateRequest) (*models.Order, error)
	Get(ctx context.Context, id string) (*models.Order, error)
	Cancel(ctx context.Context, caller *auth.Principal, id string) (*models.Order, error)
	// UpdateStatus applies a payment provider status change. changed is false
	// when the order already had the status.
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus, details map[string]string) (order *models.Order, changed bool, err error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Order, error)
	SalesStats(ctx context.Context, eventID string) (*models.SalesStats, error)
}

type service struct {
	store    Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option customises the service.
type Option func(*service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithMetrics records order counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *service) { s.metrics = m }
}

// New wires a Service backed by store. A nil notifier logs notifications.
func New(store Store, notifier notify.Notifier, opts ...Option) Service {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	s := &service{store: store, notifier: notifier, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewOrderID formats ORD-<yyyymmddHHMMSS>-<8 upper-case hex>.
func NewOrderID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102150405"), suffix)
}

func (s *service) Create(ctx context.Context, buyer *auth.Principal, req CreateRequest) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	n := models.NewOrder{
		ID:            NewOrderID(now),
		EventID:       strings.TrimSpace(req.EventID),
		UserEmail:     strings.ToLower(strings.TrimSpace(req.UserEmail)),
		UserName:      strings.TrimSpace(req.UserName),
		Tickets:       store.MergeTicketRequests(req.Tickets),
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Now:           now,
	}
	if buyer != nil {
		userID := buyer.UserID
		n.UserID = &userID
		if n.UserEmail == "" {
			n.UserEmail = strings.ToLower(buyer.Email)
		}
		if n.UserName == "" {
			n.UserName = buyer.Name
		}
	}

	order, err := s.store.CreateOrder(ctx, n)
	if err != nil {
		var inv *store.InsufficientInventoryError
		if errors.As(err, &inv) {
			s.metrics.InventoryConflict(n.EventID)
		}
		return nil, err
	}

	quantity := 0
	for _, item := range order.Tickets {
		quantity += item.Quantity
	}
	s.metrics.OrderCreated(order.EventID, string(order.Status), quantity)

	logging.FromContext(ctx).Info().
		Str("order_id", order.ID).
		Str("event_id", order.EventID).
		Int64("total", order.TotalAmount).
		Str("status", string(order.Status)).
		Msg("order created")

	if order.Status == models.OrderStatusConfirmed {
		s.publish(ctx, notify.TypeOrderConfirmed, order)
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, id string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, id)
}

func (s *service) Cancel(ctx context.Context, caller *auth.Principal, id string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	existing, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.UserID != nil {
		if caller == nil || (caller.UserID != *existing.UserID && caller.Role != models.RoleAdmin) {
			return nil, fmt.Errorf("%w: order belongs to another user", store.ErrForbidden)
		}
	}

	order, changed, err := s.store.UpdateOrderStatus(ctx, id, models.OrderStatusCancelled, nil, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.OrderTransition(string(order.Status))
		s.publish(ctx, notify.TypeOrderCancelled, order)
	}
	return order, nil
}

func (s *service) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, details map[string]string) (*models.Order, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !status.Valid() {
		return nil, false, fmt.Errorf("%w: unknown status %q", store.ErrValidation, status)
	}

	order, changed, err := s.store.UpdateOrderStatus(ctx, id, status, details, s.now().UTC())
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return order, false, nil
	}

	s.metrics.OrderTransition(string(order.Status))
	switch order.Status {
	case models.OrderStatusConfirmed:
		s.publish(ctx, notify.TypeOrderConfirmed, order)
	case models.OrderStatusCancelled:
		s.publish(ctx, notify.TypeOrderCancelled, order)
	}
	return order, true, nil
}

func (s *service) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = recentOrderLimit
	}
	return s.store.ListOrdersByUser(ctx, userID, limit)
}

func (s *service) SalesStats(ctx context.Context, eventID string) (*models.SalesStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	orders, err := s.store.ListOrdersByEvent(ctx, eventID, models.OrderStatusConfirmed)
	if err != nil {
		return nil, err
	}
	return aggregate(eventID, orders), nil
}

func aggregate(eventID string, orders []*models.Order) *models.SalesStats {
	stats := &models.SalesStats{
		EventID: eventID,
		ByTier:  make(map[string]models.TierSales),
	}
	for _, o := range orders {
		if o.Status != models.OrderStatusConfirmed {
			continue
		}
		stats.OrderCount++
		stats.TotalRevenue += o.TotalAmount
		for _, item := range o.Tickets {
			stats.TotalTicketsSold += item.Quantity
			tier := stats.ByTier[item.TicketID]
			tier.Name = item.Name
			tier.QuantitySold += item.Quantity
			tier.Revenue += item.Subtotal
			stats.ByTier[item.TicketID] = tier
		}
	}
	return stats
}

// publish never fails the caller; the order is already committed.
func (s *service) publish(ctx context.Context, kind string, order *models.Order) {
	msg := notify.Message{
		Type:      kind,
		EventID:   order.EventID,
		OrderID:   order.ID,
		Email:     order.UserEmail,
		Timestamp: s.now().UTC(),
		Data: map[string]string{
			"status": string(order.Status),
			"total":  fmt.Sprintf("%d", order.TotalAmount),
		},
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.metrics.NotificationFailed(kind)
		logging.FromContext(ctx).Error().Err(err).
			Str("order_id", order.ID).
			Str("type", kind).
			Msg("notification failed")
	}
}
